// Package poller runs repeating refresh timers, at most one per concern.
package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mslinn/bm-console/pkg/model"
)

// Concerns polled by the console
const (
	ConcernRunSummary = "run-summary"
	ConcernRunLogs    = "run-logs"
	ConcernDriver     = "driver-heartbeat"
)

// Func is one poll. It reports done once there is nothing left to wait for.
// A Func must not stop its own concern; it returns done instead.
type Func func(ctx context.Context) (done bool, err error)

type timer struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Poller owns the active timers
type Poller struct {
	interval time.Duration
	logger   *zap.SugaredLogger

	mu     sync.Mutex
	timers map[string]*timer
}

// New returns a Poller firing every interval
func New(interval time.Duration, logger *zap.SugaredLogger) *Poller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Poller{interval: interval, logger: logger, timers: make(map[string]*timer)}
}

// Start polls fn right away and then every interval until fn reports done,
// ctx is cancelled or the concern is stopped. Any timer already running for
// the concern is stopped first, so two polls of one concern never overlap.
// The returned channel is closed when polling ends.
func (p *Poller) Start(ctx context.Context, concern string, fn Func) <-chan struct{} {
	p.Stop(concern)

	ctx, cancel := context.WithCancel(ctx)
	t := &timer{cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	if prev, ok := p.timers[concern]; ok {
		// lost a race with another Start for the same concern
		prev.cancel()
	}
	p.timers[concern] = t
	p.mu.Unlock()

	go p.run(ctx, concern, t, fn)
	return t.done
}

func (p *Poller) run(ctx context.Context, concern string, t *timer, fn Func) {
	defer func() {
		t.cancel()
		p.mu.Lock()
		if p.timers[concern] == t {
			delete(p.timers, concern)
		}
		p.mu.Unlock()
		close(t.done)
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		done, err := fn(ctx)
		if err != nil && ctx.Err() == nil {
			p.logger.Warnw("Poll failed", "concern", concern, "error", err)
		}
		if done {
			p.logger.Debugw("Polling finished", "concern", concern)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the timer of a concern and waits for its last poll to
// return. It reports whether a timer was running.
func (p *Poller) Stop(concern string) bool {
	p.mu.Lock()
	t, ok := p.timers[concern]
	p.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	<-t.done
	return true
}

// StopAll cancels every timer, as when the view is torn down
func (p *Poller) StopAll() {
	p.mu.Lock()
	concerns := make([]string, 0, len(p.timers))
	for c := range p.timers {
		concerns = append(concerns, c)
	}
	p.mu.Unlock()

	for _, c := range concerns {
		p.Stop(c)
	}
}

// Active reports whether a timer is running for concern
func (p *Poller) Active(concern string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.timers[concern]
	return ok
}

// SummarySource fetches the current state of a run
type SummarySource interface {
	RunSummary(ctx context.Context, test, run string) (*model.Run, error)
}

// RunSummary polls the summary of a run, handing every result to onUpdate,
// until the run completes or is stopped
func RunSummary(src SummarySource, test, run string, onUpdate func(*model.Run, error)) Func {
	return func(ctx context.Context) (bool, error) {
		summary, err := src.RunSummary(ctx, test, run)
		if ctx.Err() != nil {
			// view is gone; late results are dropped
			return true, nil
		}
		onUpdate(summary, err)
		if err != nil {
			return false, err
		}
		return Finished(summary), nil
	}
}

// Finished reports whether a run has nothing more to report
func Finished(run *model.Run) bool {
	return run.Progress >= 1 || run.State == model.StateCompleted || run.State == model.StateStopped
}

// Refresher renews a driver registration
type Refresher interface {
	RefreshDriver(ctx context.Context, id string, ttl time.Duration) (*model.Driver, error)
}

// DriverHeartbeat keeps the registration of driver id active for ttl past
// every poll. It never reports done; the registration lapses once polling
// stops.
func DriverHeartbeat(r Refresher, id string, ttl time.Duration) Func {
	return func(ctx context.Context) (bool, error) {
		_, err := r.RefreshDriver(ctx, id, ttl)
		return false, err
	}
}
