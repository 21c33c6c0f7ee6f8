package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mslinn/bm-console/pkg/model"
)

const tick = 5 * time.Millisecond

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("polling did not end")
	}
}

func TestStartStopsWhenDone(t *testing.T) {
	p := New(tick, nil)
	var calls int32
	done := p.Start(context.Background(), ConcernRunSummary, func(context.Context) (bool, error) {
		return atomic.AddInt32(&calls, 1) == 3, nil
	})

	waitClosed(t, done)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.False(t, p.Active(ConcernRunSummary))
}

func TestErrorsKeepPolling(t *testing.T) {
	p := New(tick, nil)
	var calls int32
	done := p.Start(context.Background(), ConcernRunLogs, func(context.Context) (bool, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return false, errors.New("server unavailable")
		}
		return true, nil
	})

	waitClosed(t, done)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRestartCancelsPriorTimer(t *testing.T) {
	p := New(tick, nil)
	var inFlight, maxInFlight int32
	blocking := func(ctx context.Context) (bool, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		<-ctx.Done()
		atomic.AddInt32(&inFlight, -1)
		return false, ctx.Err()
	}

	first := p.Start(context.Background(), ConcernRunSummary, blocking)
	second := p.Start(context.Background(), ConcernRunSummary, blocking)

	waitClosed(t, first)
	assert.True(t, p.Active(ConcernRunSummary))

	assert.True(t, p.Stop(ConcernRunSummary))
	waitClosed(t, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
	assert.False(t, p.Stop(ConcernRunSummary))
}

func TestStopAllAndContextCancel(t *testing.T) {
	p := New(tick, nil)
	forever := func(context.Context) (bool, error) { return false, nil }

	a := p.Start(context.Background(), ConcernRunSummary, forever)
	b := p.Start(context.Background(), ConcernRunLogs, forever)
	p.StopAll()
	waitClosed(t, a)
	waitClosed(t, b)
	assert.False(t, p.Active(ConcernRunSummary))
	assert.False(t, p.Active(ConcernRunLogs))

	ctx, cancel := context.WithCancel(context.Background())
	c := p.Start(ctx, ConcernRunSummary, forever)
	cancel()
	waitClosed(t, c)
}

type fakeSource struct {
	mu       sync.Mutex
	progress []float64
}

func (f *fakeSource) RunSummary(_ context.Context, test, run string) (*model.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.progress[0]
	if len(f.progress) > 1 {
		f.progress = f.progress[1:]
	}
	state := model.StateStarted
	if p >= 1 {
		state = model.StateCompleted
	}
	return &model.Run{Test: test, Name: run, Progress: p, State: state}, nil
}

func TestRunSummaryStopsAtCompletion(t *testing.T) {
	src := &fakeSource{progress: []float64{0.2, 0.6, 1}}
	var mu sync.Mutex
	var seen []float64

	p := New(tick, nil)
	done := p.Start(context.Background(), ConcernRunSummary, RunSummary(src, "load", "01", func(r *model.Run, err error) {
		assert.NoError(t, err)
		mu.Lock()
		seen = append(seen, r.Progress)
		mu.Unlock()
	}))

	waitClosed(t, done)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []float64{0.2, 0.6, 1}, seen)
}

func TestFinished(t *testing.T) {
	assert.False(t, Finished(&model.Run{State: model.StateStarted, Progress: 0.5}))
	assert.True(t, Finished(&model.Run{State: model.StateStarted, Progress: 1}))
	assert.True(t, Finished(&model.Run{State: model.StateStopped, Progress: 0.3}))
}

type fakeRefresher struct {
	mu   sync.Mutex
	ids  []string
	ttls []time.Duration
}

func (f *fakeRefresher) RefreshDriver(_ context.Context, id string, ttl time.Duration) (*model.Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	f.ttls = append(f.ttls, ttl)
	return &model.Driver{ID: id}, nil
}

func (f *fakeRefresher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ids)
}

func TestDriverHeartbeatRunsUntilStopped(t *testing.T) {
	r := &fakeRefresher{}
	p := New(tick, nil)
	p.Start(context.Background(), ConcernDriver, DriverHeartbeat(r, "d1", time.Minute))

	assert.Eventually(t, func() bool { return r.calls() >= 3 }, 2*time.Second, tick)
	assert.True(t, p.Active(ConcernDriver))
	assert.True(t, p.Stop(ConcernDriver))

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.ids {
		assert.Equal(t, "d1", r.ids[i])
		assert.Equal(t, time.Minute, r.ttls[i])
	}
}
