package model

import (
	"time"

	"github.com/mslinn/bm-console/pkg/property"
)

// RunState is the lifecycle state of a test run
type RunState string

const (
	StateNotScheduled RunState = "NOT_SCHEDULED"
	StateScheduled    RunState = "SCHEDULED"
	StateStarted      RunState = "STARTED"
	StateStopped      RunState = "STOPPED"
	StateCompleted    RunState = "COMPLETED"
)

// CanTransition reports whether a run may move from s to next
func (s RunState) CanTransition(next RunState) bool {
	switch s {
	case StateNotScheduled:
		return next == StateNotScheduled || next == StateScheduled
	case StateScheduled:
		return next == StateNotScheduled || next == StateScheduled || next == StateStarted
	case StateStarted:
		return next == StateStarted || next == StateStopped || next == StateCompleted
	case StateStopped, StateCompleted:
		return next == s
	}
	return false
}

// Run is one execution of a test with its own copy of the properties
type Run struct {
	ID             string                 `json:"id"`
	Test           string                 `json:"test"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description,omitempty"`
	Version        int                    `json:"version"`
	State          RunState               `json:"state"`
	ScheduledAt    *time.Time             `json:"scheduled,omitempty"`
	StartedAt      *time.Time             `json:"started,omitempty"`
	StoppedAt      *time.Time             `json:"stopped,omitempty"`
	CompletedAt    *time.Time             `json:"completed,omitempty"`
	Progress       float64                `json:"progress"`
	ResultsSuccess int64                  `json:"resultsSuccess"`
	ResultsFail    int64                  `json:"resultsFail"`
	CreatedAt      time.Time              `json:"created"`
	Properties     []*property.Descriptor `json:"properties,omitempty"`
}

// ReadOnly reports whether the run's properties are frozen. Once a run has
// been scheduled its configuration can no longer be edited.
func (r *Run) ReadOnly() bool {
	return r.State != StateNotScheduled ||
		r.ScheduledAt != nil || r.StartedAt != nil || r.StoppedAt != nil || r.CompletedAt != nil
}

// Duration returns how long the run has been (or was) executing
func (r *Run) Duration(now time.Time) time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	end := now
	switch {
	case r.CompletedAt != nil:
		end = *r.CompletedAt
	case r.StoppedAt != nil:
		end = *r.StoppedAt
	}
	return end.Sub(*r.StartedAt)
}

// LogLevel of a run log message
type LogLevel string

const (
	LevelTrace LogLevel = "TRACE"
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
	LevelFatal LogLevel = "FATAL"
)

// RunLog is a message recorded against a test run
type RunLog struct {
	ID       int64     `json:"id"`
	RunID    string    `json:"run"`
	LoggedAt time.Time `json:"time"`
	Level    LogLevel  `json:"level"`
	Message  string    `json:"msg"`
}
