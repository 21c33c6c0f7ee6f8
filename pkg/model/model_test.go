package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunStateTransitions(t *testing.T) {
	assert.True(t, StateNotScheduled.CanTransition(StateScheduled))
	assert.False(t, StateNotScheduled.CanTransition(StateStarted))
	assert.True(t, StateScheduled.CanTransition(StateNotScheduled))
	assert.False(t, StateScheduled.CanTransition(StateStopped))
	assert.True(t, StateStarted.CanTransition(StateCompleted))
	assert.False(t, StateCompleted.CanTransition(StateStarted))
	assert.False(t, StateStopped.CanTransition(StateStarted))
}

func TestRunDuration(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	run := &Run{}
	assert.Zero(t, run.Duration(end))
	run.StartedAt = &start
	assert.Equal(t, 30*time.Second, run.Duration(start.Add(30*time.Second)))
	run.CompletedAt = &end
	assert.Equal(t, 90*time.Second, run.Duration(end.Add(time.Hour)))
}

func TestRunReadOnly(t *testing.T) {
	run := &Run{State: StateNotScheduled}
	assert.False(t, run.ReadOnly())

	run.State = StateScheduled
	assert.True(t, run.ReadOnly())

	now := time.Now()
	assert.True(t, (&Run{State: StateNotScheduled, StoppedAt: &now}).ReadOnly(), "any timestamp freezes the run")
}

func TestDriverActive(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	d := &Driver{Expires: now.Add(time.Second)}
	assert.True(t, d.Active(now))
	assert.False(t, d.Active(now.Add(time.Second)))
}
