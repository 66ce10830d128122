package lesson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devsecops-academy/progression-engine/pkg/timeutil"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, StatusNotStarted.CanTransitionTo(StatusInProgress))
	assert.True(t, StatusNotStarted.CanTransitionTo(StatusCompleted))
	assert.True(t, StatusInProgress.CanTransitionTo(StatusCompleted))

	// Completion is terminal.
	assert.False(t, StatusCompleted.CanTransitionTo(StatusInProgress))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusNotStarted))
	assert.False(t, StatusInProgress.CanTransitionTo(StatusNotStarted))
}

func TestNewProgress_StartsInProgress(t *testing.T) {
	now := timeutil.Date(2026, 3, 10)

	prog, err := NewProgress("pr-1", "u-1", "lesson-1", now)

	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, prog.Status)
	assert.Equal(t, 0, prog.ProgressPct)
	assert.Equal(t, now, prog.StartedAt)
	assert.True(t, prog.CompletedAt.IsZero())
	assert.False(t, prog.IsCompleted())
}

func TestNewProgress_RequiresIdentifiers(t *testing.T) {
	now := timeutil.Date(2026, 3, 10)

	_, err := NewProgress("", "u-1", "lesson-1", now)
	assert.Error(t, err)

	_, err = NewProgress("pr-1", "", "lesson-1", now)
	assert.Error(t, err)

	_, err = NewProgress("pr-1", "u-1", "", now)
	assert.Error(t, err)
}

func TestProgress_Advance(t *testing.T) {
	now := timeutil.Date(2026, 3, 10)
	prog, err := NewProgress("pr-1", "u-1", "lesson-1", now)
	require.NoError(t, err)

	require.NoError(t, prog.Advance(40, now))
	assert.Equal(t, 40, prog.ProgressPct)

	// Progress never moves backwards.
	assert.ErrorIs(t, prog.Advance(30, now), ErrBackwardTransition)
	assert.Equal(t, 40, prog.ProgressPct)

	assert.ErrorIs(t, prog.Advance(150, now), ErrInvalidProgressPct)
	assert.ErrorIs(t, prog.Advance(-1, now), ErrInvalidProgressPct)
}

func TestProgress_Complete(t *testing.T) {
	now := timeutil.Date(2026, 3, 10)
	prog, err := NewProgress("pr-1", "u-1", "lesson-1", now)
	require.NoError(t, err)

	later := timeutil.Date(2026, 3, 11)
	require.NoError(t, prog.Complete(45, later))

	assert.True(t, prog.IsCompleted())
	assert.Equal(t, 100, prog.ProgressPct)
	assert.Equal(t, later, prog.CompletedAt)
	assert.Equal(t, 45, prog.TimeSpentMinutes)
	assert.NoError(t, prog.CheckInvariants())
}

func TestProgress_CompleteTwiceFails(t *testing.T) {
	now := timeutil.Date(2026, 3, 10)
	prog, err := NewProgress("pr-1", "u-1", "lesson-1", now)
	require.NoError(t, err)

	require.NoError(t, prog.Complete(30, now))

	err = prog.Complete(10, now)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	assert.Equal(t, 30, prog.TimeSpentMinutes)
}

func TestProgress_CompleteAccumulatesTime(t *testing.T) {
	now := timeutil.Date(2026, 3, 10)
	prog, err := NewProgress("pr-1", "u-1", "lesson-1", now)
	require.NoError(t, err)

	require.NoError(t, prog.Advance(60, now))
	prog.TimeSpentMinutes = 20

	require.NoError(t, prog.Complete(25, now))
	assert.Equal(t, 45, prog.TimeSpentMinutes)
}

func TestProgress_CompleteRejectsNegativeTime(t *testing.T) {
	now := timeutil.Date(2026, 3, 10)
	prog, err := NewProgress("pr-1", "u-1", "lesson-1", now)
	require.NoError(t, err)

	assert.ErrorIs(t, prog.Complete(-5, now), ErrInvalidTimeSpent)
	assert.False(t, prog.IsCompleted())
}
