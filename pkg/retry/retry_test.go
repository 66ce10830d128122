package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOpts() []Option {
	return []Option{
		WithMaxAttempts(3),
		WithInitialDelay(time.Millisecond),
		WithMaxDelay(2 * time.Millisecond),
		WithJitter(0),
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0

	err := New(fastOpts()...).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesRetryableErrors(t *testing.T) {
	calls := 0
	conflict := errors.New("version conflict")

	err := New(fastOpts()...).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(conflict)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustionReturnsUnwrappedError(t *testing.T) {
	calls := 0
	conflict := errors.New("version conflict")

	err := New(fastOpts()...).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Retryable(conflict)
	})

	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, conflict)
	// The wrapper is stripped on the way out.
	assert.False(t, IsRetryable(err))
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	calls := 0
	notFound := errors.New("lesson not found")

	err := New(fastOpts()...).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(notFound)
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, notFound)
}

func TestDo_PlainErrorIsNotRetried(t *testing.T) {
	calls := 0

	err := New(fastOpts()...).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetryIfOverridesDefault(t *testing.T) {
	calls := 0

	err := New(append(fastOpts(), WithRetryIf(func(err error) bool {
		return err.Error() == "transient"
	}))...).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_CancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	conflict := errors.New("version conflict")

	err := New(fastOpts()...).Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return Retryable(conflict)
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_OnRetryCallback(t *testing.T) {
	var attempts []int

	_ = New(append(fastOpts(), WithOnRetry(func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}))...).Do(context.Background(), func(ctx context.Context) error {
		return Retryable(errors.New("conflict"))
	})

	// Called before each retry, not after the final attempt.
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDoWithData(t *testing.T) {
	calls := 0

	got, err := DoWithData(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, Retryable(errors.New("conflict"))
		}
		return 42, nil
	}, fastOpts()...)

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestCalculateDelay_CapsAtMax(t *testing.T) {
	r := New(
		WithInitialDelay(100*time.Millisecond),
		WithMaxDelay(300*time.Millisecond),
		WithMultiplier(2.0),
		WithJitter(0),
	)

	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 200*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 300*time.Millisecond, r.calculateDelay(3))
	assert.Equal(t, 300*time.Millisecond, r.calculateDelay(10))
}

func TestConflictRetrier_ThreeAttempts(t *testing.T) {
	calls := 0

	err := ConflictRetrier().Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Retryable(errors.New("conflict"))
	})

	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}
