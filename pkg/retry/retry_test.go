package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo(t *testing.T) {
	fast := &ConstantBackoff{Interval: time.Millisecond}

	t.Run("returns nil once the operation succeeds", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), Config{MaxAttempts: 3, Backoff: fast}, func(context.Context) error {
			calls++
			if calls < 2 {
				return errors.New("flaky")
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("stops on non-retryable errors", func(t *testing.T) {
		permanent := errors.New("permanent")
		calls := 0
		err := Do(context.Background(), Config{
			MaxAttempts: 5,
			Backoff:     fast,
			Retryable:   func(err error) bool { return !errors.Is(err, permanent) },
		}, func(context.Context) error {
			calls++
			return permanent
		})

		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("wraps the last error when attempts run out", func(t *testing.T) {
		boom := errors.New("boom")
		err := Do(context.Background(), Config{MaxAttempts: 3, Backoff: fast}, func(context.Context) error {
			return boom
		})

		assert.ErrorIs(t, err, ErrExhausted)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("honours context cancellation during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		err := Do(ctx, Config{MaxAttempts: 3, Backoff: &ConstantBackoff{Interval: time.Hour}}, func(context.Context) error {
			cancel()
			return errors.New("boom")
		})

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestExponentialBackoff(t *testing.T) {
	b := &ExponentialBackoff{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, b.NextBackoff(1))
	assert.Equal(t, 200*time.Millisecond, b.NextBackoff(2))
	assert.Equal(t, 400*time.Millisecond, b.NextBackoff(3))
	assert.Equal(t, time.Second, b.NextBackoff(10))
}

func TestExponentialBackoffJitterStaysInRange(t *testing.T) {
	b := &ExponentialBackoff{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2, JitterFactor: 0.5}

	for i := 0; i < 50; i++ {
		wait := b.NextBackoff(2)
		assert.GreaterOrEqual(t, wait, 100*time.Millisecond)
		assert.LessOrEqual(t, wait, 300*time.Millisecond)
	}
}
