package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker(t *testing.T) {
	boom := errors.New("boom")

	t.Run("opens after consecutive failures", func(t *testing.T) {
		cb := New(Config{FailureThreshold: 2, ResetTimeout: time.Minute})

		_ = cb.Execute(func() error { return boom }, nil)
		assert.Equal(t, StateClosed, cb.State())
		_ = cb.Execute(func() error { return boom }, nil)
		assert.Equal(t, StateOpen, cb.State())

		err := cb.Execute(func() error { return nil }, nil)
		assert.ErrorIs(t, err, ErrOpen)
	})

	t.Run("ignores errors that are not countable", func(t *testing.T) {
		cb := New(Config{FailureThreshold: 1})
		err := cb.Execute(func() error { return boom }, func(error) bool { return false })

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("closes again after a successful probe", func(t *testing.T) {
		now := time.Now()
		cb := New(Config{FailureThreshold: 1, ResetTimeout: time.Second, HalfOpenMaxCalls: 1})
		cb.now = func() time.Time { return now }

		_ = cb.Execute(func() error { return boom }, nil)
		assert.False(t, cb.Allow())

		now = now.Add(2 * time.Second)
		assert.NoError(t, cb.Execute(func() error { return nil }, nil))
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("reopens when the probe fails", func(t *testing.T) {
		now := time.Now()
		cb := New(Config{FailureThreshold: 1, ResetTimeout: time.Second})
		cb.now = func() time.Time { return now }

		_ = cb.Execute(func() error { return boom }, nil)
		now = now.Add(2 * time.Second)
		_ = cb.Execute(func() error { return boom }, nil)

		assert.Equal(t, StateOpen, cb.State())
	})
}
