package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffStrategy returns the delay before the given attempt (1-based).
type BackoffStrategy interface {
	NextBackoff(attempt int) time.Duration
}

// ConstantBackoff waits the same interval between every attempt.
type ConstantBackoff struct {
	Interval time.Duration
}

func (b *ConstantBackoff) NextBackoff(int) time.Duration {
	return b.Interval
}

// ExponentialBackoff grows the delay by Multiplier per attempt, spreads it by
// up to JitterFactor either way and never exceeds MaxInterval. The schedule is
// the one of backoff.ExponentialBackOff, replayed per attempt so callers that
// only know the attempt number (queued followups) get the same curve.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

// maxReplayedAttempts bounds the replay; the interval is capped long before.
const maxReplayedAttempts = 64

func (b *ExponentialBackoff) NextBackoff(attempt int) time.Duration {
	attempt = min(max(attempt, 1), maxReplayedAttempts)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.InitialInterval
	policy.Multiplier = b.Multiplier
	policy.RandomizationFactor = b.JitterFactor
	policy.MaxInterval = b.MaxInterval
	if policy.MaxInterval <= 0 {
		policy.MaxInterval = time.Duration(math.MaxInt64)
	}
	policy.MaxElapsedTime = 0
	policy.Reset()

	var wait time.Duration
	for i := 0; i < attempt; i++ {
		wait = policy.NextBackOff()
	}
	return wait
}

// NewDefaultExponentialBackoff is tuned for outbound calls made inside a request.
func NewDefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
		JitterFactor:    0.2,
	}
}
