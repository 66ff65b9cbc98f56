package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Config controls how Do retries an operation.
type Config struct {
	MaxAttempts int
	Backoff     BackoffStrategy
	Logger      *slog.Logger
	// Retryable decides whether an error is worth another attempt.
	// When nil every error is retried.
	Retryable func(error) bool
}

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = NewDefaultExponentialBackoff()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("retry cancelled: %w", errors.Join(err, lastErr))
			}
			return fmt.Errorf("retry cancelled: %w", err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if cfg.Retryable != nil && !cfg.Retryable(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		wait := backoff.NextBackoff(attempt)
		logger.DebugContext(ctx, "retrying after error",
			"error", lastErr,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"backoff", wait,
		)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff: %w", errors.Join(ctx.Err(), lastErr))
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, maxAttempts, lastErr)
}
