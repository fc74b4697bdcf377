package agent

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// RetryConfig controls exponential backoff for transient failures.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      float64 // fraction of the delay randomized in both directions
}

// DefaultRetryConfig matches the standard policy: 3 attempts with 1s, 2s, 4s
// base delays and ±20% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, Jitter: 0.2}
}

// Backoff returns the delay before the given retry attempt (1-based), with
// jitter applied.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	delay := c.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	if c.Jitter > 0 {
		spread := float64(delay) * c.Jitter
		delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*spread)
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// Retry runs fn up to MaxAttempts times, backing off between attempts when
// retryable classifies the failure as transient. Non-retryable errors and
// context cancellation surface immediately.
func Retry[T any](ctx context.Context, cfg RetryConfig, label string, retryable func(error) bool, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if retryable != nil && !retryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		delay := cfg.Backoff(attempt)
		slog.Warn("retrying after transient failure",
			"op", label, "attempt", attempt, "max_attempts", attempts, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}
