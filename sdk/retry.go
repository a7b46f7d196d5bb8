package sdk

import (
	"context"
	"math/rand"
	"time"
)

// retryExecutor runs an operation with exponential backoff and jitter.
// Permanent errors (see IsRetryable) abort immediately.
type retryExecutor struct {
	maxRetries      int
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
}

func newRetryExecutor(cfg RetryConfig) *retryExecutor {
	return &retryExecutor{
		maxRetries:      cfg.MaxRetries,
		initialInterval: cfg.InitialInterval,
		maxInterval:     cfg.MaxInterval,
		multiplier:      cfg.Multiplier,
	}
}

// Execute runs fn up to maxRetries+1 times. Between attempts it sleeps
// for the backoff interval, unless ctx is cancelled first.
func (r *retryExecutor) Execute(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff(attempt)):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

// backoff returns the delay before the given attempt (1-based), with
// 30% jitter to avoid retry storms.
func (r *retryExecutor) backoff(attempt int) time.Duration {
	interval := float64(r.initialInterval)
	for i := 1; i < attempt; i++ {
		interval *= r.multiplier
		if interval >= float64(r.maxInterval) {
			interval = float64(r.maxInterval)
			break
		}
	}

	jitter := interval * 0.3 * (2*rand.Float64() - 1)
	d := time.Duration(interval + jitter)
	if d < 0 {
		d = 0
	}
	if d > r.maxInterval {
		d = r.maxInterval
	}
	return d
}
