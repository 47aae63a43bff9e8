// Package retry runs an operation a bounded number of times with a pause
// between attempts.
package retry

import (
	"context"
	"errors"
	"time"
)

// Config controls the retry behaviour.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Zero or negative values mean a single attempt.
	MaxAttempts int
	// Delay is the pause between attempts.
	Delay time.Duration
	// Multiplier scales Delay after each failed attempt. Values <= 1 keep
	// the delay fixed.
	Multiplier float64
	// MaxDelay caps the pause when Multiplier grows it. Zero means no cap.
	MaxDelay time.Duration
	// ShouldRetry classifies errors as retryable. When nil, every error is
	// retried.
	ShouldRetry func(err error) bool
	// OnRetry, when set, is called before each pause.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Do calls fn until it succeeds, returns a non-retryable error, attempts
// run out, or ctx is done. The error from the last attempt is returned.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = func(error) bool { return true }
	}

	delay := cfg.Delay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) || attempt == cfg.MaxAttempts {
			return lastErr
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, delay)
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(lastErr, ctx.Err())
			case <-timer.C:
			}
		}
		if cfg.Multiplier > 1 {
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}
	}
	return lastErr
}
