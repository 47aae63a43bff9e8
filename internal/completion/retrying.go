package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/omalmisr/omal-responder/internal/retry"
)

// Retrying bounds a Completer: each attempt gets its own timeout, only
// ErrUpstreamUnavailable is retried, and panics surface as
// ErrUpstreamUnavailable.
type Retrying struct {
	next        Completer
	timeout     time.Duration
	maxAttempts int
	delay       time.Duration
	logger      *slog.Logger
}

// NewRetrying wraps next.
func NewRetrying(next Completer, timeout time.Duration, maxAttempts int, delay time.Duration, logger *slog.Logger) *Retrying {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retrying{
		next:        next,
		timeout:     timeout,
		maxAttempts: maxAttempts,
		delay:       delay,
		logger:      logger,
	}
}

// Complete implements Completer.
func (r *Retrying) Complete(ctx context.Context, prompt, systemContext string) (string, error) {
	var out string
	err := retry.Do(ctx, retry.Config{
		MaxAttempts: r.maxAttempts,
		Delay:       r.delay,
		ShouldRetry: func(err error) bool { return errors.Is(err, ErrUpstreamUnavailable) },
		OnRetry: func(attempt int, err error, delay time.Duration) {
			r.logger.Debug("completion attempt failed, retrying", "attempt", attempt, "max", r.maxAttempts, "delay", delay, "error", err)
		},
	}, func(ctx context.Context) error {
		text, err := r.attempt(ctx, prompt, systemContext)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ErrUpstreamUnavailable) && !errors.Is(err, ErrUpstreamRejected) {
			err = fmt.Errorf("%v: %w", err, ErrUpstreamUnavailable)
		}
		return "", err
	}
	return out, nil
}

func (r *Retrying) attempt(ctx context.Context, prompt, systemContext string) (text string, err error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			text = ""
			err = fmt.Errorf("completion panicked: %v: %w", p, ErrUpstreamUnavailable)
		}
	}()
	return r.next.Complete(ctx, prompt, systemContext)
}

// Failover tries primary and, when it fails, secondary once.
type Failover struct {
	primary   Completer
	secondary Completer
	logger    *slog.Logger
}

// NewFailover chains two completers.
func NewFailover(primary, secondary Completer, logger *slog.Logger) *Failover {
	return &Failover{primary: primary, secondary: secondary, logger: logger}
}

// Complete implements Completer.
func (f *Failover) Complete(ctx context.Context, prompt, systemContext string) (string, error) {
	text, err := f.primary.Complete(ctx, prompt, systemContext)
	if err == nil {
		return text, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	f.logger.Warn("primary completion provider failed, trying secondary", "error", err)
	text, err2 := f.secondary.Complete(ctx, prompt, systemContext)
	if err2 != nil {
		return "", errors.Join(err, err2)
	}
	return text, nil
}
