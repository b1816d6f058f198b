// Package retry retries best-effort outbound deliveries (status mirroring to
// Matrix, mostly) with capped exponential backoff.
//
// Usage:
//
//	err := retry.Do(ctx, retry.Policy{Attempts: 3, Delay: 250 * time.Millisecond}, "matrix send", func(ctx context.Context) error {
//	    return client.SendText(ctx, room, line)
//	})
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Permanent marks err as not worth retrying. Do returns the wrapped error
// immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Policy controls how often and how patiently an operation is retried.
type Policy struct {
	// Attempts is the total number of calls including the first one.
	// Values below 1 mean a single call.
	Attempts int
	// Delay is the wait before the second call; it doubles afterwards.
	Delay time.Duration
	// MaxDelay caps the per-attempt wait.
	MaxDelay time.Duration
	// Logger receives a debug record per failed attempt.
	Logger *slog.Logger
}

// DefaultPolicy suits short calls against a chat homeserver.
var DefaultPolicy = Policy{
	Attempts: 3,
	Delay:    250 * time.Millisecond,
	MaxDelay: 5 * time.Second,
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts are
// exhausted, or ctx is done. The last error is returned, joined with the
// context error when cancellation cut the loop short.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Delay <= 0 {
		p.Delay = DefaultPolicy.Delay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultPolicy.MaxDelay
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	delay := p.Delay
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			return lastErr
		}
		if attempt == p.Attempts {
			break
		}

		logger.Debug("retry: attempt failed",
			"op", op, "attempt", attempt, "max", p.Attempts,
			"err", lastErr, "delay", delay)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-t.C:
		}

		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return lastErr
}
