package application

import (
	"context"
	"time"

	"github.com/jobrunner/atlas/internal/ports/output"
)

// RetryPolicy retries an operation on transient transport failures with
// exponential backoff. Non-transient failures return immediately.
type RetryPolicy struct {
	MaxAttempts int           // Total attempts including the first, default 3
	BaseDelay   time.Duration // Delay before the second attempt, default 500ms
	MaxDelay    time.Duration // Backoff ceiling, default 8s
}

// DefaultRetryPolicy returns the dispatcher's standard policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 8 * time.Second
	}
	return p
}

// Do runs fn until it succeeds, fails non-transiently, attempts run out, or
// the context is canceled. Returns the last error on exhaustion.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p = p.normalized()

	var lastErr error
	delay := p.BaseDelay

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return lastErr
}

// isTransient reports whether the error chain carries a transient transport
// failure worth retrying.
func isTransient(err error) bool {
	te, ok := output.ClassifyTransportError(err)
	return ok && te.Transient()
}
