package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jobrunner/atlas/internal/ports/output"
)

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func transientErr() error {
	return &output.TransportError{Kind: output.TransportConnection, URL: "https://gis.example.com", Err: errors.New("refused")}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := fastRetry().Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return transientErr()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryStopsOnNonTransient(t *testing.T) {
	rejection := output.HTTPStatusError("https://gis.example.com", 400)
	attempts := 0
	err := fastRetry().Do(context.Background(), func(context.Context) error {
		attempts++
		return rejection
	})
	if !errors.Is(err, rejection) {
		t.Errorf("err = %v, want the rejection", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, 4xx must not be retried", attempts)
	}
}

func TestRetryServerErrorIsTransient(t *testing.T) {
	attempts := 0
	err := fastRetry().Do(context.Background(), func(context.Context) error {
		attempts++
		return output.HTTPStatusError("https://gis.example.com", 503)
	})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want the full budget for 5xx", attempts)
	}
}

func TestRetryExhaustionReturnsLastError(t *testing.T) {
	last := transientErr()
	err := fastRetry().Do(context.Background(), func(context.Context) error {
		return last
	})
	if !errors.Is(err, last) {
		t.Errorf("err = %v, want the last failure", err)
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fastRetry().Do(ctx, func(context.Context) error {
		return transientErr()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
