package service

import (
	"context"
	"time"

	"github.com/rowan/parcelbase/internal/adapter"
)

// RetryPolicy controls how network-bound pipeline stages are retried.
// Only transient failures are retried; every other kind fails the stage on
// the first attempt.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy returns the pipeline default.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 250 * time.Millisecond}
}

// Do runs op up to MaxAttempts times with exponential backoff between
// attempts. op receives the 1-based attempt number. The last error is
// returned when all attempts fail or when the failure is not transient.
func (p RetryPolicy) Do(ctx context.Context, op func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(attempt)
		if err == nil {
			return nil
		}
		if adapter.Classify(err) != adapter.FailureTransient {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := p.BaseDelay << (attempt - 1)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
	}
	return err
}
