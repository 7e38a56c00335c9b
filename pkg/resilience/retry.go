package resilience

import (
	"context"
	"fmt"
	"time"
)

// Backoff selects the delay progression between retries
type Backoff string

const (
	BackoffConstant    Backoff = "constant"
	BackoffExponential Backoff = "exponential"
)

// RetryPolicy configures Retry. OnRetry, when set, is invoked after each
// retryable failure, including the one that exhausts the budget, with the
// 1-indexed number of the attempt that failed.
type RetryPolicy struct {
	MaxRetries   int
	Backoff      Backoff
	InitialDelay time.Duration
	MaxDelay     time.Duration
	OnRetry      func(err error, attempt int)
}

// DefaultRetryPolicy provides sensible defaults for remote calls
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		Backoff:      BackoffExponential,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
	}
}

// delay returns the pause before retry k (1-indexed):
// min(maxDelay, initialDelay * 2^(k-1)) for exponential, initialDelay for
// constant.
func (p RetryPolicy) delay(retry int) time.Duration {
	if p.Backoff != BackoffExponential {
		return p.InitialDelay
	}
	d := p.InitialDelay
	for i := 1; i < retry; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Retry executes op, retrying transient failures up to MaxRetries times, so
// op runs at most MaxRetries+1 times. Fatal and unclassified errors are
// returned immediately.
func Retry(ctx context.Context, policy RetryPolicy, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(policy.delay(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := op()
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
		lastErr = err
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1)
		}
	}
	return fmt.Errorf("max retry attempts (%d) exceeded: %w", policy.MaxRetries, lastErr)
}
