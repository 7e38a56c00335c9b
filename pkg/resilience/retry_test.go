package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:   maxRetries,
		Backoff:      BackoffConstant,
		InitialDelay: time.Millisecond,
	}
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(3), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	fatal := errors.New("element not found")
	err := Retry(context.Background(), fastPolicy(3), func() error {
		calls++
		return fatal
	})
	require.Error(t, err)
	assert.Equal(t, fatal, err)
	assert.Equal(t, 1, calls, "non-retryable errors must not be retried")
}

func TestRetryBoundsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(2), func() error {
		calls++
		return errors.New("timeout talking to provider")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls, "op runs at most maxRetries+1 times")
	assert.Contains(t, err.Error(), "max retry attempts (2) exceeded")
}

func TestRetryRecoversAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(3), func() error {
		calls++
		if calls < 3 {
			return MarkRetryable(errors.New("flaky"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryInvokesOnRetry(t *testing.T) {
	var attempts []int
	policy := fastPolicy(2)
	policy.OnRetry = func(err error, attempt int) {
		attempts = append(attempts, attempt)
	}

	calls := 0
	err := Retry(context.Background(), policy, func() error {
		calls++
		return errors.New("503 unavailable")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2, 3}, attempts, "onRetry sees every retryable failure, the exhausting one included")
}

func TestRetryInvokesOnRetryBeforeSuccess(t *testing.T) {
	var attempts []int
	policy := fastPolicy(3)
	policy.OnRetry = func(err error, attempt int) {
		attempts = append(attempts, attempt)
	}

	calls := 0
	err := Retry(context.Background(), policy, func() error {
		calls++
		if calls < 3 {
			return MarkRetryable(errors.New("flaky"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, attempts, "successful attempts never reach the hook")
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{
		MaxRetries:   5,
		Backoff:      BackoffConstant,
		InitialDelay: 50 * time.Millisecond,
	}

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Retry(ctx, policy, func() error {
		calls++
		return errors.New("timeout")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicyDelay(t *testing.T) {
	exp := RetryPolicy{
		Backoff:      BackoffExponential,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
	}
	assert.Equal(t, 100*time.Millisecond, exp.delay(1))
	assert.Equal(t, 200*time.Millisecond, exp.delay(2))
	assert.Equal(t, 400*time.Millisecond, exp.delay(3))
	assert.Equal(t, 800*time.Millisecond, exp.delay(4))
	assert.Equal(t, time.Second, exp.delay(5), "delay is capped at maxDelay")
	assert.Equal(t, time.Second, exp.delay(10))

	constant := RetryPolicy{
		Backoff:      BackoffConstant,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     time.Second,
	}
	assert.Equal(t, 250*time.Millisecond, constant.delay(1))
	assert.Equal(t, 250*time.Millisecond, constant.delay(4))
}
