package errors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// RetryPolicy defines the backoff behavior for failed operations.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
}

// NewRetryPolicy creates a retry policy with default backoff parameters.
func NewRetryPolicy(maxAttempts int, baseDelay time.Duration) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// CalculateDelay calculates the delay before the given retry attempt.
func (rp *RetryPolicy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := rp.BaseDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * rp.Multiplier)
		if delay > rp.MaxDelay {
			delay = rp.MaxDelay
			break
		}
	}

	if rp.Jitter {
		// Random jitter between 50% and 100% of the calculated delay.
		jitterRange := float64(delay) * 0.5
		jitter := rand.Float64() * jitterRange
		delay = time.Duration(float64(delay)*0.5 + jitter)
	}

	return delay
}

// RetryExecutor executes operations with retry logic.
type RetryExecutor struct {
	policy *RetryPolicy
}

// NewRetryExecutor creates a retry executor with the given policy.
func NewRetryExecutor(policy *RetryPolicy) *RetryExecutor {
	return &RetryExecutor{policy: policy}
}

// Execute runs the operation, retrying retryable failures with exponential
// backoff until the attempt budget is exhausted. Rate-limit errors that carry
// a retry-after hint wait at least that long.
func (re *RetryExecutor) Execute(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 1; attempt <= re.policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("operation cancelled: %w", ctx.Err())
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		if attempt == re.policy.MaxAttempts {
			break
		}

		delay := re.policy.CalculateDelay(attempt)
		if hint := retryAfterHint(err); hint > delay {
			delay = hint
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("operation cancelled during retry delay: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return lastErr
}

func retryAfterHint(err error) time.Duration {
	var pe *PipelineError
	if errors.As(err, &pe) && pe.Kind == KindRateLimit {
		return pe.RetryAfter
	}
	return 0
}
