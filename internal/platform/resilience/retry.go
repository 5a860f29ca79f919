package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/solve3fi/contracts/internal/errs"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // 0.0 to 1.0
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0.1,
	}
}

// ConflictRetryConfig suits retrying an operation that lost an optimistic
// commit race: a few quick attempts with jitter to break ties.
func ConflictRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Millisecond,
		MaxDelay:    50 * time.Millisecond,
		Jitter:      0.5,
	}
}

// Retry executes fn with exponential backoff while it keeps failing.
func Retry(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	return RetryIf(ctx, cfg, func(error) bool { return true }, fn)
}

// RetryWithResult is Retry for functions that return a value.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	return RetryIfWithResult(ctx, cfg, func(error) bool { return true }, fn)
}

// RetryIf executes fn with retry only while isRetryable accepts its error.
// A non-retryable error is returned as is.
func RetryIf(ctx context.Context, cfg RetryConfig, isRetryable func(error) bool, fn func(context.Context) error) error {
	_, err := RetryIfWithResult(ctx, cfg, isRetryable, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryIfWithResult executes fn with retry (returning a result) only while
// isRetryable accepts its error.
func RetryIfWithResult[T any](ctx context.Context, cfg RetryConfig, isRetryable func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		}
		if attempt == attempts-1 {
			break
		}

		select {
		case <-time.After(calculateBackoff(attempt, cfg.BaseDelay, cfg.MaxDelay, cfg.Jitter)):
		case <-ctx.Done():
			return zero, fmt.Errorf("retry cancelled during backoff: %w", ctx.Err())
		}
	}

	return zero, fmt.Errorf("max retry attempts reached: %w", lastErr)
}

// calculateBackoff calculates delay with exponential backoff and jitter
func calculateBackoff(attempt int, baseDelay, maxDelay time.Duration, jitter float64) time.Duration {
	delay := float64(baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}

	// randomize by ±jitter
	if jitter > 0 {
		jitterAmount := delay * jitter
		delay = delay - jitterAmount + rand.Float64()*jitterAmount*2
	}

	return time.Duration(delay)
}

// IsRetryable reports whether err is worth another attempt. Engine errors
// are deterministic and never retried; neither are an open circuit or a
// cancelled context.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errs.KindOf(err) == "internal"
}
