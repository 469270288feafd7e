package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrRetriesExhausted marks the error returned once every attempt failed.
var ErrRetriesExhausted = errors.New("max attempts exceeded")

// RetryConfig defines configuration for retry logic
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int

	// InitialBackoff is the backoff before the second attempt
	InitialBackoff time.Duration

	// MaxBackoff caps a single backoff
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64

	// Jitter adds up to 10% randomness to each backoff
	Jitter bool

	// Retryable decides whether an error is worth another attempt. Nil retries everything.
	Retryable func(error) bool

	// Immediate marks errors that are retried without sleeping, such as a
	// request rejected locally before it reached the network.
	Immediate func(error) bool

	// OnRetry is invoked before each retry with the failed attempt number.
	OnRetry func(attempt int, err error, backoff time.Duration)

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    1500 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 1.5,
		Jitter:            true,
		Retryable:         DefaultRetryableErrors,
	}
}

// DefaultRetryableErrors retries everything except context cancellation.
func DefaultRetryableErrors(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out. attempt starts at 1.
func Do[T any](ctx context.Context, config RetryConfig, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	maxAttempts := config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	sleep := config.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	var backoffs int
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, errors.WithSecondaryError(errors.Wrap(err, "retry cancelled"), lastErr)
			}
			return zero, errors.Wrap(err, "retry cancelled")
		}

		val, err := fn(ctx, attempt)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if config.Retryable != nil && !config.Retryable(err) {
			return zero, err
		}

		// Don't sleep after the last attempt
		if attempt == maxAttempts {
			break
		}

		var backoff time.Duration
		if config.Immediate == nil || !config.Immediate(err) {
			backoff = CalculateBackoff(backoffs, config)
			backoffs++
		}
		if config.OnRetry != nil {
			config.OnRetry(attempt, err, backoff)
		}
		if backoff > 0 {
			if serr := sleep(ctx, backoff); serr != nil {
				return zero, errors.WithSecondaryError(errors.Wrap(serr, "retry cancelled"), lastErr)
			}
		}
	}

	return zero, errors.Mark(errors.Wrapf(lastErr, "max attempts exceeded (%d)", maxAttempts), ErrRetriesExhausted)
}

// Retry executes a function with retry logic
func Retry(ctx context.Context, config RetryConfig, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, config, func(ctx context.Context, _ int) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// CalculateBackoff returns the wait before retry number n (0-based):
// InitialBackoff * BackoffMultiplier^n, capped by MaxBackoff, plus up to 10% jitter.
func CalculateBackoff(n int, config RetryConfig) time.Duration {
	multiplier := config.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	backoff := float64(config.InitialBackoff) * math.Pow(multiplier, float64(n))

	if config.MaxBackoff > 0 && backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}

	if config.Jitter {
		backoff += rand.Float64() * 0.1 * backoff
	}

	return time.Duration(backoff)
}
