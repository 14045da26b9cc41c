package errors

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"fidelity/internal/logging"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts  int           // Maximum number of retry attempts after the first call (default: 3)
	BaseDelay    time.Duration // Base delay between retries (default: 1s)
	MaxDelay     time.Duration // Maximum delay between retries (default: 30s)
	Multiplier   float64       // Backoff growth factor; 1.0 yields a fixed delay (default: 2.0)
	JitterFactor float64       // Jitter factor for randomization (default: 0.25 = ±25%)
}

// DefaultRetryConfig returns sensible defaults for exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		BaseDelay:    1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.25,
	}
}

// FixedRetryConfig returns a configuration that waits the same delay between
// every retry, with no jitter. Used where the downstream service documents a
// fixed pacing requirement rather than exponential backoff.
func FixedRetryConfig(maxAttempts int, delay time.Duration) RetryConfig {
	return RetryConfig{
		MaxAttempts: maxAttempts,
		BaseDelay:   delay,
		MaxDelay:    delay,
		Multiplier:  1.0,
	}
}

// RetryableFunc is a function that can be retried.
type RetryableFunc func(ctx context.Context) error

// Retry executes a function with backoff retry logic.
func Retry(ctx context.Context, config RetryConfig, fn RetryableFunc) error {
	_, err := RetryWithResult(ctx, config, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryWithResult executes a function that returns a result with retry logic.
func RetryWithResult[T any](ctx context.Context, config RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	return RetryWithResultAndLog(ctx, config, fn, nil)
}

// RetryWithResultAndLog executes a function that returns a result with retry
// logic and a custom logger.
func RetryWithResultAndLog[T any](ctx context.Context, config RetryConfig, fn func(ctx context.Context) (T, error), logger logging.Logger) (T, error) {
	if logger == nil {
		logger = logging.NewComponentLogger("retry")
	}

	var lastErr error
	var zeroValue T

	for attempt := 0; attempt <= config.MaxAttempts; attempt++ {
		// Check context cancellation before each attempt.
		select {
		case <-ctx.Done():
			logger.Debug("Context cancelled, stopping retries")
			return zeroValue, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("Retry succeeded after %d attempts", attempt+1)
			}
			return result, nil
		}

		lastErr = err
		logger.Debug("Attempt %d/%d failed: %v", attempt+1, config.MaxAttempts+1, err)

		if !IsTransient(err) {
			logger.Debug("Error is not transient, stopping retries")
			return zeroValue, err
		}

		// Don't sleep after the last attempt.
		if attempt == config.MaxAttempts {
			logger.Warn("Max retries (%d) exhausted", config.MaxAttempts+1)
			break
		}

		delay := calculateBackoff(attempt, config)
		logger.Debug("Waiting %v before next retry", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			logger.Debug("Context cancelled during backoff")
			return zeroValue, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}

	return zeroValue, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// calculateBackoff computes the delay before the next attempt. With the
// default multiplier the sequence is baseDelay * 2^attempt capped at
// MaxDelay, randomized by the jitter factor.
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	multiplier := config.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	delay := time.Duration(float64(config.BaseDelay) * math.Pow(multiplier, float64(attempt)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if config.JitterFactor > 0 {
		jitter := float64(delay) * config.JitterFactor
		jitterAmount := (rand.Float64()*2 - 1) * jitter
		delay = time.Duration(float64(delay) + jitterAmount)

		if delay < 0 {
			delay = config.BaseDelay
		}
		if config.MaxDelay > 0 && delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return delay
}
