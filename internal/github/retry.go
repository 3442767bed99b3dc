package github

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig returns the retry policy used for sync traffic
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     4,
		InitialBackoff:  time.Second,
		MaxBackoff:      30 * time.Second,
		BackoffMultiple: 2.0,
	}
}

const (
	// SecondaryRateLimitBackoff is used when GitHub gives no Retry-After
	SecondaryRateLimitBackoff = 60 * time.Second
	// RateLimitResetBuffer is added to a parsed reset time
	RateLimitResetBuffer = 5 * time.Second
	// MinRateLimitWait and MaxRateLimitWait bound any rate limit wait
	MinRateLimitWait = 10 * time.Second
	MaxRateLimitWait = 15 * time.Minute
)

// Retryer retries retryable GitHub errors with exponential backoff
type Retryer struct {
	config      RetryConfig
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// NewRetryer creates a new retryer
func NewRetryer(config RetryConfig, rateLimiter *RateLimiter, logger *slog.Logger) *Retryer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.BackoffMultiple < 1 {
		config.BackoffMultiple = 1
	}
	return &Retryer{
		config:      config,
		rateLimiter: rateLimiter,
		logger:      logger,
	}
}

// rateLimitWait determines how long to wait for a rate limit to lift
func rateLimitWait(err error) time.Duration {
	wait := SecondaryRateLimitBackoff
	if resetAt, ok := ParseRateLimitResetTime(err); ok {
		wait = time.Until(resetAt) + RateLimitResetBuffer
	}
	return min(max(wait, MinRateLimitWait), MaxRateLimitWait)
}

// RetryFunc is a function that can be retried
type RetryFunc func(ctx context.Context) error

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do executes fn, retrying while the returned error is retryable.
// Non-retryable errors are returned unchanged so callers can classify them.
func (r *Retryer) Do(ctx context.Context, operation string, fn RetryFunc) error {
	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := r.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}

		err := fn(ctx)
		if err == nil {
			r.rateLimiter.ResetBackoff()
			if attempt > 1 {
				r.logger.Info("Operation succeeded after retry",
					"operation", operation,
					"attempt", attempt)
			}
			return nil
		}
		lastErr = err

		if !IsRetryableError(err) {
			return err
		}
		if attempt == r.config.MaxAttempts {
			break
		}

		var waitErr error
		switch {
		case IsRateLimitBlockedError(err), IsSecondaryRateLimitError(err):
			wait := rateLimitWait(err)
			r.logger.Warn("Rate limited, waiting before retry",
				"operation", operation,
				"attempt", attempt,
				"wait_duration", wait)
			waitErr = sleep(ctx, wait)
		case IsRateLimitError(err):
			waitErr = r.rateLimiter.HandleRateLimitError(ctx)
		default:
			r.logger.Info("Retryable error, backing off",
				"operation", operation,
				"attempt", attempt,
				"backoff", backoff,
				"error", err)
			waitErr = sleep(ctx, backoff)
			backoff = min(time.Duration(float64(backoff)*r.config.BackoffMultiple), r.config.MaxBackoff)
		}
		if waitErr != nil {
			return fmt.Errorf("context cancelled during retry of %s: %w", operation, waitErr)
		}
	}

	return fmt.Errorf("operation %s failed after %d attempts: %w",
		operation, r.config.MaxAttempts, lastErr)
}
