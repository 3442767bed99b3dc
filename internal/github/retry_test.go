package github

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-github/v75/github"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:     attempts,
		InitialBackoff:  5 * time.Millisecond,
		MaxBackoff:      20 * time.Millisecond,
		BackoffMultiple: 2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %d, want 4", config.MaxAttempts)
	}
	if config.InitialBackoff != time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", config.MaxBackoff)
	}
	if config.BackoffMultiple != 2.0 {
		t.Errorf("BackoffMultiple = %v, want 2.0", config.BackoffMultiple)
	}
}

func TestNewRetryer_NormalisesConfig(t *testing.T) {
	retryer := NewRetryer(RetryConfig{}, NewRateLimiter(0, quietLogger()), quietLogger())

	if retryer.config.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", retryer.config.MaxAttempts)
	}
	if retryer.config.BackoffMultiple != 1 {
		t.Errorf("BackoffMultiple = %v, want 1", retryer.config.BackoffMultiple)
	}
}

func TestRetryer_DoSuccess(t *testing.T) {
	retryer := NewRetryer(fastRetryConfig(3), NewRateLimiter(0, quietLogger()), quietLogger())

	callCount := 0
	err := retryer.Do(context.Background(), "test-operation", func(ctx context.Context) error {
		callCount++
		return nil
	})

	if err != nil {
		t.Errorf("Do() error = %v, want nil", err)
	}
	if callCount != 1 {
		t.Errorf("function called %d times, want 1", callCount)
	}
}

func TestRetryer_DoWithRetryableError(t *testing.T) {
	retryer := NewRetryer(fastRetryConfig(3), NewRateLimiter(0, quietLogger()), quietLogger())

	callCount := 0
	err := retryer.Do(context.Background(), "test-operation", func(ctx context.Context) error {
		callCount++
		if callCount < 3 {
			return &APIError{StatusCode: 502, Err: ErrServerError}
		}
		return nil
	})

	if err != nil {
		t.Errorf("Do() error = %v, want nil", err)
	}
	if callCount != 3 {
		t.Errorf("function called %d times, want 3", callCount)
	}
}

func TestRetryer_DoWithNonRetryableError(t *testing.T) {
	retryer := NewRetryer(fastRetryConfig(3), NewRateLimiter(0, quietLogger()), quietLogger())

	callCount := 0
	nonRetryable := &APIError{StatusCode: 404, Err: ErrNotFound}
	err := retryer.Do(context.Background(), "test-operation", func(ctx context.Context) error {
		callCount++
		return nonRetryable
	})

	if err != nonRetryable {
		t.Errorf("Do() error = %v, want the original error unchanged", err)
	}
	if callCount != 1 {
		t.Errorf("function called %d times, want 1", callCount)
	}
}

func TestRetryer_DoMaxAttemptsExceeded(t *testing.T) {
	retryer := NewRetryer(fastRetryConfig(3), NewRateLimiter(0, quietLogger()), quietLogger())

	callCount := 0
	err := retryer.Do(context.Background(), "test-operation", func(ctx context.Context) error {
		callCount++
		return &APIError{StatusCode: 503, Err: ErrServerError}
	})

	if err == nil {
		t.Fatal("Do() error = nil, want error")
	}
	if !errors.Is(err, ErrServerError) {
		t.Errorf("Do() error = %v, want it to wrap ErrServerError", err)
	}
	if callCount != 3 {
		t.Errorf("function called %d times, want 3", callCount)
	}
}

func TestRetryer_DoWithCancelledContext(t *testing.T) {
	config := fastRetryConfig(5)
	config.InitialBackoff = time.Second
	retryer := NewRetryer(config, NewRateLimiter(0, quietLogger()), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0
	err := retryer.Do(ctx, "test-operation", func(ctx context.Context) error {
		callCount++
		cancel()
		return &APIError{StatusCode: 500, Err: ErrServerError}
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if callCount != 1 {
		t.Errorf("function called %d times, want 1", callCount)
	}
}

func TestRateLimitWait(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "https://api.github.com/graphql", nil)

	tests := []struct {
		name string
		err  error
		min  time.Duration
		max  time.Duration
	}{
		{
			name: "no reset information uses secondary backoff",
			err:  errors.New("secondary rate limit"),
			min:  SecondaryRateLimitBackoff,
			max:  SecondaryRateLimitBackoff,
		},
		{
			name: "reset soon clamps to minimum",
			err: &github.RateLimitError{
				Rate:     github.Rate{Reset: github.Timestamp{Time: time.Now().Add(time.Second)}},
				Response: &http.Response{StatusCode: 403, Request: req},
			},
			min: MinRateLimitWait,
			max: MinRateLimitWait,
		},
		{
			name: "reset far away clamps to maximum",
			err: &github.RateLimitError{
				Rate:     github.Rate{Reset: github.Timestamp{Time: time.Now().Add(2 * time.Hour)}},
				Response: &http.Response{StatusCode: 403, Request: req},
			},
			min: MaxRateLimitWait,
			max: MaxRateLimitWait,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rateLimitWait(tt.err)
			if got < tt.min || got > tt.max {
				t.Errorf("rateLimitWait() = %v, want within [%v, %v]", got, tt.min, tt.max)
			}
		})
	}
}
