package github

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces requests and tracks the quota GitHub reports in
// response headers. When the quota is exhausted Wait blocks until reset.
type RateLimiter struct {
	pace   *rate.Limiter
	logger *slog.Logger

	mu        sync.Mutex
	remaining int
	limit     int
	resetAt   time.Time

	backoff    time.Duration
	maxBackoff time.Duration
}

// NewRateLimiter creates a limiter allowing one request per minInterval
func NewRateLimiter(minInterval time.Duration, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &RateLimiter{
		pace:       rate.NewLimiter(limit, 1),
		logger:     logger,
		remaining:  5000,
		limit:      5000,
		backoff:    time.Second,
		maxBackoff: 5 * time.Minute,
	}
}

// Wait blocks until another request may be sent
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	exhausted := rl.remaining <= 0 && time.Now().Before(rl.resetAt)
	resetAt := rl.resetAt
	rl.mu.Unlock()

	if exhausted {
		wait := time.Until(resetAt)
		rl.logger.Warn("Rate limit exhausted, waiting for reset",
			"wait_duration", wait,
			"reset_time", resetAt)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		rl.mu.Lock()
		rl.remaining = rl.limit
		rl.mu.Unlock()
	}

	return rl.pace.Wait(ctx)
}

// UpdateLimits records the quota from a GitHub response
func (rl *RateLimiter) UpdateLimits(remaining, limit int, resetTime time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.remaining = remaining
	rl.limit = limit
	rl.resetAt = resetTime

	if limit > 0 && remaining < limit/10 {
		rl.logger.Warn("GitHub API rate limit running low",
			"remaining", remaining,
			"limit", limit,
			"reset_time", resetTime)
	}
}

// UpdateFromHeaders reads the X-RateLimit-* headers GitHub sends on REST
// and GraphQL responses alike
func (rl *RateLimiter) UpdateFromHeaders(h http.Header) {
	remaining, err1 := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	limit, err2 := strconv.Atoi(h.Get("X-RateLimit-Limit"))
	reset, err3 := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return
	}
	rl.UpdateLimits(remaining, limit, time.Unix(reset, 0))
}

// GetStatus returns the current rate limit status
func (rl *RateLimiter) GetStatus() (remaining, limit int, resetTime time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.remaining, rl.limit, rl.resetAt
}

// ResetBackoff resets the backoff duration after a successful request
func (rl *RateLimiter) ResetBackoff() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.backoff = time.Second
}

// HandleRateLimitError waits for the known reset time, or backs off
// exponentially when GitHub did not say when the quota returns
func (rl *RateLimiter) HandleRateLimitError(ctx context.Context) error {
	rl.mu.Lock()
	resetAt := rl.resetAt
	wait := time.Until(resetAt)
	if wait <= 0 {
		wait = rl.backoff
		rl.backoff = min(rl.backoff*2, rl.maxBackoff)
	}
	rl.mu.Unlock()

	rl.logger.Warn("Rate limit hit, waiting",
		"wait_duration", wait,
		"reset_time", resetAt)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		rl.mu.Lock()
		rl.remaining = rl.limit
		rl.mu.Unlock()
		return nil
	}
}

// rateLimitTransport feeds response headers into the limiter
type rateLimitTransport struct {
	base    http.RoundTripper
	limiter *RateLimiter
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if resp != nil {
		t.limiter.UpdateFromHeaders(resp.Header)
	}
	return resp, err
}
