package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// StaleRunRecoverer fails runs left in progress for longer than timeout
type StaleRunRecoverer interface {
	RecoverStaleSyncHistories(ctx context.Context, timeout time.Duration) (int64, error)
}

// StaleRunReaper periodically fails sync histories stuck in progress, which
// only happens when a process died mid-run
type StaleRunReaper struct {
	store        StaleRunRecoverer
	logger       *slog.Logger
	timeout      time.Duration
	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// ReaperConfig configures the reaper. A zero Timeout disables it.
type ReaperConfig struct {
	Store        StaleRunRecoverer
	Logger       *slog.Logger
	Timeout      time.Duration
	PollInterval time.Duration
}

// NewStaleRunReaper creates a reaper
func NewStaleRunReaper(cfg ReaperConfig) (*StaleRunReaper, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}

	return &StaleRunReaper{
		store:        cfg.Store,
		logger:       cfg.Logger,
		timeout:      cfg.Timeout,
		pollInterval: cfg.PollInterval,
	}, nil
}

// Enabled reports whether the reaper does anything
func (r *StaleRunReaper) Enabled() bool {
	return r.timeout > 0
}

// Start begins the poll loop. It is a no-op when the reaper is disabled.
func (r *StaleRunReaper) Start(ctx context.Context) error {
	if !r.Enabled() {
		r.logger.Info("Stale run reaper disabled")
		return nil
	}

	r.mu.Lock()
	if r.ctx != nil {
		r.mu.Unlock()
		return fmt.Errorf("reaper already started")
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.logger.Info("Starting stale run reaper",
		"timeout", r.timeout,
		"poll_interval", r.pollInterval)

	r.wg.Add(1)
	go r.pollLoop()
	return nil
}

// Stop ends the poll loop and waits for it
func (r *StaleRunReaper) Stop() error {
	if !r.Enabled() {
		return nil
	}

	r.mu.Lock()
	if r.cancel == nil {
		r.mu.Unlock()
		return fmt.Errorf("reaper not started")
	}
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("Stale run reaper stopped")
	return nil
}

func (r *StaleRunReaper) pollLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.ReapOnce(r.ctx)

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.ReapOnce(r.ctx)
		}
	}
}

// ReapOnce fails every run older than the timeout and returns how many
func (r *StaleRunReaper) ReapOnce(ctx context.Context) int64 {
	if !r.Enabled() {
		return 0
	}

	n, err := r.store.RecoverStaleSyncHistories(ctx, r.timeout)
	if err != nil {
		r.logger.Error("Failed to recover stale sync runs", "error", err)
		return 0
	}
	if n > 0 {
		r.logger.Warn("Recovered stale sync runs", "count", n, "timeout", r.timeout)
	}
	return n
}
