package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/logging"
	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/kuhlman-labs/migration-tracker/internal/storage"
	"github.com/kuhlman-labs/migration-tracker/internal/syncer"
	"github.com/robfig/cron/v3"
)

// SchedulingError is returned when a schedule cannot be registered. Nothing
// is changed when it is returned.
type SchedulingError struct {
	Enterprise string
	Schedule   string
	Err        error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("invalid schedule %q for enterprise %s: %v", e.Schedule, e.Enterprise, e.Err)
}

func (e *SchedulingError) Unwrap() error {
	return e.Err
}

// SyncRunner runs a sync to completion
type SyncRunner interface {
	Run(ctx context.Context, req syncer.Request) (*syncer.Result, error)
}

// LatestRunFinder finds the organization set of the last good run
type LatestRunFinder interface {
	GetLatestCompletedSyncHistory(ctx context.Context, enterprise string) (*models.SyncHistory, error)
}

// SchedulerConfig wires a CronScheduler
type SchedulerConfig struct {
	Store     storage.CronConfigStore
	Histories LatestRunFinder
	Runner    SyncRunner
	Logger    *slog.Logger
	Location  *time.Location
	Now       func() time.Time
}

type registration struct {
	id       cron.EntryID
	spec     string
	schedule cron.Schedule
}

// CronScheduler keeps at most one timer per enterprise. Each tick re-runs
// the organizations of the enterprise's last completed sync.
type CronScheduler struct {
	cron   *cron.Cron
	parser cron.Parser
	store  storage.CronConfigStore
	finder LatestRunFinder
	runner SyncRunner
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]registration

	// applyMu keeps the stored config and the live timer in step
	applyMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewCronScheduler creates a scheduler. Timers only fire after Start.
func NewCronScheduler(cfg SchedulerConfig) (*CronScheduler, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("cron config store is required")
	}
	if cfg.Histories == nil {
		return nil, fmt.Errorf("sync history store is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("sync runner is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cronLogger := logging.CronLogger(cfg.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	return &CronScheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		parser:  parser,
		store:   cfg.Store,
		finder:  cfg.Histories,
		runner:  cfg.Runner,
		logger:  cfg.Logger,
		now:     cfg.Now,
		entries: make(map[string]registration),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Parse validates a cron expression
func (s *CronScheduler) Parse(enterprise, spec string) (cron.Schedule, error) {
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return nil, &SchedulingError{Enterprise: enterprise, Schedule: spec, Err: err}
	}
	return sched, nil
}

// Schedule replaces any timer for enterprise with one firing on spec and
// returns the next fire time
func (s *CronScheduler) Schedule(enterprise, spec string) (time.Time, error) {
	sched, err := s.Parse(enterprise, spec)
	if err != nil {
		return time.Time{}, err
	}
	s.register(enterprise, spec, sched)
	return sched.Next(s.now()), nil
}

func (s *CronScheduler) register(enterprise, spec string, sched cron.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[enterprise]; ok {
		s.cron.Remove(old.id)
	}
	id := s.cron.Schedule(sched, cron.FuncJob(func() { s.tick(enterprise) }))
	s.entries[enterprise] = registration{id: id, spec: spec, schedule: sched}

	s.logger.Info("Sync scheduled", "enterprise", enterprise, "schedule", spec)
}

// Stop removes the timer for enterprise. It reports whether one existed.
func (s *CronScheduler) Stop(enterprise string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.entries[enterprise]
	if !ok {
		return false
	}
	s.cron.Remove(reg.id)
	delete(s.entries, enterprise)

	s.logger.Info("Sync schedule stopped", "enterprise", enterprise)
	return true
}

// Has reports whether enterprise has an active timer
func (s *CronScheduler) Has(enterprise string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[enterprise]
	return ok
}

// ActiveCount returns the number of active timers
func (s *CronScheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Enterprises returns the enterprises with an active timer, sorted
func (s *CronScheduler) Enterprises() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextRun returns when enterprise's timer fires next
func (s *CronScheduler) NextRun(enterprise string) (time.Time, bool) {
	s.mu.Lock()
	reg, ok := s.entries[enterprise]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return reg.schedule.Next(s.now()), true
}

// Apply stores the schedule for enterprise and starts or stops its timer to
// match. An invalid expression is rejected before anything is written.
func (s *CronScheduler) Apply(ctx context.Context, enterprise, spec string, enabled bool) (*models.CronConfig, error) {
	if enterprise == "" {
		return nil, fmt.Errorf("enterprise name is required")
	}
	sched, err := s.Parse(enterprise, spec)
	if err != nil {
		return nil, err
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	cfg, err := s.store.GetCronConfig(ctx, enterprise)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &models.CronConfig{EnterpriseName: enterprise}
	}
	cfg.Schedule = spec
	cfg.Enabled = enabled
	cfg.NextRun = nil
	if enabled {
		next := sched.Next(s.now())
		cfg.NextRun = &next
	}

	if err := s.store.UpsertCronConfig(ctx, cfg); err != nil {
		return nil, err
	}

	if enabled {
		s.register(enterprise, spec, sched)
	} else {
		s.Stop(enterprise)
	}
	return cfg, nil
}

// Restore registers a timer for every enabled schedule in the store.
// Schedules that no longer parse are logged and skipped.
func (s *CronScheduler) Restore(ctx context.Context) (int, error) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	cfgs, err := s.store.ListEnabledCronConfigs(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, cfg := range cfgs {
		sched, err := s.Parse(cfg.EnterpriseName, cfg.Schedule)
		if err != nil {
			s.logger.Error("Skipping stored schedule", "enterprise", cfg.EnterpriseName, "error", err)
			continue
		}
		s.register(cfg.EnterpriseName, cfg.Schedule, sched)

		next := sched.Next(s.now())
		cfg.NextRun = &next
		if err := s.store.UpsertCronConfig(ctx, cfg); err != nil {
			s.logger.Warn("Failed to refresh next run", "enterprise", cfg.EnterpriseName, "error", err)
		}
		restored++
	}

	s.logger.Info("Sync schedules restored", "count", restored)
	return restored, nil
}

// tick re-runs the organizations of the last completed sync. Failures are
// logged and never remove the timer.
func (s *CronScheduler) tick(enterprise string) {
	ctx := s.ctx
	logger := s.logger.With("enterprise", enterprise)

	latest, err := s.finder.GetLatestCompletedSyncHistory(ctx, enterprise)
	if err != nil {
		logger.Error("Scheduled sync skipped: failed to load last completed sync", "error", err)
		return
	}
	if latest == nil || len(latest.Organizations) == 0 {
		logger.Info("Scheduled sync skipped: no completed sync to repeat")
		return
	}

	firedAt := s.now().UTC()
	res, err := s.runner.Run(ctx, syncer.Request{
		Enterprise:    enterprise,
		Organizations: latest.OrgLogins(),
		Trigger:       syncer.TriggerScheduled,
	})
	switch {
	case errors.Is(err, syncer.ErrSyncInProgress):
		logger.Warn("Scheduled sync skipped: a sync is already running")
	case err != nil:
		logger.Error("Scheduled sync failed", "error", err)
	default:
		logger.Info("Scheduled sync finished", "sync_id", res.SyncID, "state", res.State)
	}

	var next *time.Time
	if n, ok := s.NextRun(enterprise); ok {
		next = &n
	}
	if err := s.store.UpdateCronRunTimes(context.WithoutCancel(ctx), enterprise, firedAt, next); err != nil {
		logger.Error("Failed to record scheduled run", "error", err)
	}
}

// Start begins firing timers
func (s *CronScheduler) Start() {
	s.logger.Info("Starting cron scheduler", "schedules", s.ActiveCount())
	s.cron.Start()
}

// Shutdown stops every timer and waits for running ticks, or for ctx
func (s *CronScheduler) Shutdown(ctx context.Context) error {
	s.cancel()
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		s.logger.Info("Cron scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
