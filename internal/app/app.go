// Package app wires the tracker's components from configuration. The server
// and the CLI share it so both run the same sync engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/config"
	"github.com/kuhlman-labs/migration-tracker/internal/github"
	"github.com/kuhlman-labs/migration-tracker/internal/metrics"
	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/kuhlman-labs/migration-tracker/internal/pubsub"
	"github.com/kuhlman-labs/migration-tracker/internal/services"
	"github.com/kuhlman-labs/migration-tracker/internal/storage"
	"github.com/kuhlman-labs/migration-tracker/internal/syncer"
	"github.com/kuhlman-labs/migration-tracker/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App holds the wired components
type App struct {
	Config       *config.Config
	DB           *storage.Database
	Orchestrator *syncer.Orchestrator
	Scheduler    *worker.CronScheduler
	Reaper       *worker.StaleRunReaper
	Service      *services.SyncService
	// Registry is nil when metrics are disabled
	Registry *prometheus.Registry

	progress  *pubsub.Topic[models.EnterpriseProgress]
	histories *pubsub.Topic[models.SyncHistory]
	logger    *slog.Logger
	started   bool
}

// Options adjusts wiring for callers that are not the long-running server
type Options struct {
	// Provider replaces the GitHub client for every credential
	Provider syncer.Provider
}

// New opens the database and wires the sync engine. Close releases it.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := storage.NewDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a := &App{
		Config:    cfg,
		DB:        db,
		progress:  pubsub.NewTopic[models.EnterpriseProgress](cfg.Sync.ProgressBufferSize),
		histories: pubsub.NewTopic[models.SyncHistory](cfg.Sync.ProgressBufferSize),
		logger:    logger,
	}

	if err := a.wire(opts); err != nil {
		a.closeStorage()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(opts Options) error {
	cfg := a.Config
	logger := a.logger

	var syncMetrics syncer.Metrics
	if cfg.Metrics.Enabled {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m, err := metrics.NewSyncMetrics(a.Registry)
		if err != nil {
			return err
		}
		if err := m.ObserveDropped("progress", a.progress.Dropped); err != nil {
			return err
		}
		if err := m.ObserveDropped("history", a.histories.Dropped); err != nil {
			return err
		}
		syncMetrics = m
	}

	newProvider, unattended, err := providers(cfg.GitHub, logger, opts)
	if err != nil {
		return err
	}

	access := syncer.NewAccessChecker(a.DB, cfg.Sync.AccessCacheTTL(), logger)
	a.Orchestrator = syncer.NewOrchestrator(syncer.OrchestratorConfig{
		Fetcher:             syncer.NewFetcher(cfg.Sync.PageSize, cfg.Sync.PageDelay(), logger),
		Processor:           syncer.NewProcessor(a.DB, logger),
		History:             syncer.NewHistoryRecorder(a.DB, a.histories, logger),
		Access:              access,
		ProgressTopic:       a.progress,
		NewProvider:         newProvider,
		Unattended:          unattended,
		ProgressBatchSize:   cfg.Sync.ProgressBatchSize,
		AllowConcurrentRuns: cfg.Sync.AllowConcurrentRuns,
		Metrics:             syncMetrics,
		Logger:              logger,
	})

	a.Scheduler, err = worker.NewCronScheduler(worker.SchedulerConfig{
		Store:     a.DB,
		Histories: a.DB,
		Runner:    a.Orchestrator,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	a.Reaper, err = worker.NewStaleRunReaper(worker.ReaperConfig{
		Store:   a.DB,
		Logger:  logger,
		Timeout: cfg.Sync.StaleRunTimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to create stale run reaper: %w", err)
	}

	a.Service, err = services.NewSyncService(services.SyncServiceConfig{
		Orchestrator:  a.Orchestrator,
		Access:        access,
		Scheduler:     a.Scheduler,
		Histories:     a.DB,
		Records:       a.DB,
		CronConfigs:   a.DB,
		ProgressTopic: a.progress,
		HistoryTopic:  a.histories,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create sync service: %w", err)
	}
	return nil
}

// providers builds the per-credential and unattended provider constructors
func providers(cfg config.GitHubConfig, logger *slog.Logger, opts Options) (syncer.ProviderFactory, syncer.UnattendedProvider, error) {
	if opts.Provider != nil {
		p := opts.Provider
		return func(string) (syncer.Provider, error) { return p, nil },
			func() (syncer.Provider, error) { return p, nil },
			nil
	}

	factory := &github.ClientFactory{
		BaseURL:     cfg.BaseURL,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		RetryConfig: github.DefaultRetryConfig(),
		Logger:      logger,
	}
	creds, err := github.NewCredentialProvider(cfg.Token, github.AppCredentials{
		AppID:          cfg.AppID,
		PrivateKey:     cfg.AppPrivateKey,
		InstallationID: cfg.AppInstallationID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load unattended GitHub credential: %w", err)
	}
	if !creds.Available() {
		logger.Warn("No GitHub token or App configured; scheduled syncs will fail until one is set")
	}

	newProvider, unattended := syncer.GitHubProviders(factory, creds)
	return newProvider, unattended, nil
}

// ApplyScheduleSeeds applies the cron seed file, if one is configured.
// Invalid entries are logged and skipped.
func (a *App) ApplyScheduleSeeds(ctx context.Context) (int, error) {
	seeds, err := config.LoadScheduleSeeds(a.Config.Cron.SeedFile)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, seed := range seeds {
		if _, err := a.Scheduler.Apply(ctx, seed.Enterprise, seed.Schedule, seed.Enabled); err != nil {
			a.logger.Warn("Skipping schedule seed", "enterprise", seed.Enterprise, "schedule", seed.Schedule, "error", err)
			continue
		}
		applied++
	}
	if len(seeds) > 0 {
		a.logger.Info("Applied schedule seeds", "applied", applied, "total", len(seeds))
	}
	return applied, nil
}

// Start applies the seed file, restores stored schedules and starts the
// background workers
func (a *App) Start(ctx context.Context) error {
	if _, err := a.ApplyScheduleSeeds(ctx); err != nil {
		return err
	}
	restored, err := a.Scheduler.Restore(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore schedules: %w", err)
	}
	a.logger.Info("Restored sync schedules", "count", restored)

	a.Scheduler.Start()
	if err := a.Reaper.Start(ctx); err != nil {
		return err
	}
	a.started = true
	return nil
}

// Shutdown stops background work, waits for in-flight runs and closes storage
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.Scheduler.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if a.started {
		if err := a.Reaper.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("reaper: %w", err))
		}
	}
	if err := a.Orchestrator.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("sync runs: %w", err))
	}
	a.closeStorage()
	return errors.Join(errs...)
}

func (a *App) closeStorage() {
	a.progress.Close()
	a.histories.Close()
	if err := a.DB.Close(); err != nil {
		a.logger.Warn("Failed to close database", "error", err)
	}
}
