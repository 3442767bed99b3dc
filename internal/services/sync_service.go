// Package services contains the operations the outer surfaces (HTTP API,
// MCP tools, CLI) expose over the sync engine. Handlers translate requests
// into these calls and nothing else.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/kuhlman-labs/migration-tracker/internal/pubsub"
	"github.com/kuhlman-labs/migration-tracker/internal/storage"
	"github.com/kuhlman-labs/migration-tracker/internal/syncer"
	"github.com/kuhlman-labs/migration-tracker/internal/worker"
)

const (
	DefaultHistoryLimit   = 20
	MaxHistoryLimit       = 100
	DefaultMigrationLimit = 50
	MaxMigrationLimit     = 500
)

// SyncService coordinates sync runs, their history, schedules and access checks
type SyncService struct {
	orch         *syncer.Orchestrator
	access       *syncer.AccessChecker
	scheduler    *worker.CronScheduler
	histories    storage.SyncHistoryStore
	records      storage.MigrationRecordStore
	cronStore    storage.CronConfigStore
	progress     *pubsub.Topic[models.EnterpriseProgress]
	historyTopic *pubsub.Topic[models.SyncHistory]
	logger       *slog.Logger
}

// SyncServiceConfig wires a SyncService
type SyncServiceConfig struct {
	Orchestrator  *syncer.Orchestrator
	Access        *syncer.AccessChecker
	Scheduler     *worker.CronScheduler
	Histories     storage.SyncHistoryStore
	Records       storage.MigrationRecordStore
	CronConfigs   storage.CronConfigStore
	ProgressTopic *pubsub.Topic[models.EnterpriseProgress]
	HistoryTopic  *pubsub.Topic[models.SyncHistory]
	Logger        *slog.Logger
}

// NewSyncService creates a SyncService with the required dependencies
func NewSyncService(cfg SyncServiceConfig) (*SyncService, error) {
	switch {
	case cfg.Orchestrator == nil:
		return nil, fmt.Errorf("orchestrator is required")
	case cfg.Access == nil:
		return nil, fmt.Errorf("access checker is required")
	case cfg.Scheduler == nil:
		return nil, fmt.Errorf("scheduler is required")
	case cfg.Histories == nil || cfg.Records == nil || cfg.CronConfigs == nil:
		return nil, fmt.Errorf("storage is required")
	case cfg.ProgressTopic == nil || cfg.HistoryTopic == nil:
		return nil, fmt.Errorf("broadcast topics are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &SyncService{
		orch:         cfg.Orchestrator,
		access:       cfg.Access,
		scheduler:    cfg.Scheduler,
		histories:    cfg.Histories,
		records:      cfg.Records,
		cronStore:    cfg.CronConfigs,
		progress:     cfg.ProgressTopic,
		historyTopic: cfg.HistoryTopic,
		logger:       cfg.Logger,
	}, nil
}

// TriggerRequest is a manual sync request
type TriggerRequest struct {
	Enterprise    string   `json:"enterprise_name"`
	Organizations []string `json:"organizations,omitempty"`
	RequireAccess bool     `json:"require_access,omitempty"`
	// Credential is never read from the request body
	Credential string `json:"-"`
}

// TriggerSync starts a sync and acknowledges it once the organizations are
// known. Progress keeps streaming on SubscribeProgress.
func (s *SyncService) TriggerSync(ctx context.Context, req TriggerRequest) syncer.Ack {
	ack := s.orch.Trigger(ctx, syncer.Request{
		Enterprise:    req.Enterprise,
		Credential:    req.Credential,
		Organizations: req.Organizations,
		RequireAccess: req.RequireAccess,
		Trigger:       syncer.TriggerManual,
	})
	if !ack.Success {
		s.logger.Warn("Sync trigger rejected", "enterprise", req.Enterprise, "reason", ack.Message)
	}
	return ack
}

// RunSync runs a sync to completion. It is used where nothing streams the
// progress, such as the CLI.
func (s *SyncService) RunSync(ctx context.Context, req TriggerRequest) (*syncer.Result, error) {
	return s.orch.Run(ctx, syncer.Request{
		Enterprise:    req.Enterprise,
		Credential:    req.Credential,
		Organizations: req.Organizations,
		RequireAccess: req.RequireAccess,
		Trigger:       syncer.TriggerManual,
	})
}

// RunningSyncs returns the sync ids in flight for enterprise
func (s *SyncService) RunningSyncs(enterprise string) []string {
	return s.orch.Running(enterprise)
}

func clamp(v, def, maxV int) int {
	if v <= 0 {
		return def
	}
	return min(v, maxV)
}

// ListSyncHistories returns runs for enterprise, newest first
func (s *SyncService) ListSyncHistories(ctx context.Context, enterprise string, limit, offset int) ([]*models.SyncHistory, error) {
	if enterprise == "" {
		return nil, fmt.Errorf("enterprise name is required")
	}
	histories, err := s.histories.ListSyncHistories(ctx, enterprise, clamp(limit, DefaultHistoryLimit, MaxHistoryLimit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to list sync histories: %w", err)
	}
	return histories, nil
}

// GetSyncHistory returns one run, or nil when it does not exist
func (s *SyncService) GetSyncHistory(ctx context.Context, syncID string) (*models.SyncHistory, error) {
	h, err := s.histories.GetSyncHistory(ctx, syncID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync history: %w", err)
	}
	return h, nil
}

// SubscribeProgress streams every progress broadcast for enterprise until
// ctx ends
func (s *SyncService) SubscribeProgress(ctx context.Context, enterprise string) <-chan models.EnterpriseProgress {
	return forward(ctx, s.progress.Subscribe(enterprise), func(models.EnterpriseProgress) bool { return true })
}

// SubscribeHistory streams history updates for enterprise until ctx ends.
// A non-empty syncID narrows the stream to that run.
func (s *SyncService) SubscribeHistory(ctx context.Context, enterprise, syncID string) <-chan models.SyncHistory {
	return forward(ctx, s.historyTopic.Subscribe(enterprise), func(h models.SyncHistory) bool {
		return syncID == "" || h.SyncID == syncID
	})
}

// forward relays sub to the returned channel until ctx ends or the topic
// closes. The subscription buffer absorbs slow readers.
func forward[T any](ctx context.Context, sub *pubsub.Subscription[T], keep func(T) bool) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-sub.C():
				if !ok {
					return
				}
				if !keep(v) {
					continue
				}
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// SetCronConfig stores and applies the schedule for enterprise
func (s *SyncService) SetCronConfig(ctx context.Context, enterprise, schedule string, enabled bool) (*models.CronConfig, error) {
	return s.scheduler.Apply(ctx, enterprise, schedule, enabled)
}

// GetCronConfig returns the schedule for enterprise, or nil when none is set
func (s *SyncService) GetCronConfig(ctx context.Context, enterprise string) (*models.CronConfig, error) {
	cfg, err := s.cronStore.GetCronConfig(ctx, enterprise)
	if err != nil {
		return nil, fmt.Errorf("failed to get cron config: %w", err)
	}
	return cfg, nil
}

// CheckAccess re-checks every organization of enterprise as credential
func (s *SyncService) CheckAccess(ctx context.Context, enterprise, credential string) ([]*models.OrgAccessStatus, error) {
	if enterprise == "" {
		return nil, fmt.Errorf("enterprise name is required")
	}
	provider, err := s.orch.ProviderFor(credential)
	if err != nil {
		return nil, err
	}
	return s.access.Check(ctx, enterprise, provider)
}

// ListAccessStatuses returns the last access check for enterprise
func (s *SyncService) ListAccessStatuses(ctx context.Context, enterprise string) ([]*models.OrgAccessStatus, error) {
	statuses, err := s.access.Statuses(ctx, enterprise)
	if err != nil {
		return nil, fmt.Errorf("failed to list access statuses: %w", err)
	}
	return statuses, nil
}

// MigrationPage is one page of stored migration records
type MigrationPage struct {
	Migrations []*models.MigrationRecord `json:"migrations"`
	Total      int64                     `json:"total"`
	Limit      int                       `json:"limit"`
	Offset     int                       `json:"offset"`
}

// ListMigrations returns stored records matching f with the total count
func (s *SyncService) ListMigrations(ctx context.Context, f models.MigrationFilter) (*MigrationPage, error) {
	if f.State != "" {
		if _, ok := models.ParseMigrationState(string(f.State)); !ok {
			return nil, fmt.Errorf("unknown migration state %q", f.State)
		}
	}
	f.Limit = clamp(f.Limit, DefaultMigrationLimit, MaxMigrationLimit)
	f.Offset = max(f.Offset, 0)

	recs, err := s.records.ListMigrationRecords(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	total, err := s.records.CountMigrationRecords(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to count migrations: %w", err)
	}
	return &MigrationPage{Migrations: recs, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// DeleteMigration removes one stored record. A later sync stores it again if
// the provider still reports it.
func (s *SyncService) DeleteMigration(ctx context.Context, providerID string) error {
	if err := s.records.DeleteMigrationRecord(ctx, providerID); err != nil {
		return err
	}
	s.logger.Info("Migration record deleted", "provider_id", providerID)
	return nil
}
