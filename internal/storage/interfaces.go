package storage

import (
	"context"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/models"
)

// MigrationRecordReader defines read operations for migration records.
type MigrationRecordReader interface {
	// GetMigrationRecord retrieves a record by provider id, nil if absent.
	GetMigrationRecord(ctx context.Context, providerID string) (*models.MigrationRecord, error)
	// ListMigrationRecords returns records matching the filter.
	ListMigrationRecords(ctx context.Context, f models.MigrationFilter) ([]*models.MigrationRecord, error)
	// CountMigrationRecords counts records matching the filter.
	CountMigrationRecords(ctx context.Context, f models.MigrationFilter) (int64, error)
}

// MigrationRecordWriter defines write operations for migration records.
type MigrationRecordWriter interface {
	CreateMigrationRecord(ctx context.Context, rec *models.MigrationRecord) error
	UpdateMigrationRecordState(ctx context.Context, rec *models.MigrationRecord) error
	DeleteMigrationRecord(ctx context.Context, providerID string) error
}

// MigrationRecordStore combines read and write operations for migration records.
type MigrationRecordStore interface {
	MigrationRecordReader
	MigrationRecordWriter
}

// OrgAccessStore defines operations for the cached access checks.
type OrgAccessStore interface {
	DeleteOrgAccessStatuses(ctx context.Context, enterprise string) (int64, error)
	CreateOrgAccessStatus(ctx context.Context, status *models.OrgAccessStatus) error
	ListOrgAccessStatuses(ctx context.Context, enterprise string) ([]*models.OrgAccessStatus, error)
	GetOrgAccessStatus(ctx context.Context, enterprise, orgLogin string) (*models.OrgAccessStatus, error)
}

// SyncHistoryStore defines operations for the per-run audit trail.
type SyncHistoryStore interface {
	CreateSyncHistory(ctx context.Context, h *models.SyncHistory) error
	GetSyncHistory(ctx context.Context, syncID string) (*models.SyncHistory, error)
	UpdateSyncHistoryOrg(ctx context.Context, syncID, login string, result models.OrgResult) (*models.SyncHistory, error)
	CompleteSyncHistory(ctx context.Context, syncID string, status models.SyncStatus, errMsg *string) (*models.SyncHistory, error)
	ListSyncHistories(ctx context.Context, enterprise string, limit, offset int) ([]*models.SyncHistory, error)
	GetLatestCompletedSyncHistory(ctx context.Context, enterprise string) (*models.SyncHistory, error)
	ListActiveSyncHistories(ctx context.Context, enterprise string) ([]*models.SyncHistory, error)
	RecoverStaleSyncHistories(ctx context.Context, timeout time.Duration) (int64, error)
}

// CronConfigStore defines operations for per-enterprise schedules.
type CronConfigStore interface {
	GetCronConfig(ctx context.Context, enterprise string) (*models.CronConfig, error)
	UpsertCronConfig(ctx context.Context, cfg *models.CronConfig) error
	UpdateCronRunTimes(ctx context.Context, enterprise string, lastRun time.Time, nextRun *time.Time) error
	ListEnabledCronConfigs(ctx context.Context) ([]*models.CronConfig, error)
}

// Compile-time interface checks.
var (
	_ MigrationRecordStore = (*Database)(nil)
	_ OrgAccessStore       = (*Database)(nil)
	_ SyncHistoryStore     = (*Database)(nil)
	_ CronConfigStore      = (*Database)(nil)
)
