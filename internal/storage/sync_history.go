package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"gorm.io/gorm"
)

// ErrSyncHistoryNotFound is returned when a sync id has no history row
var ErrSyncHistoryNotFound = errors.New("sync history not found")

// ErrSyncHistoryConflict is returned when a history row changed underneath an update
var ErrSyncHistoryConflict = errors.New("sync history was modified concurrently")

// CreateSyncHistory persists a new run with every organization at zero
func (d *Database) CreateSyncHistory(ctx context.Context, h *models.SyncHistory) error {
	if h.SyncID == "" {
		return fmt.Errorf("sync id is required")
	}
	if h.Status == "" {
		h.Status = models.SyncStatusInProgress
	}
	if h.Organizations == nil {
		h.Organizations = []models.SyncHistoryOrg{}
	}

	if err := d.db.WithContext(ctx).Create(h).Error; err != nil {
		return fmt.Errorf("failed to create sync history: %w", err)
	}
	return nil
}

// GetSyncHistory retrieves a run by sync id.
// Returns nil if the run does not exist.
func (d *Database) GetSyncHistory(ctx context.Context, syncID string) (*models.SyncHistory, error) {
	return getSyncHistory(d.db.WithContext(ctx), syncID)
}

func getSyncHistory(db *gorm.DB, syncID string) (*models.SyncHistory, error) {
	var h models.SyncHistory
	err := db.Where("sync_id = ?", syncID).First(&h).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync history: %w", err)
	}
	return &h, nil
}

// UpdateSyncHistoryOrg records one organization's completion and increments
// the completed counter. Each organization can be recorded once.
func (d *Database) UpdateSyncHistoryOrg(ctx context.Context, syncID, login string, result models.OrgResult) (*models.SyncHistory, error) {
	var updated *models.SyncHistory

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		h, err := getSyncHistory(tx, syncID)
		if err != nil {
			return err
		}
		if h == nil {
			return fmt.Errorf("%w: %s", ErrSyncHistoryNotFound, syncID)
		}

		prev := h.CompletedOrganizations
		if err := h.ApplyOrgResult(login, result); err != nil {
			return err
		}

		res := tx.Model(h).
			Where("completed_organizations = ? AND status = ?", prev, models.SyncStatusInProgress).
			Select("organizations", "completed_organizations", "updated_at").
			Updates(h)
		if res.Error != nil {
			return fmt.Errorf("failed to update sync history organization: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrSyncHistoryConflict, syncID)
		}

		updated = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CompleteSyncHistory stamps the end time and terminal status of a run
func (d *Database) CompleteSyncHistory(ctx context.Context, syncID string, status models.SyncStatus, errMsg *string) (*models.SyncHistory, error) {
	var updated *models.SyncHistory

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		h, err := getSyncHistory(tx, syncID)
		if err != nil {
			return err
		}
		if h == nil {
			return fmt.Errorf("%w: %s", ErrSyncHistoryNotFound, syncID)
		}

		if err := h.Finish(status, time.Now().UTC()); err != nil {
			return err
		}
		h.ErrorMessage = errMsg

		res := tx.Model(h).
			Where("status = ?", models.SyncStatusInProgress).
			Select("status", "end_time", "error_message", "updated_at").
			Updates(h)
		if res.Error != nil {
			return fmt.Errorf("failed to complete sync history: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrSyncHistoryConflict, syncID)
		}

		updated = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListSyncHistories returns runs for an enterprise, newest first
func (d *Database) ListSyncHistories(ctx context.Context, enterprise string, limit, offset int) ([]*models.SyncHistory, error) {
	var histories []*models.SyncHistory
	err := d.db.WithContext(ctx).
		Where("enterprise_name = ?", enterprise).
		Scopes(NewestFirst("start_time"), WithPagination(limit, offset)).
		Find(&histories).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sync histories: %w", err)
	}
	return histories, nil
}

// GetLatestCompletedSyncHistory returns the most recent completed run, or nil
func (d *Database) GetLatestCompletedSyncHistory(ctx context.Context, enterprise string) (*models.SyncHistory, error) {
	var h models.SyncHistory
	err := d.db.WithContext(ctx).
		Scopes(WithEnterprise(enterprise), WithSyncStatus(models.SyncStatusCompleted), NewestFirst("start_time")).
		First(&h).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest completed sync history: %w", err)
	}
	return &h, nil
}

// ListActiveSyncHistories returns in-progress runs for an enterprise
func (d *Database) ListActiveSyncHistories(ctx context.Context, enterprise string) ([]*models.SyncHistory, error) {
	var histories []*models.SyncHistory
	err := d.db.WithContext(ctx).
		Scopes(WithEnterprise(enterprise), WithSyncStatus(models.SyncStatusInProgress), NewestFirst("start_time")).
		Find(&histories).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active sync histories: %w", err)
	}
	return histories, nil
}

// RecoverStaleSyncHistories marks runs stuck in progress for longer than
// timeout as failed. This recovers from a crash mid-run.
func (d *Database) RecoverStaleSyncHistories(ctx context.Context, timeout time.Duration) (int64, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-timeout)

	result := d.db.WithContext(ctx).Model(&models.SyncHistory{}).
		Where("status = ? AND start_time < ?", models.SyncStatusInProgress, cutoff).
		Updates(map[string]any{
			"status":        models.SyncStatusFailed,
			"end_time":      now,
			"error_message": fmt.Sprintf("Auto-recovered: sync was in progress for more than %s", timeout),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to recover stale sync histories: %w", result.Error)
	}

	return result.RowsAffected, nil
}
