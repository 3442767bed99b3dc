package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetCronConfig returns the schedule for an enterprise, or nil
func (d *Database) GetCronConfig(ctx context.Context, enterprise string) (*models.CronConfig, error) {
	var cfg models.CronConfig
	err := d.db.WithContext(ctx).Where("enterprise_name = ?", enterprise).First(&cfg).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cron config: %w", err)
	}
	return &cfg, nil
}

// UpsertCronConfig creates or replaces the schedule for an enterprise
func (d *Database) UpsertCronConfig(ctx context.Context, cfg *models.CronConfig) error {
	if cfg.EnterpriseName == "" {
		return fmt.Errorf("enterprise name is required")
	}

	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "enterprise_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"schedule", "enabled", "last_run", "next_run", "updated_at"}),
	}).Create(cfg).Error
	if err != nil {
		return fmt.Errorf("failed to upsert cron config: %w", err)
	}
	return nil
}

// UpdateCronRunTimes records a fired tick
func (d *Database) UpdateCronRunTimes(ctx context.Context, enterprise string, lastRun time.Time, nextRun *time.Time) error {
	result := d.db.WithContext(ctx).Model(&models.CronConfig{}).
		Where("enterprise_name = ?", enterprise).
		Updates(map[string]any{
			"last_run": lastRun,
			"next_run": nextRun,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update cron run times: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("cron config for %s not found", enterprise)
	}
	return nil
}

// ListEnabledCronConfigs returns every schedule that should have a timer
func (d *Database) ListEnabledCronConfigs(ctx context.Context) ([]*models.CronConfig, error) {
	var cfgs []*models.CronConfig
	err := d.db.WithContext(ctx).Where("enabled = ?", true).Order("enterprise_name ASC").Find(&cfgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled cron configs: %w", err)
	}
	return cfgs, nil
}
