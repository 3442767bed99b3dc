package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"gorm.io/gorm"
)

// DeleteOrgAccessStatuses removes every cached access row for an enterprise
func (d *Database) DeleteOrgAccessStatuses(ctx context.Context, enterprise string) (int64, error) {
	result := d.db.WithContext(ctx).
		Where("enterprise_name = ?", enterprise).
		Delete(&models.OrgAccessStatus{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete org access statuses: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CreateOrgAccessStatus stores the outcome of one capability check
func (d *Database) CreateOrgAccessStatus(ctx context.Context, status *models.OrgAccessStatus) error {
	if err := d.db.WithContext(ctx).Create(status).Error; err != nil {
		return fmt.Errorf("failed to create org access status: %w", err)
	}
	return nil
}

// ListOrgAccessStatuses returns the cached rows for an enterprise ordered by login
func (d *Database) ListOrgAccessStatuses(ctx context.Context, enterprise string) ([]*models.OrgAccessStatus, error) {
	var statuses []*models.OrgAccessStatus
	err := d.db.WithContext(ctx).
		Where("enterprise_name = ?", enterprise).
		Order("org_login ASC").
		Find(&statuses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list org access statuses: %w", err)
	}
	return statuses, nil
}

// GetOrgAccessStatus returns the cached row for one organization, or nil
func (d *Database) GetOrgAccessStatus(ctx context.Context, enterprise, orgLogin string) (*models.OrgAccessStatus, error) {
	var status models.OrgAccessStatus
	err := d.db.WithContext(ctx).
		Where("enterprise_name = ? AND org_login = ?", enterprise, orgLogin).
		First(&status).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get org access status: %w", err)
	}
	return &status, nil
}
