package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"gorm.io/gorm"
)

// ErrDuplicateMigration is returned when a provider id is already stored
var ErrDuplicateMigration = errors.New("migration record already exists")

// ErrMigrationNotFound is returned when deleting a provider id that is not stored
var ErrMigrationNotFound = errors.New("migration record not found")

// GetMigrationRecord retrieves a record by its provider id.
// Returns nil if the record does not exist.
func (d *Database) GetMigrationRecord(ctx context.Context, providerID string) (*models.MigrationRecord, error) {
	var rec models.MigrationRecord
	err := d.db.WithContext(ctx).Where("provider_id = ?", providerID).First(&rec).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get migration record: %w", err)
	}

	return &rec, nil
}

// CreateMigrationRecord inserts a record seen for the first time
func (d *Database) CreateMigrationRecord(ctx context.Context, rec *models.MigrationRecord) error {
	if rec.ProviderID == "" {
		return fmt.Errorf("provider id is required")
	}

	err := d.db.WithContext(ctx).Create(rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", ErrDuplicateMigration, rec.ProviderID)
	}
	if err != nil {
		return fmt.Errorf("failed to create migration record: %w", err)
	}

	return nil
}

// UpdateMigrationRecordState writes the mutable fields of an existing record.
// The upstream creation time and identity columns are never touched.
func (d *Database) UpdateMigrationRecordState(ctx context.Context, rec *models.MigrationRecord) error {
	if rec.ID == 0 {
		return fmt.Errorf("migration record ID is required for update")
	}

	result := d.db.WithContext(ctx).Model(rec).
		Select(
			"state", "warnings_count", "failure_reason", "source_url", "log_url",
			"migration_source_id", "migration_source_name", "migration_source_type", "migration_source_url",
			"completed_at", "duration_ms", "updated_at",
		).
		Updates(rec)

	if result.Error != nil {
		return fmt.Errorf("failed to update migration record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("migration record with id %d not found", rec.ID)
	}

	return nil
}

// ListMigrationRecords returns records newest first
func (d *Database) ListMigrationRecords(ctx context.Context, f models.MigrationFilter) ([]*models.MigrationRecord, error) {
	var recs []*models.MigrationRecord
	err := d.db.WithContext(ctx).
		Scopes(WithMigrationFilter(f), NewestFirst("created_at"), WithPagination(f.Limit, f.Offset)).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list migration records: %w", err)
	}

	return recs, nil
}

// CountMigrationRecords counts records matching the filter, ignoring paging
func (d *Database) CountMigrationRecords(ctx context.Context, f models.MigrationFilter) (int64, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&models.MigrationRecord{}).Scopes(WithMigrationFilter(f)).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count migration records: %w", err)
	}
	return count, nil
}

// DeleteMigrationRecord removes a record. Sync never calls this.
func (d *Database) DeleteMigrationRecord(ctx context.Context, providerID string) error {
	result := d.db.WithContext(ctx).Where("provider_id = ?", providerID).Delete(&models.MigrationRecord{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete migration record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrMigrationNotFound, providerID)
	}
	return nil
}
