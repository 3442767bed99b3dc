package storage

import (
	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"gorm.io/gorm"
)

// GORM scopes for migration record and sync history queries

// WithEnterprise filters by enterprise name
func WithEnterprise(enterprise string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if enterprise != "" {
			return db.Where("enterprise_name = ?", enterprise)
		}
		return db
	}
}

// WithOrganization filters by organization login (single or multiple)
func WithOrganization(org interface{}) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch v := org.(type) {
		case string:
			if v != "" {
				return db.Where("organization_name = ?", v)
			}
		case []string:
			if len(v) > 0 {
				return db.Where("organization_name IN ?", v)
			}
		}
		return db
	}
}

// WithMigrationState filters by migration state (single or multiple)
func WithMigrationState(state interface{}) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch v := state.(type) {
		case models.MigrationState:
			if v != "" {
				return db.Where("state = ?", v)
			}
		case []models.MigrationState:
			if len(v) > 0 {
				return db.Where("state IN ?", v)
			}
		}
		return db
	}
}

// WithSyncStatus filters sync histories by status
func WithSyncStatus(status models.SyncStatus) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if status != "" {
			return db.Where("status = ?", status)
		}
		return db
	}
}

// WithMigrationFilter applies every field of f except paging
func WithMigrationFilter(f models.MigrationFilter) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = WithEnterprise(f.EnterpriseName)(db)
		db = WithOrganization(f.OrganizationName)(db)
		return WithMigrationState(f.State)(db)
	}
}

// WithPagination applies limit and offset. Non-positive values are ignored.
func WithPagination(limit, offset int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if limit > 0 {
			db = db.Limit(limit)
		}
		if offset > 0 {
			db = db.Offset(offset)
		}
		return db
	}
}

// NewestFirst orders by column descending. id breaks ties.
func NewestFirst(column string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Order(column + " DESC").Order("id DESC")
	}
}
