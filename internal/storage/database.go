package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/config"
	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Database is the GORM-backed store for the four tracker collections
type Database struct {
	db  *gorm.DB
	cfg config.DatabaseConfig
}

func NewDatabase(cfg config.DatabaseConfig) (*Database, error) {
	dialer, err := NewDialectDialer(cfg)
	if err != nil {
		return nil, err
	}

	// Ensure data directory exists for file-backed SQLite
	if cfg.Type == DBTypeSQLite && !isMemoryDSN(cfg.DSN) && !strings.HasPrefix(cfg.DSN, "file:") {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := gorm.Open(dialer.Dialect(), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := dialer.ConfigureConnection(db); err != nil {
		return nil, fmt.Errorf("failed to configure database connection: %w", err)
	}

	return &Database{
		db:  db,
		cfg: cfg,
	}, nil
}

// Migrate creates or updates the tracker tables
func (d *Database) Migrate() error {
	slog.Info("Running database migrations...", "type", d.cfg.Type)

	if err := d.db.AutoMigrate(
		&models.MigrationRecord{},
		&models.OrgAccessStatus{},
		&models.SyncHistory{},
		&models.CronConfig{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	slog.Info("Database migrations completed successfully")
	return nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB exposes the underlying GORM handle
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Ping checks the database connection
func (d *Database) Ping() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
