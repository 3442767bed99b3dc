package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kuhlman-labs/migration-tracker/internal/config"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()

	db, err := NewDatabase(config.DatabaseConfig{
		Type: "sqlite",
		DSN:  ":memory:",
	})
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewDatabase(t *testing.T) {
	cfg := config.DatabaseConfig{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "test.db"),
	}

	db, err := NewDatabase(cfg)
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	defer db.Close()

	if db.DB() == nil {
		t.Fatal("NewDatabase() db is nil")
	}
	if err := db.Ping(); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestNewDatabase_InvalidDriver(t *testing.T) {
	_, err := NewDatabase(config.DatabaseConfig{
		Type: "invalid-driver",
		DSN:  "/invalid/path/to/db.db",
	})
	if err == nil {
		t.Error("NewDatabase() expected error for invalid driver, got nil")
	}
}

func TestNewDatabase_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "test.db")

	db, err := NewDatabase(config.DatabaseConfig{Type: "sqlite", DSN: dbPath})
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
		t.Error("NewDatabase() did not create parent directory")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	for _, table := range []string{"migration_records", "org_access_statuses", "sync_histories", "cron_configs"} {
		if !db.DB().Migrator().HasTable(table) {
			t.Errorf("table %s was not created", table)
		}
	}
}
