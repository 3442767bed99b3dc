// Package testdata provides test fixtures and helper functions for storage layer tests
package testdata

import (
	"fmt"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/models"
)

// Helper functions for pointer creation
func StringPtr(s string) *string { return &s }
func Int64Ptr(i int64) *int64    { return &i }

// CreateTestMigration creates a migration record with a complete source
func CreateTestMigration(providerID, enterprise, org string, state models.MigrationState, created time.Time) *models.MigrationRecord {
	rec := &models.MigrationRecord{
		ProviderID:       providerID,
		RepositoryName:   "repo-" + providerID,
		OrganizationName: org,
		EnterpriseName:   enterprise,
		State:            state,
		SourceURL:        StringPtr(fmt.Sprintf("https://ghes.example.com/%s/repo-%s", org, providerID)),
		Source: models.MigrationSource{
			ID:   "MS_1",
			Name: "GHES",
			Type: "GITHUB_ARCHIVE",
			URL:  "https://ghes.example.com",
		},
		CreatedAt: created,
	}
	if state == models.MigrationStateFailed {
		rec.FailureReason = StringPtr("archive upload failed")
	}
	return rec
}

// CreateTestMigrationCompleted creates a finished migration that took d
func CreateTestMigrationCompleted(providerID, enterprise, org string, created time.Time, d time.Duration) *models.MigrationRecord {
	rec := CreateTestMigration(providerID, enterprise, org, models.MigrationStateSucceeded, created)
	completed := created.Add(d)
	rec.CompletedAt = &completed
	rec.DurationMs = Int64Ptr(d.Milliseconds())
	return rec
}

// CreateTestSyncHistory creates an in-progress run over logins
func CreateTestSyncHistory(syncID, enterprise string, start time.Time, logins ...string) *models.SyncHistory {
	return models.NewSyncHistory(syncID, enterprise, logins, start)
}

// CreateTestCronConfig creates an enabled schedule
func CreateTestCronConfig(enterprise, schedule string) *models.CronConfig {
	return &models.CronConfig{
		EnterpriseName: enterprise,
		Schedule:       schedule,
		Enabled:        true,
	}
}

// CreateTestAccessStatus creates an access check result
func CreateTestAccessStatus(enterprise, org string, hasAccess bool, checked time.Time) *models.OrgAccessStatus {
	status := &models.OrgAccessStatus{
		EnterpriseName: enterprise,
		OrgLogin:       org,
		HasAccess:      hasAccess,
		LastChecked:    checked,
	}
	if !hasAccess {
		status.ErrorMessage = StringPtr("admin access required")
	}
	return status
}
