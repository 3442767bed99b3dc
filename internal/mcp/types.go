// Package mcp provides a Model Context Protocol server for the Migration Tracker.
// It exposes the sync operations to AI agents via the MCP protocol.
package mcp

import (
	"time"
)

// SyncSummary is a condensed view of one sync run for tool responses
type SyncSummary struct {
	SyncID                 string       `json:"sync_id"`
	EnterpriseName         string       `json:"enterprise_name"`
	Status                 string       `json:"status"`
	StartTime              time.Time    `json:"start_time"`
	EndTime                *time.Time   `json:"end_time,omitempty"`
	Duration               *string      `json:"duration,omitempty"`
	TotalOrganizations     int          `json:"total_organizations"`
	CompletedOrganizations int          `json:"completed_organizations"`
	TotalMigrations        int          `json:"total_migrations"`
	FailedOrganizations    []string     `json:"failed_organizations,omitempty"`
	ErrorMessage           *string      `json:"error_message,omitempty"`
	Organizations          []OrgSummary `json:"organizations,omitempty"`
}

// OrgSummary is one organization of a sync run
type OrgSummary struct {
	Login           string   `json:"login"`
	TotalMigrations int      `json:"total_migrations"`
	TotalPages      int      `json:"total_pages"`
	Completed       bool     `json:"completed"`
	Errors          []string `json:"errors,omitempty"`
}

// ------- Tool Output Types -------

// TriggerSyncOutput is the output of the trigger_sync tool
type TriggerSyncOutput struct {
	Success       bool         `json:"success"`
	SyncID        string       `json:"sync_id,omitempty"`
	Message       string       `json:"message"`
	Organizations []string     `json:"organizations"`
	Result        *SyncSummary `json:"result,omitempty"`
}

// ListSyncHistoriesOutput is the output of the list_sync_histories tool
type ListSyncHistoriesOutput struct {
	Syncs      []SyncSummary `json:"syncs"`
	TotalCount int           `json:"total_count"`
	Message    string        `json:"message"`
}

// CronConfigOutput is the output of the cron tools
type CronConfigOutput struct {
	EnterpriseName string     `json:"enterprise_name"`
	Configured     bool       `json:"configured"`
	Schedule       string     `json:"schedule,omitempty"`
	Enabled        bool       `json:"enabled"`
	LastRun        *time.Time `json:"last_run,omitempty"`
	NextRun        *time.Time `json:"next_run,omitempty"`
	Message        string     `json:"message"`
}

// OrgAccessOutput is the output of the check_org_access tool
type OrgAccessOutput struct {
	EnterpriseName string          `json:"enterprise_name"`
	WithAccess     []string        `json:"with_access"`
	WithoutAccess  []OrgAccessInfo `json:"without_access"`
	LastChecked    *time.Time      `json:"last_checked,omitempty"`
	Message        string          `json:"message"`
}

// OrgAccessInfo explains a missing access grant
type OrgAccessInfo struct {
	Login string `json:"login"`
	Error string `json:"error,omitempty"`
}

// ListMigrationsOutput is the output of the list_migrations tool
type ListMigrationsOutput struct {
	Migrations []MigrationSummary `json:"migrations"`
	Total      int64              `json:"total"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
	Message    string             `json:"message"`
}

// MigrationSummary is a condensed migration record
type MigrationSummary struct {
	ID              string     `json:"id"`
	Repository      string     `json:"repository"`
	Organization    string     `json:"organization"`
	State           string     `json:"state"`
	WarningsCount   int        `json:"warnings_count"`
	FailureReason   *string    `json:"failure_reason,omitempty"`
	MigrationSource string     `json:"migration_source,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationMs      *int64     `json:"duration_ms,omitempty"`
}
