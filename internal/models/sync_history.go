package models

import (
	"fmt"
	"time"
)

// SyncStatus is the persisted status of a sync run
type SyncStatus string

const (
	SyncStatusInProgress SyncStatus = "in-progress"
	SyncStatusCompleted  SyncStatus = "completed"
	SyncStatusFailed     SyncStatus = "failed"
)

// IsTerminal reports whether the run has finished
func (s SyncStatus) IsTerminal() bool {
	return s == SyncStatusCompleted || s == SyncStatusFailed
}

// SyncHistoryOrg is the outcome of one organization within a run
type SyncHistoryOrg struct {
	Login               string     `json:"login"`
	TotalMigrations     int        `json:"total_migrations"`
	TotalPages          int        `json:"total_pages"`
	ElapsedTimeMs       int64      `json:"elapsed_time_ms"`
	Errors              []string   `json:"errors"`
	LatestMigrationDate *time.Time `json:"latest_migration_date,omitempty"`
	Completed           bool       `json:"completed"`
}

// SyncHistory is the durable audit record of one sync run
type SyncHistory struct {
	ID                     int64            `json:"id" gorm:"primaryKey"`
	SyncID                 string           `json:"sync_id" gorm:"column:sync_id;uniqueIndex;not null;size:64"`
	EnterpriseName         string           `json:"enterprise_name" gorm:"column:enterprise_name;not null;index"`
	StartTime              time.Time        `json:"start_time" gorm:"column:start_time;not null;index"`
	EndTime                *time.Time       `json:"end_time,omitempty" gorm:"column:end_time"`
	Status                 SyncStatus       `json:"status" gorm:"column:status;not null;index"`
	TotalOrganizations     int              `json:"total_organizations" gorm:"column:total_organizations;not null;default:0"`
	CompletedOrganizations int              `json:"completed_organizations" gorm:"column:completed_organizations;not null;default:0"`
	Organizations          []SyncHistoryOrg `json:"organizations" gorm:"column:organizations;type:text;serializer:json"`
	ErrorMessage           *string          `json:"error_message,omitempty" gorm:"column:error_message;type:text"`
	CreatedAt              time.Time        `json:"created_at" gorm:"column:created_at"`
	UpdatedAt              time.Time        `json:"updated_at" gorm:"column:updated_at"`
}

// TableName returns the table name for GORM
func (SyncHistory) TableName() string {
	return "sync_histories"
}

// NewSyncHistory pre-populates every organization at zero. Duplicate logins
// are collapsed so each login appears once.
func NewSyncHistory(syncID, enterprise string, logins []string, start time.Time) *SyncHistory {
	orgs := make([]SyncHistoryOrg, 0, len(logins))
	seen := make(map[string]bool, len(logins))
	for _, login := range logins {
		if seen[login] {
			continue
		}
		seen[login] = true
		orgs = append(orgs, SyncHistoryOrg{Login: login, Errors: []string{}})
	}
	return &SyncHistory{
		SyncID:             syncID,
		EnterpriseName:     enterprise,
		StartTime:          start,
		Status:             SyncStatusInProgress,
		TotalOrganizations: len(orgs),
		Organizations:      orgs,
	}
}

// OrgLogins returns the organization logins of the run in recorded order
func (h *SyncHistory) OrgLogins() []string {
	logins := make([]string, 0, len(h.Organizations))
	for _, o := range h.Organizations {
		logins = append(logins, o.Login)
	}
	return logins
}

// Org returns the subdocument for login, or nil
func (h *SyncHistory) Org(login string) *SyncHistoryOrg {
	for i := range h.Organizations {
		if h.Organizations[i].Login == login {
			return &h.Organizations[i]
		}
	}
	return nil
}

// OrgResult is what an organization reports when it finishes
type OrgResult struct {
	TotalMigrations     int
	TotalPages          int
	ElapsedTimeMs       int64
	LatestMigrationDate *time.Time
	Error               string
}

// ApplyOrgResult records an organization's completion exactly once and bumps
// the completed counter.
func (h *SyncHistory) ApplyOrgResult(login string, r OrgResult) error {
	if h.Status.IsTerminal() {
		return fmt.Errorf("sync %s is already %s", h.SyncID, h.Status)
	}
	org := h.Org(login)
	if org == nil {
		return fmt.Errorf("organization %s is not part of sync %s", login, h.SyncID)
	}
	if org.Completed {
		return fmt.Errorf("organization %s already recorded for sync %s", login, h.SyncID)
	}
	if h.CompletedOrganizations >= h.TotalOrganizations {
		return fmt.Errorf("sync %s has no organizations left to complete", h.SyncID)
	}

	org.TotalMigrations = r.TotalMigrations
	org.TotalPages = r.TotalPages
	org.ElapsedTimeMs = r.ElapsedTimeMs
	org.LatestMigrationDate = r.LatestMigrationDate
	if r.Error != "" {
		org.Errors = append(org.Errors, r.Error)
	}
	org.Completed = true
	h.CompletedOrganizations++
	return nil
}

// Finish stamps the terminal status and end time. The end time never
// precedes the start time.
func (h *SyncHistory) Finish(status SyncStatus, at time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	if h.Status.IsTerminal() {
		return fmt.Errorf("sync %s is already %s", h.SyncID, h.Status)
	}
	if status == SyncStatusCompleted && h.CompletedOrganizations != h.TotalOrganizations {
		return fmt.Errorf("sync %s has %d of %d organizations completed", h.SyncID, h.CompletedOrganizations, h.TotalOrganizations)
	}
	if at.Before(h.StartTime) {
		at = h.StartTime
	}
	h.Status = status
	h.EndTime = &at
	return nil
}

// DurationMs is the run's elapsed time, or zero while it is running
func (h *SyncHistory) DurationMs() int64 {
	if h.EndTime == nil {
		return 0
	}
	d := h.EndTime.Sub(h.StartTime).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}
