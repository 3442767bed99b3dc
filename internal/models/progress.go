package models

// ProgressSnapshot is the live view of one organization in a running sync.
// It is broadcast only and never persisted.
type ProgressSnapshot struct {
	SyncID                   string   `json:"sync_id"`
	OrganizationName         string   `json:"organization_name"`
	State                    OrgState `json:"state"`
	CurrentPage              int      `json:"current_page"`
	TotalPages               int      `json:"total_pages"`
	MigrationsCount          int      `json:"migrations_count"`
	IsCompleted              bool     `json:"is_completed"`
	Error                    *string  `json:"error,omitempty"`
	ElapsedTimeMs            int64    `json:"elapsed_time_ms"`
	ProcessingRate           *float64 `json:"processing_rate,omitempty"`
	EstimatedTimeRemainingMs *int64   `json:"estimated_time_remaining_ms,omitempty"`
}

// EnterpriseProgress is one broadcast: every organization of the run
type EnterpriseProgress struct {
	EnterpriseName string             `json:"enterprise_name"`
	SyncID         string             `json:"sync_id"`
	Organizations  []ProgressSnapshot `json:"organizations"`
}
