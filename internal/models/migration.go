package models

import "time"

// MigrationState is the upstream state of a repository migration
type MigrationState string

const (
	MigrationStateNotStarted        MigrationState = "NOT_STARTED"
	MigrationStateQueued            MigrationState = "QUEUED"
	MigrationStatePendingValidation MigrationState = "PENDING_VALIDATION"
	MigrationStateInProgress        MigrationState = "IN_PROGRESS"
	MigrationStateSucceeded         MigrationState = "SUCCEEDED"
	MigrationStateFailed            MigrationState = "FAILED"
	MigrationStateFailedValidation  MigrationState = "FAILED_VALIDATION"
)

// ParseMigrationState validates an upstream state string
func ParseMigrationState(s string) (MigrationState, bool) {
	switch st := MigrationState(s); st {
	case MigrationStateNotStarted, MigrationStateQueued, MigrationStatePendingValidation,
		MigrationStateInProgress, MigrationStateSucceeded, MigrationStateFailed, MigrationStateFailedValidation:
		return st, true
	default:
		return "", false
	}
}

// IsTerminal reports whether no further state change is expected upstream
func (s MigrationState) IsTerminal() bool {
	return s == MigrationStateSucceeded || s == MigrationStateFailed || s == MigrationStateFailedValidation
}

// MigrationSource is where a migration pulls from. Either every field is
// set or the source is absent.
type MigrationSource struct {
	ID   string `json:"id" gorm:"column:id"`
	Name string `json:"name" gorm:"column:name"`
	Type string `json:"type" gorm:"column:type"`
	URL  string `json:"url" gorm:"column:url"`
}

// Complete reports whether every field of the source is present
func (s MigrationSource) Complete() bool {
	return s.ID != "" && s.Name != "" && s.Type != "" && s.URL != ""
}

// MigrationRecord is one tracked migration job, keyed by the provider's id
type MigrationRecord struct {
	ID               int64          `json:"id" gorm:"primaryKey"`
	ProviderID       string         `json:"provider_id" gorm:"column:provider_id;uniqueIndex;not null;size:255"`
	RepositoryName   string         `json:"repository_name" gorm:"column:repository_name;not null;index"`
	OrganizationName string         `json:"organization_name" gorm:"column:organization_name;not null;index"`
	EnterpriseName   string         `json:"enterprise_name" gorm:"column:enterprise_name;not null;index"`
	State            MigrationState `json:"state" gorm:"column:state;not null;index"`
	WarningsCount    int            `json:"warnings_count" gorm:"column:warnings_count;not null;default:0"`
	FailureReason    *string        `json:"failure_reason,omitempty" gorm:"column:failure_reason;type:text"`
	SourceURL        *string        `json:"source_url,omitempty" gorm:"column:source_url"`
	LogURL           *string        `json:"log_url,omitempty" gorm:"column:log_url"`

	Source MigrationSource `json:"migration_source" gorm:"embedded;embeddedPrefix:migration_source_"`

	// CreatedAt is the upstream creation time and is never rewritten
	CreatedAt   time.Time  `json:"created_at" gorm:"column:created_at;not null;autoCreateTime:false"`
	CompletedAt *time.Time `json:"completed_at,omitempty" gorm:"column:completed_at"`
	DurationMs  *int64     `json:"duration_ms,omitempty" gorm:"column:duration_ms"`

	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// TableName returns the table name for GORM
func (MigrationRecord) TableName() string {
	return "migration_records"
}

// HasSource reports whether the record carries a migration source
func (m *MigrationRecord) HasSource() bool {
	return m.Source.Complete()
}

// SetCompletedAt stamps the completion time and recomputes the duration.
// A completion earlier than the creation time clamps the duration to zero.
func (m *MigrationRecord) SetCompletedAt(t *time.Time) {
	m.CompletedAt = t
	if t == nil || m.CreatedAt.IsZero() {
		m.DurationMs = nil
		return
	}
	d := t.Sub(m.CreatedAt).Milliseconds()
	if d < 0 {
		d = 0
	}
	m.DurationMs = &d
}

// MigrationFilter narrows ListMigrationRecords
type MigrationFilter struct {
	EnterpriseName   string
	OrganizationName string
	State            MigrationState
	Limit            int
	Offset           int
}
