package models

import "time"

// CronConfig is the per-enterprise sync schedule
type CronConfig struct {
	ID             int64      `json:"id" gorm:"primaryKey"`
	EnterpriseName string     `json:"enterprise_name" gorm:"column:enterprise_name;uniqueIndex;not null;size:255"`
	Schedule       string     `json:"schedule" gorm:"column:schedule;not null"`
	Enabled        bool       `json:"enabled" gorm:"column:enabled;not null;default:false"`
	LastRun        *time.Time `json:"last_run,omitempty" gorm:"column:last_run"`
	NextRun        *time.Time `json:"next_run,omitempty" gorm:"column:next_run"`
	CreatedAt      time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt      time.Time  `json:"updated_at" gorm:"column:updated_at"`
}

// TableName returns the table name for GORM
func (CronConfig) TableName() string {
	return "cron_configs"
}
