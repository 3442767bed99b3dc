package models

import "time"

// OrgAccessStatus caches whether the credential can administer an organization
type OrgAccessStatus struct {
	ID             int64     `json:"id" gorm:"primaryKey"`
	EnterpriseName string    `json:"enterprise_name" gorm:"column:enterprise_name;not null;uniqueIndex:idx_org_access_enterprise_org"`
	OrgLogin       string    `json:"org_login" gorm:"column:org_login;not null;uniqueIndex:idx_org_access_enterprise_org"`
	HasAccess      bool      `json:"has_access" gorm:"column:has_access;not null;default:false"`
	ErrorMessage   *string   `json:"error_message,omitempty" gorm:"column:error_message;type:text"`
	LastChecked    time.Time `json:"last_checked" gorm:"column:last_checked;not null"`
}

// TableName returns the table name for GORM
func (OrgAccessStatus) TableName() string {
	return "org_access_statuses"
}
