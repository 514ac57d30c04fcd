package models

import (
	"time"

	"github.com/google/uuid"
)

type OrganizationStatus string

const (
	OrganizationStatusActive    OrganizationStatus = "ACTIVE"
	OrganizationStatusSuspended OrganizationStatus = "SUSPENDED"
	OrganizationStatusTrial     OrganizationStatus = "TRIAL"
)

type Organization struct {
	Base
	Name             string             `gorm:"not null" json:"name"`
	Slug             string             `gorm:"uniqueIndex;not null" json:"slug"`
	Status           OrganizationStatus `gorm:"not null" json:"status"`
	Timezone         string             `gorm:"not null;default:'UTC'" json:"timezone"`
	Locale           string             `gorm:"not null;default:'en'" json:"locale"`
	Currency         string             `gorm:"not null;default:'USD'" json:"currency"`
	AllowDepartments bool               `gorm:"not null" json:"allow_departments"`
	AllowCustomRoles bool               `gorm:"not null" json:"allow_custom_roles"`

	// Relationships
	Members []OrganizationUser `gorm:"foreignKey:OrganizationID;constraint:OnDelete:CASCADE" json:"-"`
	Roles   []OrganizationRole `gorm:"foreignKey:OrganizationID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Organization) TableName() string {
	return "organizations"
}

// OrganizationUser is the membership linking a user to a tenant.
// The (organization_id, user_id) pair is unique, so a user has at most one
// membership row per organization; deactivation flips IsActive.
type OrganizationUser struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_org_users_pair" json:"organization_id"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_org_users_pair;index" json:"user_id"`
	IsOwner        bool      `gorm:"not null" json:"is_owner"`
	IsActive       bool      `gorm:"not null" json:"is_active"`
	JoinedAt       time.Time `gorm:"not null" json:"joined_at"`

	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
}

func (OrganizationUser) TableName() string {
	return "organization_users"
}
