package models

import "github.com/google/uuid"

// OrganizationRole is a tenant-scoped bundle of permission grants.
type OrganizationRole struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_org_roles_name" json:"organization_id"`
	Name           string    `gorm:"not null;uniqueIndex:idx_org_roles_name" json:"name"`
	Description    string    `json:"description,omitempty"`
	Position       int       `gorm:"not null" json:"position"`
	IsDefault      bool      `gorm:"not null" json:"is_default"`
	IsSystemRole   bool      `gorm:"not null" json:"is_system_role"`

	Grants []OrganizationRolePermission `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE" json:"-"`
}

func (OrganizationRole) TableName() string {
	return "organization_roles"
}

// Permission is a global catalog entry named "<resource>.<action>".
type Permission struct {
	Base
	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Category    string `gorm:"index;not null" json:"category"`
	Description string `json:"description,omitempty"`
	IsWildcard  bool   `gorm:"not null" json:"is_wildcard"`
}

func (Permission) TableName() string {
	return "permissions"
}

// OrganizationRolePermission grants (or explicitly withholds) a cataloged
// permission on a role.
type OrganizationRolePermission struct {
	RoleID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"role_id"`
	PermissionID uuid.UUID `gorm:"type:uuid;primaryKey" json:"permission_id"`
	Allowed      bool      `gorm:"not null" json:"allowed"`

	Permission *Permission `gorm:"foreignKey:PermissionID" json:"permission,omitempty"`
}

func (OrganizationRolePermission) TableName() string {
	return "organization_role_permissions"
}

// OrganizationUserRole binds one role to a (user, organization) pair.
type OrganizationUserRole struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_org_user_roles_pair" json:"organization_id"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_org_user_roles_pair" json:"user_id"`
	RoleID         uuid.UUID `gorm:"type:uuid;not null;index" json:"role_id"`
	IsActive       bool      `gorm:"not null" json:"is_active"`

	Role *OrganizationRole `gorm:"foreignKey:RoleID" json:"role,omitempty"`
}

func (OrganizationUserRole) TableName() string {
	return "organization_user_roles"
}
