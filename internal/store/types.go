package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/hugh/orgauth/internal/database/models"
)

// UserProjection carries identity fields only; credentials never leave the store.
type UserProjection struct {
	ID        uuid.UUID         `json:"id"`
	Username  string            `json:"username"`
	Email     string            `json:"email,omitempty"`
	FirstName string            `json:"first_name,omitempty"`
	LastName  string            `json:"last_name,omitempty"`
	Status    models.UserStatus `json:"status"`
	IsActive  bool              `json:"is_active"`
}

func projectUser(u *models.User) *UserProjection {
	return &UserProjection{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Status:    u.Status,
		IsActive:  u.IsActive,
	}
}

type OrganizationProjection struct {
	ID       uuid.UUID                 `json:"id"`
	Name     string                    `json:"name"`
	Slug     string                    `json:"slug"`
	Status   models.OrganizationStatus `json:"status"`
	Timezone string                    `json:"timezone"`
	Currency string                    `json:"currency"`
}

func projectOrganization(o *models.Organization) OrganizationProjection {
	return OrganizationProjection{
		ID:       o.ID,
		Name:     o.Name,
		Slug:     o.Slug,
		Status:   o.Status,
		Timezone: o.Timezone,
		Currency: o.Currency,
	}
}

type Membership struct {
	OrganizationID uuid.UUID              `json:"organization_id"`
	UserID         uuid.UUID              `json:"user_id"`
	IsOwner        bool                   `json:"is_owner"`
	IsActive       bool                   `json:"is_active"`
	JoinedAt       time.Time              `json:"joined_at"`
	Organization   OrganizationProjection `json:"organization"`
}

func projectMembership(m *models.OrganizationUser) Membership {
	out := Membership{
		OrganizationID: m.OrganizationID,
		UserID:         m.UserID,
		IsOwner:        m.IsOwner,
		IsActive:       m.IsActive,
		JoinedAt:       m.JoinedAt,
	}
	if m.Organization != nil {
		out.Organization = projectOrganization(m.Organization)
	}
	return out
}

// PermissionGrant is one (permission name, allowed) row of a role.
type PermissionGrant struct {
	Name    string `json:"name"`
	Allowed bool   `json:"allowed"`
}

// Role is a role with its full grant set, the unit permission checks consume.
type Role struct {
	ID             uuid.UUID         `json:"id"`
	OrganizationID uuid.UUID         `json:"organization_id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Position       int               `json:"position"`
	IsDefault      bool              `json:"is_default"`
	IsSystemRole   bool              `json:"is_system_role"`
	Grants         []PermissionGrant `json:"grants"`
}

// AllowedNames lists the permission names granted with allowed=true.
func (r *Role) AllowedNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.Grants))
	for _, g := range r.Grants {
		if g.Allowed {
			names = append(names, g.Name)
		}
	}
	return names
}

type RoleAssignment struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	UserID         uuid.UUID `json:"user_id"`
	Role           Role      `json:"role"`
}

// MemberView is a membership row joined with the member's identity and role.
type MemberView struct {
	UserID    uuid.UUID  `json:"user_id"`
	Username  string     `json:"username"`
	Email     string     `json:"email,omitempty"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	IsOwner   bool       `json:"is_owner"`
	IsActive  bool       `json:"is_active"`
	JoinedAt  time.Time  `json:"joined_at"`
	RoleID    *uuid.UUID `json:"role_id,omitempty"`
	RoleName  *string    `json:"role_name,omitempty"`
}

type NewOrganization struct {
	Name             string
	Slug             string
	Status           models.OrganizationStatus
	Timezone         string
	Locale           string
	Currency         string
	AllowDepartments bool
	AllowCustomRoles bool
}

type NewRole struct {
	Name        string
	Description string
	Position    int
	IsDefault   bool
}
