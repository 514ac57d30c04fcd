package dto

import (
	"time"

	"github.com/hugh/orgauth/internal/api/validation"
	"github.com/hugh/orgauth/internal/authz"
	"github.com/hugh/orgauth/internal/store"
)

type OrganizationDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Status   string `json:"status"`
	Timezone string `json:"timezone"`
	Currency string `json:"currency"`
}

func OrganizationFromStore(o store.OrganizationProjection) OrganizationDTO {
	return OrganizationDTO{
		ID:       o.ID.String(),
		Name:     o.Name,
		Slug:     o.Slug,
		Status:   string(o.Status),
		Timezone: o.Timezone,
		Currency: o.Currency,
	}
}

type MembershipDTO struct {
	Organization OrganizationDTO `json:"organization"`
	IsOwner      bool            `json:"is_owner"`
	JoinedAt     string          `json:"joined_at"`
}

func MembershipFromStore(m store.Membership) MembershipDTO {
	return MembershipDTO{
		Organization: OrganizationFromStore(m.Organization),
		IsOwner:      m.IsOwner,
		JoinedAt:     m.JoinedAt.Format(time.RFC3339),
	}
}

type GrantDTO struct {
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
}

type RoleDTO struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	Position     int        `json:"position"`
	IsDefault    bool       `json:"is_default"`
	IsSystemRole bool       `json:"is_system_role"`
	Grants       []GrantDTO `json:"grants"`
}

func RoleFromStore(r *store.Role) RoleDTO {
	grants := make([]GrantDTO, 0, len(r.Grants))
	for _, g := range r.Grants {
		grants = append(grants, GrantDTO{Permission: g.Name, Allowed: g.Allowed})
	}
	return RoleDTO{
		ID:           r.ID.String(),
		Name:         r.Name,
		Description:  r.Description,
		Position:     r.Position,
		IsDefault:    r.IsDefault,
		IsSystemRole: r.IsSystemRole,
		Grants:       grants,
	}
}

// ContextResponse describes the tenant a request acts in.
type ContextResponse struct {
	User         UserDTO         `json:"user"`
	Organization OrganizationDTO `json:"organization"`
	IsOwner      bool            `json:"is_owner"`
	Role         *RoleDTO        `json:"role"`
	Permissions  []string        `json:"permissions"`
}

func ContextFromTenant(tc *authz.TenantContext) ContextResponse {
	resp := ContextResponse{
		User:         UserFromResolved(tc.User),
		Organization: OrganizationFromStore(tc.Organization),
		IsOwner:      tc.Membership.IsOwner,
		Permissions:  []string{},
	}
	if tc.Role != nil {
		role := RoleFromStore(tc.Role)
		resp.Role = &role
		resp.Permissions = tc.Role.AllowedNames()
	}
	return resp
}

type PermissionCheckResponse struct {
	Permission     string `json:"permission"`
	OrganizationID string `json:"organization_id,omitempty"`
	Allowed        bool   `json:"allowed"`
}

type MemberDTO struct {
	UserID    string  `json:"user_id"`
	Username  string  `json:"username"`
	Email     string  `json:"email,omitempty"`
	FirstName string  `json:"first_name,omitempty"`
	LastName  string  `json:"last_name,omitempty"`
	IsOwner   bool    `json:"is_owner"`
	JoinedAt  string  `json:"joined_at"`
	RoleID    *string `json:"role_id,omitempty"`
	RoleName  *string `json:"role_name,omitempty"`
}

func MemberFromStore(m store.MemberView) MemberDTO {
	out := MemberDTO{
		UserID:    m.UserID.String(),
		Username:  m.Username,
		Email:     m.Email,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		IsOwner:   m.IsOwner,
		JoinedAt:  m.JoinedAt.Format(time.RFC3339),
		RoleName:  m.RoleName,
	}
	if m.RoleID != nil {
		s := m.RoleID.String()
		out.RoleID = &s
	}
	return out
}

type CreateOrganizationRequest struct {
	Name             string `json:"name"`
	Slug             string `json:"slug,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
	Locale           string `json:"locale,omitempty"`
	Currency         string `json:"currency,omitempty"`
	AllowDepartments bool   `json:"allow_departments"`
	AllowCustomRoles bool   `json:"allow_custom_roles"`
}

func (r CreateOrganizationRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name == "" {
		errors["name"] = "Name is required"
	} else if len(r.Name) > validation.MaxNameLength {
		errors["name"] = "Name is too long"
	}
	if r.Slug != "" && !validation.IsValidSlug(r.Slug) {
		errors["slug"] = "Slug must be lowercase letters, digits and single dashes"
	}
	if r.Timezone != "" && !validation.IsValidTimezone(r.Timezone) {
		errors["timezone"] = "Unknown timezone"
	}
	if r.Currency != "" && !validation.IsValidCurrency(r.Currency) {
		errors["currency"] = "Currency must be an ISO 4217 code"
	}
	return errors
}

func (r CreateOrganizationRequest) ToStore() store.NewOrganization {
	return store.NewOrganization{
		Name:             r.Name,
		Slug:             r.Slug,
		Timezone:         r.Timezone,
		Locale:           r.Locale,
		Currency:         r.Currency,
		AllowDepartments: r.AllowDepartments,
		AllowCustomRoles: r.AllowCustomRoles,
	}
}

type AddMemberRequest struct {
	UserID string  `json:"user_id"`
	RoleID *string `json:"role_id,omitempty"`
}

func (r AddMemberRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if !validation.IsValidUUID(r.UserID) {
		errors["user_id"] = "Invalid user ID format"
	}
	if r.RoleID != nil && !validation.IsValidUUID(*r.RoleID) {
		errors["role_id"] = "Invalid role ID format"
	}
	return errors
}

type AssignRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (r AssignRoleRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if !validation.IsValidUUID(r.RoleID) {
		errors["role_id"] = "Invalid role ID format"
	}
	return errors
}

type RoleRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	IsDefault   bool       `json:"is_default"`
	Grants      []GrantDTO `json:"grants"`
}

func (r RoleRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name == "" {
		errors["name"] = "Name is required"
	} else if len(r.Name) > validation.MaxNameLength {
		errors["name"] = "Name is too long"
	}
	for _, g := range r.Grants {
		if !validation.IsValidPermissionName(g.Permission) {
			errors["grants"] = "Invalid permission name: " + g.Permission
			break
		}
	}
	return errors
}

func (r RoleRequest) StoreGrants() []store.PermissionGrant {
	out := make([]store.PermissionGrant, 0, len(r.Grants))
	for _, g := range r.Grants {
		out = append(out, store.PermissionGrant{Name: g.Permission, Allowed: g.Allowed})
	}
	return out
}

type SetGrantsRequest struct {
	Grants []GrantDTO `json:"grants"`
}

func (r SetGrantsRequest) Validate() map[string]string {
	return RoleRequest{Name: "-", Grants: r.Grants}.Validate()
}

func (r SetGrantsRequest) StoreGrants() []store.PermissionGrant {
	return RoleRequest{Grants: r.Grants}.StoreGrants()
}
