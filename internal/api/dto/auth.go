package dto

import (
	"time"

	"github.com/hugh/orgauth/internal/api/validation"
	"github.com/hugh/orgauth/internal/auth"
	"github.com/hugh/orgauth/internal/store"
)

type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	OrgName   string `json:"org_name,omitempty"`
}

func (r RegisterRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Username == "" {
		errors["username"] = "Username is required"
	} else if !validation.IsValidUsername(r.Username) {
		errors["username"] = "Username must be 3-50 letters, digits, dots, dashes or underscores"
	}
	if r.Email != "" && !validation.IsValidEmail(r.Email) {
		errors["email"] = "Invalid email format"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	} else if ok, msg := validation.IsValidPassword(r.Password); !ok {
		errors["password"] = msg
	}
	if len(r.FirstName) > validation.MaxNameLength {
		errors["first_name"] = "First name is too long"
	}
	if len(r.LastName) > validation.MaxNameLength {
		errors["last_name"] = "Last name is too long"
	}
	if len(r.OrgName) > validation.MaxNameLength {
		errors["org_name"] = "Organization name is too long"
	}

	return errors
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Username == "" {
		errors["username"] = "Username is required"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	}

	return errors
}

type SwitchOrganizationRequest struct {
	OrganizationID string `json:"organization_id"`
}

func (r SwitchOrganizationRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if !validation.IsValidUUID(r.OrganizationID) {
		errors["organization_id"] = "Invalid organization ID format"
	}
	return errors
}

type AuthResponse struct {
	Token        string         `json:"token"`
	ExpiresAt    int64          `json:"expires_at"`
	User         UserDTO        `json:"user"`
	Organization *MembershipDTO `json:"organization,omitempty"`
}

type UserDTO struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	// OrganizationID is the organization embedded in the session, if any.
	OrganizationID string `json:"organization_id,omitempty"`
}

func UserFromProjection(u *store.UserProjection) UserDTO {
	return UserDTO{
		ID:        u.ID.String(),
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// AccountDTO is the caller's own account, including its state.
type AccountDTO struct {
	UserDTO
	Status   string `json:"status"`
	IsActive bool   `json:"is_active"`
}

func AccountFromProjection(u *store.UserProjection) AccountDTO {
	return AccountDTO{
		UserDTO:  UserFromProjection(u),
		Status:   string(u.Status),
		IsActive: u.IsActive,
	}
}

func UserFromResolved(u *auth.ResolvedUser) UserDTO {
	out := UserDTO{
		ID:        u.ID.String(),
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
	if u.SessionOrganizationID != nil {
		out.OrganizationID = u.SessionOrganizationID.String()
	}
	return out
}

func NewAuthResponse(token string, expiresAt time.Time, user UserDTO, membership *store.Membership) AuthResponse {
	resp := AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt.Unix(),
		User:      user,
	}
	if membership != nil {
		m := MembershipFromStore(*membership)
		resp.Organization = &m
		resp.User.OrganizationID = m.Organization.ID
	}
	return resp
}
