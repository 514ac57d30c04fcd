package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/orgauth/internal/database/models"
	"github.com/hugh/orgauth/internal/store"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user is inactive")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

// LoginRecorder persists the last-login timestamp out of band.
type LoginRecorder interface {
	RecordLogin(ctx context.Context, userID uuid.UUID, at time.Time) error
}

type Service struct {
	store    *store.Store
	jwt      *JWTService
	recorder LoginRecorder
	log      *slog.Logger
	now      func() time.Time
}

func NewService(st *store.Store, jwt *JWTService, log *slog.Logger) *Service {
	return &Service{store: st, jwt: jwt, log: log, now: time.Now}
}

// WithLoginRecorder routes last-login updates through r instead of writing
// them inline.
func (s *Service) WithLoginRecorder(r LoginRecorder) *Service {
	s.recorder = r
	return s
}

type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	OrgName   string // Optional: create new org owned by the user
}

type LoginInput struct {
	Username string
	Password string
}

type AuthResponse struct {
	Token        string                `json:"token"`
	ExpiresAt    time.Time             `json:"expires_at"`
	User         *store.UserProjection `json:"user"`
	Organization *store.Membership     `json:"organization,omitempty"`
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (*AuthResponse, error) {
	if len(input.Password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     input.Username,
		Email:        input.Email,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		PasswordHash: hash,
		Status:       models.UserStatusActive,
		IsActive:     true,
	}

	var org *store.NewOrganization
	if input.OrgName != "" {
		org = &store.NewOrganization{Name: input.OrgName}
	}

	membership, err := s.store.RegisterAccount(ctx, user, org)
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	s.log.Info("user registered", "user_id", user.ID, "with_organization", membership != nil)

	return s.issue(ctx, user, membership)
}

// Login checks the password before the account state so a disabled account
// is not revealed to someone without its password.
func (s *Service) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	user, err := s.store.FindCredentials(ctx, input.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, NewStoreError("find credentials", err)
	}

	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if !user.CanAuthenticate() {
		return nil, ErrInactiveUser
	}

	memberships, err := s.store.ListUserOrganizations(ctx, user.ID)
	if err != nil {
		return nil, NewStoreError("list organizations", err)
	}
	var active *store.Membership
	if len(memberships) > 0 {
		active = &memberships[0]
	}

	resp, err := s.issue(ctx, user, active)
	if err != nil {
		return nil, err
	}

	s.recordLogin(ctx, user.ID)
	return resp, nil
}

func (s *Service) recordLogin(ctx context.Context, userID uuid.UUID) {
	at := s.now()
	if s.recorder != nil {
		if err := s.recorder.RecordLogin(ctx, userID, at); err != nil {
			s.log.Warn("failed to enqueue login update", "user_id", userID, "error", err)
		}
		return
	}
	if err := s.store.TouchLastLogin(ctx, userID, at); err != nil {
		s.log.Warn("failed to update last login", "user_id", userID, "error", err)
	}
}

func (s *Service) issue(ctx context.Context, user *models.User, membership *store.Membership) (*AuthResponse, error) {
	sub := TokenSubject{UserID: user.ID, Username: user.Username, Email: user.Email}
	if membership != nil {
		role, err := s.activeRole(ctx, membership.OrganizationID, user.ID)
		if err != nil {
			return nil, err
		}
		applyContext(&sub, membership, role)
	}

	token, expiresAt, err := s.jwt.GenerateToken(sub)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	return &AuthResponse{
		Token:        token,
		ExpiresAt:    expiresAt,
		User: &store.UserProjection{
			ID:        user.ID,
			Username:  user.Username,
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Status:    user.Status,
			IsActive:  user.IsActive,
		},
		Organization: membership,
	}, nil
}

func (s *Service) activeRole(ctx context.Context, orgID, userID uuid.UUID) (*store.Role, error) {
	assignment, err := s.store.FindActiveRoleAssignment(ctx, orgID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, NewStoreError("find role assignment", err)
	}
	return &assignment.Role, nil
}

func applyContext(sub *TokenSubject, membership *store.Membership, role *store.Role) {
	orgID := membership.OrganizationID
	sub.OrganizationID = &orgID
	if role != nil {
		roleID := role.ID
		sub.RoleID = &roleID
		sub.Permissions = role.AllowedNames()
	}
}

// IssueForContext re-issues a session token for an already resolved user in
// the given tenant.
func (s *Service) IssueForContext(user *ResolvedUser, membership *store.Membership, role *store.Role) (string, time.Time, error) {
	sub := TokenSubject{UserID: user.ID, Username: user.Username, Email: user.Email}
	if membership != nil {
		applyContext(&sub, membership, role)
	}
	return s.jwt.GenerateToken(sub)
}

func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*store.UserProjection, error) {
	user, err := s.store.FindUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, NewStoreError("find user", err)
	}
	return user, nil
}

// SetUserStatus soft-disables or re-enables an account. Live sessions of a
// disabled account stop resolving on their next request.
func (s *Service) SetUserStatus(ctx context.Context, id uuid.UUID, status models.UserStatus, active bool) error {
	err := s.store.SetUserStatus(ctx, id, status, active)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	s.log.Info("user status changed", "user_id", id, "status", status, "is_active", active)
	return nil
}
