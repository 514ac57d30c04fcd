package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/orgauth/internal/database/models"
	"gorm.io/gorm"
)

// Store is the relational adapter behind session and tenant resolution.
// Reads are keyed lookups on primary keys or unique pairs; writes each run in
// a single transaction.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

type Option func(*Store)

// WithClock overrides the time source used for join and login timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

var userIdentityColumns = []string{
	"id", "created_at", "updated_at", "username", "email",
	"first_name", "last_name", "status", "is_active",
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// FindUserByID loads the identity projection of a user. The password hash is
// never selected.
func (s *Store) FindUserByID(ctx context.Context, id uuid.UUID) (*UserProjection, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Select(userIdentityColumns).
		Where("id = ?", id).
		Take(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return projectUser(&user), nil
}

// FindCredentials loads the full user row by username, hash included.
// Only the login path may call it.
func (s *Store) FindCredentials(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).Take(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// FindActiveMembership loads the active membership for the (org, user) pair
// together with the organization projection.
func (s *Store) FindActiveMembership(ctx context.Context, orgID, userID uuid.UUID) (*Membership, error) {
	var m models.OrganizationUser
	err := s.db.WithContext(ctx).
		Joins("Organization").
		Where("organization_users.organization_id = ? AND organization_users.user_id = ? AND organization_users.is_active = ?",
			orgID, userID, true).
		Take(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	if m.Organization == nil || m.Organization.ID == uuid.Nil {
		return nil, ErrNotFound
	}
	out := projectMembership(&m)
	return &out, nil
}

type roleGrantRow struct {
	RoleID             uuid.UUID
	RoleOrganizationID uuid.UUID
	RoleName           string
	RoleDescription    string
	Position           int
	IsDefault          bool
	IsSystemRole       bool
	PermissionName     *string
	Allowed            *bool
}

const activeRoleAssignmentQuery = `
SELECT r.id AS role_id,
       r.organization_id AS role_organization_id,
       r.name AS role_name,
       r.description AS role_description,
       r.position AS position,
       r.is_default AS is_default,
       r.is_system_role AS is_system_role,
       p.name AS permission_name,
       rp.allowed AS allowed
FROM organization_user_roles ur
JOIN organization_roles r ON r.id = ur.role_id AND r.organization_id = ur.organization_id
LEFT JOIN organization_role_permissions rp ON rp.role_id = r.id
LEFT JOIN permissions p ON p.id = rp.permission_id
WHERE ur.organization_id = ? AND ur.user_id = ? AND ur.is_active = ?
ORDER BY p.name`

// FindActiveRoleAssignment loads the active role of a member with its full
// grant set in one query. A role that belongs to another organization is
// never returned.
func (s *Store) FindActiveRoleAssignment(ctx context.Context, orgID, userID uuid.UUID) (*RoleAssignment, error) {
	var rows []roleGrantRow
	err := s.db.WithContext(ctx).
		Raw(activeRoleAssignmentQuery, orgID, userID, true).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	first := rows[0]
	role := Role{
		ID:             first.RoleID,
		OrganizationID: first.RoleOrganizationID,
		Name:           first.RoleName,
		Description:    first.RoleDescription,
		Position:       first.Position,
		IsDefault:      first.IsDefault,
		IsSystemRole:   first.IsSystemRole,
		Grants:         make([]PermissionGrant, 0, len(rows)),
	}
	for _, row := range rows {
		if row.PermissionName == nil {
			continue
		}
		role.Grants = append(role.Grants, PermissionGrant{
			Name:    *row.PermissionName,
			Allowed: row.Allowed != nil && *row.Allowed,
		})
	}

	return &RoleAssignment{OrganizationID: orgID, UserID: userID, Role: role}, nil
}

func (s *Store) FindOrganization(ctx context.Context, id uuid.UUID) (*OrganizationProjection, error) {
	var org models.Organization
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&org).Error; err != nil {
		return nil, notFound(err)
	}
	out := projectOrganization(&org)
	return &out, nil
}

// ListUserOrganizations returns the user's active memberships, earliest
// joined first.
func (s *Store) ListUserOrganizations(ctx context.Context, userID uuid.UUID) ([]Membership, error) {
	var rows []models.OrganizationUser
	err := s.db.WithContext(ctx).
		Joins("Organization").
		Where("organization_users.user_id = ? AND organization_users.is_active = ?", userID, true).
		Order("organization_users.joined_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]Membership, 0, len(rows))
	for i := range rows {
		if rows[i].Organization == nil || rows[i].Organization.ID == uuid.Nil {
			continue
		}
		out = append(out, projectMembership(&rows[i]))
	}
	return out, nil
}

// ListRoles returns an organization's roles ordered by position, each with
// its grants.
func (s *Store) ListRoles(ctx context.Context, orgID uuid.UUID) ([]Role, error) {
	return listRoles(s.db.WithContext(ctx), orgID)
}

func listRoles(db *gorm.DB, orgID uuid.UUID) ([]Role, error) {
	var roles []models.OrganizationRole
	err := db.
		Preload("Grants.Permission").
		Where("organization_id = ?", orgID).
		Order("position ASC, name ASC").
		Find(&roles).Error
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}

	out := make([]Role, 0, len(roles))
	for i := range roles {
		out = append(out, projectRole(&roles[i]))
	}
	return out, nil
}

func projectRole(r *models.OrganizationRole) Role {
	role := Role{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		Name:           r.Name,
		Description:    r.Description,
		Position:       r.Position,
		IsDefault:      r.IsDefault,
		IsSystemRole:   r.IsSystemRole,
		Grants:         make([]PermissionGrant, 0, len(r.Grants)),
	}
	for _, g := range r.Grants {
		if g.Permission == nil {
			continue
		}
		role.Grants = append(role.Grants, PermissionGrant{Name: g.Permission.Name, Allowed: g.Allowed})
	}
	return role
}

const listMembersQuery = `
SELECT ou.user_id AS user_id,
       u.username AS username,
       u.email AS email,
       u.first_name AS first_name,
       u.last_name AS last_name,
       ou.is_owner AS is_owner,
       ou.is_active AS is_active,
       ou.joined_at AS joined_at,
       r.id AS role_id,
       r.name AS role_name
FROM organization_users ou
JOIN users u ON u.id = ou.user_id
LEFT JOIN organization_user_roles ur
       ON ur.organization_id = ou.organization_id AND ur.user_id = ou.user_id AND ur.is_active = ?
LEFT JOIN organization_roles r ON r.id = ur.role_id
WHERE ou.organization_id = ?
ORDER BY ou.joined_at ASC`

// ListMembers returns one page of an organization's memberships, active or
// not, with the total count. A non-positive limit returns every row.
func (s *Store) ListMembers(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]MemberView, int64, error) {
	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&models.OrganizationUser{}).Where("organization_id = ?", orgID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting members: %w", err)
	}

	query, args := listMembersQuery, []any{true, orgID}
	if limit > 0 {
		query += "\nLIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}
	var members []MemberView
	if err := db.Raw(query, args...).Scan(&members).Error; err != nil {
		return nil, 0, fmt.Errorf("listing members: %w", err)
	}
	return members, total, nil
}

// TouchLastLogin records a successful login.
func (s *Store) TouchLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_login_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetUserStatus changes account state. Users are never hard-deleted.
func (s *Store) SetUserStatus(ctx context.Context, userID uuid.UUID, status models.UserStatus, active bool) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"status": status, "is_active": active})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordAuthEvent appends an authorization audit row.
func (s *Store) RecordAuthEvent(ctx context.Context, event *models.AuthEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	return s.db.WithContext(ctx).Create(event).Error
}
