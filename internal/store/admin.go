package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/hugh/orgauth/internal/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnsurePermissionCatalog upserts the global permission catalog by name.
func (s *Store) EnsurePermissionCatalog(ctx context.Context, entries []CatalogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	perms := make([]models.Permission, 0, len(entries))
	for _, e := range entries {
		perms = append(perms, models.Permission{
			Name:        e.Name,
			Category:    PermissionCategory(e.Name),
			Description: e.Description,
			IsWildcard:  IsWildcardPermission(e.Name),
		})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"category", "description", "is_wildcard", "updated_at"}),
		}).
		Create(&perms).Error
}

// RegisterAccount creates a user and, when org is non-nil, an organization
// owned by that user. Everything happens in one transaction.
func (s *Store) RegisterAccount(ctx context.Context, user *models.User, org *NewOrganization) (*Membership, error) {
	var membership *Membership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The unique index on username decides concurrent registrations.
		if err := tx.Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrUsernameTaken
			}
			return fmt.Errorf("creating user: %w", err)
		}
		if org == nil {
			return nil
		}
		m, err := s.createOrganization(tx, *org, user.ID)
		if err != nil {
			return err
		}
		membership = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return membership, nil
}

// CreateOrganization creates an organization with the default roles, the
// owner membership and the owner's role assignment.
func (s *Store) CreateOrganization(ctx context.Context, in NewOrganization, ownerID uuid.UUID) (*Membership, error) {
	var membership *Membership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireUser(tx, ownerID); err != nil {
			return err
		}
		m, err := s.createOrganization(tx, in, ownerID)
		if err != nil {
			return err
		}
		membership = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return membership, nil
}

func (s *Store) createOrganization(tx *gorm.DB, in NewOrganization, ownerID uuid.UUID) (*Membership, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: organization name is required", ErrInvalidInput)
	}
	if in.Slug == "" {
		in.Slug = slug.Make(in.Name)
	}
	if !slug.IsSlug(in.Slug) {
		return nil, fmt.Errorf("%w: invalid slug %q", ErrInvalidInput, in.Slug)
	}

	var count int64
	if err := tx.Model(&models.Organization{}).Where("slug = ?", in.Slug).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: slug %q", ErrConflict, in.Slug)
	}

	org := &models.Organization{
		Name:             in.Name,
		Slug:             in.Slug,
		Status:           in.Status,
		Timezone:         defaultString(in.Timezone, "UTC"),
		Locale:           defaultString(in.Locale, "en"),
		Currency:         defaultString(in.Currency, "USD"),
		AllowDepartments: in.AllowDepartments,
		AllowCustomRoles: in.AllowCustomRoles,
	}
	if org.Status == "" {
		org.Status = models.OrganizationStatusActive
	}
	if err := tx.Create(org).Error; err != nil {
		return nil, fmt.Errorf("creating organization: %w", err)
	}

	var ownerRoleID uuid.UUID
	for _, tmpl := range DefaultRoles {
		role := &models.OrganizationRole{
			OrganizationID: org.ID,
			Name:           tmpl.Name,
			Description:    tmpl.Description,
			Position:       tmpl.Position,
			IsDefault:      tmpl.IsDefault,
			IsSystemRole:   tmpl.IsSystemRole,
		}
		if err := tx.Create(role).Error; err != nil {
			return nil, fmt.Errorf("creating role %s: %w", tmpl.Name, err)
		}
		grants := make([]PermissionGrant, 0, len(tmpl.Grants))
		for _, name := range tmpl.Grants {
			grants = append(grants, PermissionGrant{Name: name, Allowed: true})
		}
		if err := replaceGrants(tx, role.ID, grants); err != nil {
			return nil, err
		}
		if tmpl.Name == OwnerRoleName {
			ownerRoleID = role.ID
		}
	}

	member := &models.OrganizationUser{
		OrganizationID: org.ID,
		UserID:         ownerID,
		IsOwner:        true,
		IsActive:       true,
		JoinedAt:       s.now(),
	}
	if err := tx.Create(member).Error; err != nil {
		return nil, fmt.Errorf("creating owner membership: %w", err)
	}
	if err := upsertAssignment(tx, org.ID, ownerID, ownerRoleID); err != nil {
		return nil, err
	}

	member.Organization = org
	out := projectMembership(member)
	return &out, nil
}

// AddMember adds a user to an organization, reactivating a previous
// membership if one exists. A nil roleID assigns the organization's default
// role. Only the owner (actorID) may hand out a privileged role.
func (s *Store) AddMember(ctx context.Context, orgID, actorID, userID uuid.UUID, roleID *uuid.UUID) (*Membership, error) {
	var membership *Membership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var org models.Organization
		if err := tx.Where("id = ?", orgID).Take(&org).Error; err != nil {
			return notFound(err)
		}
		if err := requireUser(tx, userID); err != nil {
			return err
		}

		role, err := resolveRoleForMember(tx, orgID, roleID)
		if err != nil {
			return err
		}
		if err := authorizeRoleGrant(tx, orgID, actorID, role); err != nil {
			return err
		}

		var member models.OrganizationUser
		err = tx.Where("organization_id = ? AND user_id = ?", orgID, userID).Take(&member).Error
		switch {
		case err == nil && member.IsActive:
			return fmt.Errorf("%w: user is already a member", ErrConflict)
		case err == nil:
			member.IsActive = true
			member.JoinedAt = s.now()
			if err := tx.Model(&member).Updates(map[string]any{"is_active": true, "joined_at": member.JoinedAt}).Error; err != nil {
				return fmt.Errorf("reactivating membership: %w", err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			member = models.OrganizationUser{
				OrganizationID: orgID,
				UserID:         userID,
				IsActive:       true,
				JoinedAt:       s.now(),
			}
			if err := tx.Create(&member).Error; err != nil {
				return fmt.Errorf("creating membership: %w", err)
			}
		default:
			return err
		}

		if role != nil {
			if err := upsertAssignment(tx, orgID, userID, role.ID); err != nil {
				return err
			}
		}

		member.Organization = &org
		out := projectMembership(&member)
		membership = &out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return membership, nil
}

func resolveRoleForMember(tx *gorm.DB, orgID uuid.UUID, roleID *uuid.UUID) (*models.OrganizationRole, error) {
	if roleID != nil {
		return findRoleInOrg(tx, orgID, *roleID)
	}
	var role models.OrganizationRole
	err := tx.Preload("Grants.Permission").
		Where("organization_id = ? AND is_default = ?", orgID, true).
		Order("is_system_role ASC, position ASC").
		First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// AssignRole replaces a member's active role assignment. The role must
// belong to the same organization as the membership. The owner's own
// assignment is fixed, and only the owner (actorID) may hand out a
// privileged role.
func (s *Store) AssignRole(ctx context.Context, orgID, actorID, userID, roleID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var member models.OrganizationUser
		err := tx.Where("organization_id = ? AND user_id = ? AND is_active = ?", orgID, userID, true).
			Take(&member).Error
		if err != nil {
			return notFound(err)
		}
		if member.IsOwner {
			return ErrOwnerImmutable
		}
		role, err := findRoleInOrg(tx, orgID, roleID)
		if err != nil {
			return err
		}
		if err := authorizeRoleGrant(tx, orgID, actorID, role); err != nil {
			return err
		}
		return upsertAssignment(tx, orgID, userID, roleID)
	})
}

// isPrivilegedRole reports whether holding role amounts to owning the
// organization: the system Owner role or any role with an allowed "*" grant.
func isPrivilegedRole(role *models.OrganizationRole) bool {
	if role.IsSystemRole && role.Name == OwnerRoleName {
		return true
	}
	for _, g := range role.Grants {
		if g.Allowed && g.Permission != nil && g.Permission.Name == GlobalWildcard {
			return true
		}
	}
	return false
}

func authorizeRoleGrant(tx *gorm.DB, orgID, actorID uuid.UUID, role *models.OrganizationRole) error {
	if role == nil || !isPrivilegedRole(role) {
		return nil
	}
	var count int64
	err := tx.Model(&models.OrganizationUser{}).
		Where("organization_id = ? AND user_id = ? AND is_active = ? AND is_owner = ?", orgID, actorID, true, true).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: only the owner can grant %q", ErrSystemRole, role.Name)
	}
	return nil
}

// DeactivateMember disables a membership and its role assignment. Owners
// cannot be deactivated.
func (s *Store) DeactivateMember(ctx context.Context, orgID, userID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var member models.OrganizationUser
		err := tx.Where("organization_id = ? AND user_id = ? AND is_active = ?", orgID, userID, true).
			Take(&member).Error
		if err != nil {
			return notFound(err)
		}
		if member.IsOwner {
			return ErrOwnerImmutable
		}
		if err := tx.Model(&member).Update("is_active", false).Error; err != nil {
			return fmt.Errorf("deactivating membership: %w", err)
		}
		return tx.Model(&models.OrganizationUserRole{}).
			Where("organization_id = ? AND user_id = ?", orgID, userID).
			Update("is_active", false).Error
	})
}

// CreateRole adds a custom role. The organization must allow custom roles
// and the grants must name cataloged, non-global permissions.
func (s *Store) CreateRole(ctx context.Context, orgID uuid.UUID, in NewRole, grants []PermissionGrant) (*Role, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if err := checkCustomGrants(grants); err != nil {
		return nil, err
	}

	var out *Role
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var org models.Organization
		if err := tx.Where("id = ?", orgID).Take(&org).Error; err != nil {
			return notFound(err)
		}
		if !org.AllowCustomRoles {
			return ErrCustomRolesDisabled
		}

		var count int64
		if err := tx.Model(&models.OrganizationRole{}).
			Where("organization_id = ? AND name = ?", orgID, in.Name).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: role %q", ErrConflict, in.Name)
		}

		position := in.Position
		if position == 0 {
			var last int
			err := tx.Model(&models.OrganizationRole{}).
				Where("organization_id = ?", orgID).
				Select("COALESCE(MAX(position), -1)").
				Row().Scan(&last)
			if err != nil {
				return err
			}
			position = last + 1
		}

		// System roles keep their flag; a custom default takes precedence
		// over them in resolveRoleForMember.
		if in.IsDefault {
			if err := tx.Model(&models.OrganizationRole{}).
				Where("organization_id = ? AND is_system_role = ?", orgID, false).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}

		role := &models.OrganizationRole{
			OrganizationID: orgID,
			Name:           in.Name,
			Description:    in.Description,
			Position:       position,
			IsDefault:      in.IsDefault,
		}
		if err := tx.Create(role).Error; err != nil {
			return fmt.Errorf("creating role: %w", err)
		}
		if err := replaceGrants(tx, role.ID, grants); err != nil {
			return err
		}

		r := projectRole(role)
		r.Grants = append([]PermissionGrant{}, grants...)
		out = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetRoleGrants replaces the grant set of a custom role.
func (s *Store) SetRoleGrants(ctx context.Context, orgID, roleID uuid.UUID, grants []PermissionGrant) (*Role, error) {
	if err := checkCustomGrants(grants); err != nil {
		return nil, err
	}

	var out *Role
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		role, err := findRoleInOrg(tx, orgID, roleID)
		if err != nil {
			return err
		}
		if role.IsSystemRole {
			return ErrSystemRole
		}
		if err := tx.Where("role_id = ?", roleID).Delete(&models.OrganizationRolePermission{}).Error; err != nil {
			return fmt.Errorf("clearing grants: %w", err)
		}
		if err := replaceGrants(tx, roleID, grants); err != nil {
			return err
		}
		r := projectRole(role)
		r.Grants = append([]PermissionGrant{}, grants...)
		out = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteRole removes a custom role that no active member holds.
func (s *Store) DeleteRole(ctx context.Context, orgID, roleID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		role, err := findRoleInOrg(tx, orgID, roleID)
		if err != nil {
			return err
		}
		if role.IsSystemRole {
			return ErrSystemRole
		}
		var count int64
		if err := tx.Model(&models.OrganizationUserRole{}).
			Where("role_id = ? AND is_active = ?", roleID, true).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrRoleInUse
		}
		if err := tx.Where("role_id = ?", roleID).Delete(&models.OrganizationUserRole{}).Error; err != nil {
			return err
		}
		if err := tx.Where("role_id = ?", roleID).Delete(&models.OrganizationRolePermission{}).Error; err != nil {
			return err
		}
		return tx.Delete(role).Error
	})
}

func checkCustomGrants(grants []PermissionGrant) error {
	seen := make(map[string]struct{}, len(grants))
	for _, g := range grants {
		if g.Name == GlobalWildcard {
			return ErrWildcardDenied
		}
		if _, dup := seen[g.Name]; dup {
			return fmt.Errorf("%w: duplicate grant %q", ErrInvalidInput, g.Name)
		}
		seen[g.Name] = struct{}{}
	}
	return nil
}

// replaceGrants inserts grant rows for a role, resolving names against the
// catalog.
func replaceGrants(tx *gorm.DB, roleID uuid.UUID, grants []PermissionGrant) error {
	if len(grants) == 0 {
		return nil
	}
	names := make([]string, 0, len(grants))
	for _, g := range grants {
		names = append(names, g.Name)
	}

	var perms []models.Permission
	if err := tx.Select("id", "name").Where("name IN ?", names).Find(&perms).Error; err != nil {
		return fmt.Errorf("loading permissions: %w", err)
	}
	ids := make(map[string]uuid.UUID, len(perms))
	for _, p := range perms {
		ids[p.Name] = p.ID
	}

	rows := make([]models.OrganizationRolePermission, 0, len(grants))
	for _, g := range grants {
		id, ok := ids[g.Name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPermission, g.Name)
		}
		rows = append(rows, models.OrganizationRolePermission{RoleID: roleID, PermissionID: id, Allowed: g.Allowed})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("creating grants: %w", err)
	}
	return nil
}

func upsertAssignment(tx *gorm.DB, orgID, userID, roleID uuid.UUID) error {
	var existing models.OrganizationUserRole
	err := tx.Where("organization_id = ? AND user_id = ?", orgID, userID).Take(&existing).Error
	switch {
	case err == nil:
		return tx.Model(&existing).Updates(map[string]any{"role_id": roleID, "is_active": true}).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.Create(&models.OrganizationUserRole{
			OrganizationID: orgID,
			UserID:         userID,
			RoleID:         roleID,
			IsActive:       true,
		}).Error
	default:
		return err
	}
}

func findRoleInOrg(tx *gorm.DB, orgID, roleID uuid.UUID) (*models.OrganizationRole, error) {
	var role models.OrganizationRole
	if err := tx.Preload("Grants.Permission").Where("id = ? AND organization_id = ?", roleID, orgID).Take(&role).Error; err != nil {
		return nil, notFound(err)
	}
	return &role, nil
}

func requireUser(tx *gorm.DB, userID uuid.UUID) error {
	var count int64
	if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
