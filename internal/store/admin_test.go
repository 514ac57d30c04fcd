package store_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/hugh/orgauth/internal/database/models"
	"github.com/hugh/orgauth/internal/store"
	"github.com/hugh/orgauth/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_EnsurePermissionCatalog(t *testing.T) {
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	ctx := testutil.TestContext(t)

	// SetupTestDB already seeded once; a second run must not duplicate.
	require.NoError(t, st.EnsurePermissionCatalog(ctx, store.BuiltinPermissions))

	var count int64
	require.NoError(t, db.Model(&models.Permission{}).Count(&count).Error)
	assert.Equal(t, int64(len(store.BuiltinPermissions)), count)

	var wildcard models.Permission
	require.NoError(t, db.Where("name = ?", "products.*").Take(&wildcard).Error)
	assert.True(t, wildcard.IsWildcard)
	assert.Equal(t, "products", wildcard.Category)
}

func TestStore_RegisterAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	ctx := testutil.TestContext(t)

	t.Run("with organization", func(t *testing.T) {
		user := &models.User{Username: "founder", PasswordHash: "x", Status: models.UserStatusActive, IsActive: true}
		m, err := st.RegisterAccount(ctx, user, &store.NewOrganization{Name: "Acme Widgets"})
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.True(t, m.IsOwner)
		assert.Equal(t, "acme-widgets", m.Organization.Slug)

		roles, err := st.ListRoles(ctx, m.OrganizationID)
		require.NoError(t, err)
		require.Len(t, roles, len(store.DefaultRoles))
		assert.Equal(t, store.OwnerRoleName, roles[0].Name)
	})

	t.Run("without organization", func(t *testing.T) {
		user := &models.User{Username: "solo", PasswordHash: "x", Status: models.UserStatusActive, IsActive: true}
		m, err := st.RegisterAccount(ctx, user, nil)
		require.NoError(t, err)
		assert.Nil(t, m)
	})

	t.Run("duplicate username", func(t *testing.T) {
		user := &models.User{Username: "founder", PasswordHash: "x", Status: models.UserStatusActive, IsActive: true}
		_, err := st.RegisterAccount(ctx, user, nil)
		assert.ErrorIs(t, err, store.ErrUsernameTaken)
		assert.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("unique index decides a lost race", func(t *testing.T) {
		require.NoError(t, db.Create(&models.User{Username: "racer", PasswordHash: "x", Status: models.UserStatusActive, IsActive: true}).Error)

		user := &models.User{Username: "racer", PasswordHash: "y", Status: models.UserStatusActive, IsActive: true}
		_, err := st.RegisterAccount(ctx, user, &store.NewOrganization{Name: "Racing Team"})
		assert.ErrorIs(t, err, store.ErrUsernameTaken)

		var count int64
		require.NoError(t, db.Model(&models.Organization{}).Where("name = ?", "Racing Team").Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("failed organization rolls back user", func(t *testing.T) {
		user := &models.User{Username: "copycat", PasswordHash: "x", Status: models.UserStatusActive, IsActive: true}
		_, err := st.RegisterAccount(ctx, user, &store.NewOrganization{Name: "Acme Widgets"})
		assert.ErrorIs(t, err, store.ErrConflict)

		_, err = st.FindCredentials(ctx, "copycat")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestStore_CreateOrganization(t *testing.T) {
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	ctx := testutil.TestContext(t)

	owner := testutil.CreateTestUser(t, db)

	t.Run("unknown owner", func(t *testing.T) {
		_, err := st.CreateOrganization(ctx, store.NewOrganization{Name: "Ghost"}, uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := st.CreateOrganization(ctx, store.NewOrganization{Name: "  "}, owner.ID)
		assert.ErrorIs(t, err, store.ErrInvalidInput)
	})

	t.Run("invalid slug", func(t *testing.T) {
		_, err := st.CreateOrganization(ctx, store.NewOrganization{Name: "Bad", Slug: "Not A Slug"}, owner.ID)
		assert.ErrorIs(t, err, store.ErrInvalidInput)
	})

	t.Run("member role is the default", func(t *testing.T) {
		m, err := st.CreateOrganization(ctx, store.NewOrganization{Name: "Defaults"}, owner.ID)
		require.NoError(t, err)

		roles, err := st.ListRoles(ctx, m.OrganizationID)
		require.NoError(t, err)
		for _, r := range roles {
			assert.Equal(t, r.Name == "Member", r.IsDefault, r.Name)
		}
	})
}

func TestStore_AddMember(t *testing.T) {
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	ctx := testutil.TestContext(t)

	owner := testutil.CreateTestUser(t, db)
	org := testutil.CreateTestOrg(t, db, owner)

	t.Run("assigns the default role", func(t *testing.T) {
		user := testutil.CreateTestUser(t, db)
		m, err := st.AddMember(ctx, org.ID, owner.ID, user.ID, nil)
		require.NoError(t, err)
		assert.False(t, m.IsOwner)
		assert.Equal(t, org.ID, m.Organization.ID)

		a, err := st.FindActiveRoleAssignment(ctx, org.ID, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "Member", a.Role.Name)
	})

	t.Run("explicit role", func(t *testing.T) {
		user := testutil.CreateTestUser(t, db)
		admin := testutil.RoleByName(t, db, org.ID, "Admin")
		_, err := st.AddMember(ctx, org.ID, owner.ID, user.ID, &admin.ID)
		require.NoError(t, err)

		a, err := st.FindActiveRoleAssignment(ctx, org.ID, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "Admin", a.Role.Name)
	})

	t.Run("role of another organization", func(t *testing.T) {
		otherOrg := testutil.CreateTestOrg(t, db, owner)
		foreign := testutil.RoleByName(t, db, otherOrg.ID, "Admin")
		user := testutil.CreateTestUser(t, db)

		_, err := st.AddMember(ctx, org.ID, owner.ID, user.ID, &foreign.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = st.FindActiveMembership(ctx, org.ID, user.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("already a member", func(t *testing.T) {
		_, err := st.AddMember(ctx, org.ID, owner.ID, owner.ID, nil)
		assert.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("reactivates a deactivated member", func(t *testing.T) {
		user := testutil.CreateTestUser(t, db)
		_, err := st.AddMember(ctx, org.ID, owner.ID, user.ID, nil)
		require.NoError(t, err)
		require.NoError(t, st.DeactivateMember(ctx, org.ID, user.ID))

		_, err = st.FindActiveRoleAssignment(ctx, org.ID, user.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = st.AddMember(ctx, org.ID, owner.ID, user.ID, nil)
		require.NoError(t, err)

		_, err = st.FindActiveMembership(ctx, org.ID, user.ID)
		assert.NoError(t, err)
		_, err = st.FindActiveRoleAssignment(ctx, org.ID, user.ID)
		assert.NoError(t, err)
	})
}

func TestStore_AssignRole(t *testing.T) {
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	ctx := testutil.TestContext(t)

	owner := testutil.CreateTestUser(t, db)
	org := testutil.CreateTestOrg(t, db, owner)
	user := testutil.CreateTestUser(t, db)
	testutil.AddTestMember(t, db, org.ID, user.ID, "Member")

	admin := testutil.RoleByName(t, db, org.ID, "Admin")
	member := testutil.RoleByName(t, db, org.ID, "Member")
	ownerRole := testutil.RoleByName(t, db, org.ID, store.OwnerRoleName)

	require.NoError(t, st.AssignRole(ctx, org.ID, owner.ID, user.ID, admin.ID))

	a, err := st.FindActiveRoleAssignment(ctx, org.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Admin", a.Role.Name)

	assert.ErrorIs(t, st.AssignRole(ctx, org.ID, owner.ID, user.ID, uuid.New()), store.ErrNotFound)
	assert.ErrorIs(t, st.AssignRole(ctx, org.ID, owner.ID, uuid.New(), admin.ID), store.ErrNotFound)

	t.Run("admin cannot grant the owner role", func(t *testing.T) {
		assert.ErrorIs(t, st.AssignRole(ctx, org.ID, user.ID, user.ID, ownerRole.ID), store.ErrSystemRole)

		a, err := st.FindActiveRoleAssignment(ctx, org.ID, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "Admin", a.Role.Name)
	})

	t.Run("owner assignment is fixed", func(t *testing.T) {
		assert.ErrorIs(t, st.AssignRole(ctx, org.ID, user.ID, owner.ID, member.ID), store.ErrOwnerImmutable)
		assert.ErrorIs(t, st.AssignRole(ctx, org.ID, owner.ID, owner.ID, member.ID), store.ErrOwnerImmutable)

		a, err := st.FindActiveRoleAssignment(ctx, org.ID, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, store.OwnerRoleName, a.Role.Name)
	})

	t.Run("owner can grant the owner role", func(t *testing.T) {
		other := testutil.CreateTestUser(t, db)
		testutil.AddTestMember(t, db, org.ID, other.ID, "Member")

		require.NoError(t, st.AssignRole(ctx, org.ID, owner.ID, other.ID, ownerRole.ID))
	})
}

func TestStore_AddMemberPrivilegedRole(t *testing.T) {
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	ctx := testutil.TestContext(t)

	owner := testutil.CreateTestUser(t, db)
	org := testutil.CreateTestOrg(t, db, owner)
	admin := testutil.CreateTestUser(t, db)
	testutil.AddTestMember(t, db, org.ID, admin.ID, "Admin")
	ownerRole := testutil.RoleByName(t, db, org.ID, store.OwnerRoleName)

	user := testutil.CreateTestUser(t, db)
	_, err := st.AddMember(ctx, org.ID, admin.ID, user.ID, &ownerRole.ID)
	assert.ErrorIs(t, err, store.ErrSystemRole)
	_, err = st.FindActiveMembership(ctx, org.ID, user.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = st.AddMember(ctx, org.ID, owner.ID, user.ID, &ownerRole.ID)
	require.NoError(t, err)
}

func TestStore_DeactivateMember(t *testing.T) {
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	ctx := testutil.TestContext(t)

	owner := testutil.CreateTestUser(t, db)
	org := testutil.CreateTestOrg(t, db, owner)

	assert.ErrorIs(t, st.DeactivateMember(ctx, org.ID, owner.ID), store.ErrOwnerImmutable)
	assert.ErrorIs(t, st.DeactivateMember(ctx, org.ID, uuid.New()), store.ErrNotFound)

	members, total, err := st.ListMembers(ctx, org.ID, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, members, 1)
	assert.Equal(t, owner.Username, members[0].Username)
	require.NotNil(t, members[0].RoleName)
	assert.Equal(t, store.OwnerRoleName, *members[0].RoleName)
}

func TestStore_CustomRoles(t *testing.T) {
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	ctx := testutil.TestContext(t)

	owner := testutil.CreateTestUser(t, db)
	locked := testutil.CreateTestOrg(t, db, owner)
	open := testutil.CreateTestOrgWith(t, db, owner, store.NewOrganization{AllowCustomRoles: true})

	grants := []store.PermissionGrant{{Name: "products.*", Allowed: true}}

	t.Run("disabled for organization", func(t *testing.T) {
		_, err := st.CreateRole(ctx, locked.ID, store.NewRole{Name: "Buyer"}, grants)
		assert.ErrorIs(t, err, store.ErrCustomRolesDisabled)
	})

	t.Run("global wildcard rejected", func(t *testing.T) {
		_, err := st.CreateRole(ctx, open.ID, store.NewRole{Name: "Root"}, []store.PermissionGrant{{Name: "*", Allowed: true}})
		assert.ErrorIs(t, err, store.ErrWildcardDenied)
	})

	t.Run("unknown permission", func(t *testing.T) {
		_, err := st.CreateRole(ctx, open.ID, store.NewRole{Name: "Odd"}, []store.PermissionGrant{{Name: "rockets.launch", Allowed: true}})
		assert.ErrorIs(t, err, store.ErrUnknownPermission)
	})

	t.Run("create, update and delete", func(t *testing.T) {
		role, err := st.CreateRole(ctx, open.ID, store.NewRole{Name: "Buyer"}, grants)
		require.NoError(t, err)
		assert.Equal(t, len(store.DefaultRoles), role.Position)
		assert.False(t, role.IsSystemRole)

		_, err = st.CreateRole(ctx, open.ID, store.NewRole{Name: "Buyer"}, grants)
		assert.ErrorIs(t, err, store.ErrConflict)

		updated, err := st.SetRoleGrants(ctx, open.ID, role.ID, []store.PermissionGrant{
			{Name: "inventory.read", Allowed: true},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"inventory.read"}, updated.AllowedNames())

		roles, err := st.ListRoles(ctx, open.ID)
		require.NoError(t, err)
		last := roles[len(roles)-1]
		assert.Equal(t, "Buyer", last.Name)
		assert.Equal(t, []store.PermissionGrant{{Name: "inventory.read", Allowed: true}}, last.Grants)

		user := testutil.CreateTestUser(t, db)
		_, err = st.AddMember(ctx, open.ID, owner.ID, user.ID, &role.ID)
		require.NoError(t, err)
		assert.ErrorIs(t, st.DeleteRole(ctx, open.ID, role.ID), store.ErrRoleInUse)

		require.NoError(t, st.DeactivateMember(ctx, open.ID, user.ID))
		require.NoError(t, st.DeleteRole(ctx, open.ID, role.ID))
	})

	t.Run("custom default role leaves system roles alone", func(t *testing.T) {
		role, err := st.CreateRole(ctx, open.ID, store.NewRole{Name: "Trainee", IsDefault: true}, grants)
		require.NoError(t, err)
		assert.True(t, role.IsDefault)

		member := testutil.RoleByName(t, db, open.ID, "Member")
		assert.True(t, member.IsDefault)

		user := testutil.CreateTestUser(t, db)
		_, err = st.AddMember(ctx, open.ID, owner.ID, user.ID, nil)
		require.NoError(t, err)

		a, err := st.FindActiveRoleAssignment(ctx, open.ID, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "Trainee", a.Role.Name)
	})

	t.Run("system roles are immutable", func(t *testing.T) {
		member := testutil.RoleByName(t, db, open.ID, "Member")
		_, err := st.SetRoleGrants(ctx, open.ID, member.ID, grants)
		assert.ErrorIs(t, err, store.ErrSystemRole)
		assert.ErrorIs(t, st.DeleteRole(ctx, open.ID, member.ID), store.ErrSystemRole)
	})
}

func TestStore_RecordAuthEvent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	ctx := testutil.TestContext(t)

	orgID := uuid.New()
	event := &models.AuthEvent{UserID: uuid.New(), OrganizationID: &orgID, Permission: "products.delete", Outcome: "denied"}
	require.NoError(t, st.RecordAuthEvent(ctx, event))
	assert.False(t, event.OccurredAt.IsZero())

	var count int64
	require.NoError(t, db.Model(&models.AuthEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
