package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hugh/orgauth/internal/api/dto"
	"github.com/hugh/orgauth/internal/auth"
	"github.com/hugh/orgauth/internal/database/models"
	"github.com/hugh/orgauth/internal/store"
	"github.com/hugh/orgauth/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orgPath(s *handlerSetup, suffix string) string {
	return "/api/v1/organizations/" + s.Org.ID.String() + suffix
}

func TestOrganizationHandler_Create(t *testing.T) {
	s := newHandlerSetup(t)

	t.Run("creates organization owned by caller", func(t *testing.T) {
		body := map[string]interface{}{"name": "Acme Widgets", "currency": "EUR", "allow_custom_roles": true}

		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "POST", "/api/v1/organizations", body, s.Token))
		testutil.AssertStatus(t, rr, http.StatusCreated)

		var resp dto.MembershipDTO
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.True(t, resp.IsOwner)
		assert.Equal(t, "acme-widgets", resp.Organization.Slug)
		assert.Equal(t, "EUR", resp.Organization.Currency)
	})

	t.Run("duplicate slug", func(t *testing.T) {
		body := map[string]interface{}{"name": "Acme Widgets"}

		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "POST", "/api/v1/organizations", body, s.Token))
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("validation", func(t *testing.T) {
		body := map[string]interface{}{"name": "", "currency": "euro"}

		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "POST", "/api/v1/organizations", body, s.Token))
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Contains(t, resp.Details, "name")
		assert.Contains(t, resp.Details, "currency")
	})
}

func TestOrganizationHandler_Get(t *testing.T) {
	s := newHandlerSetup(t)
	outsider := testutil.CreateTestUser(t, s.DB)

	rr := httptest.NewRecorder()
	s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "GET", orgPath(s, ""), nil, s.Token))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var org dto.OrganizationDTO
	testutil.ParseJSONResponse(t, rr, &org)
	assert.Equal(t, s.Org.Name, org.Name)

	rr = httptest.NewRecorder()
	token := testutil.GenerateTestToken(t, s.JWTService, outsider, nil)
	s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "GET", orgPath(s, ""), nil, token))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestOrganizationHandler_Members(t *testing.T) {
	s := newHandlerSetup(t)
	newbie := testutil.CreateTestUser(t, s.DB)
	memberRole := testutil.RoleByName(t, s.DB, s.Org.ID, "Member")
	adminRole := testutil.RoleByName(t, s.DB, s.Org.ID, "Admin")

	t.Run("add member with default role", func(t *testing.T) {
		body := map[string]string{"user_id": newbie.ID.String()}

		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "POST", orgPath(s, "/members"), body, s.Token))
		testutil.AssertStatus(t, rr, http.StatusCreated)
	})

	t.Run("adding twice conflicts", func(t *testing.T) {
		body := map[string]string{"user_id": newbie.ID.String()}

		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "POST", orgPath(s, "/members"), body, s.Token))
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("list members", func(t *testing.T) {
		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "GET", orgPath(s, "/members"), nil, s.Token))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var page struct {
			Data  []dto.MemberDTO `json:"data"`
			Total int64           `json:"total"`
		}
		testutil.ParseJSONResponse(t, rr, &page)
		assert.EqualValues(t, 2, page.Total)
		members := page.Data
		require.Len(t, members, 2)
		byUser := map[string]dto.MemberDTO{}
		for _, m := range members {
			byUser[m.UserID] = m
		}
		require.NotNil(t, byUser[newbie.ID.String()].RoleID)
		assert.Equal(t, memberRole.ID.String(), *byUser[newbie.ID.String()].RoleID)
	})

	t.Run("member cannot invite", func(t *testing.T) {
		newbieToken := testutil.GenerateTestToken(t, s.JWTService, newbie, &s.Org.ID)
		body := map[string]string{"user_id": testutil.CreateTestUser(t, s.DB).ID.String()}

		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "POST", orgPath(s, "/members"), body, newbieToken))
		assert.Equal(t, http.StatusForbidden, rr.Code)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "forbidden", resp.Code)
	})

	t.Run("pagination", func(t *testing.T) {
		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "GET", orgPath(s, "/members?page=2&per_page=1"), nil, s.Token))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var page dto.PaginatedResponse
		testutil.ParseJSONResponse(t, rr, &page)
		assert.Equal(t, 2, page.Page)
		assert.Equal(t, 2, page.TotalPages)
		assert.Len(t, page.Data, 1)
	})

	t.Run("promote to admin grants members category", func(t *testing.T) {
		body := map[string]string{"role_id": adminRole.ID.String()}

		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "PUT", orgPath(s, "/members/"+newbie.ID.String()+"/role"), body, s.Token))
		testutil.AssertStatus(t, rr, http.StatusOK)

		newbieToken := testutil.GenerateTestToken(t, s.JWTService, newbie, &s.Org.ID)
		rr = httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "GET", orgPath(s, "/members"), nil, newbieToken))
		testutil.AssertStatus(t, rr, http.StatusOK)
	})

	t.Run("role from another organization", func(t *testing.T) {
		other := testutil.CreateTestOrg(t, s.DB, testutil.CreateTestUser(t, s.DB))
		foreignRole := testutil.RoleByName(t, s.DB, other.ID, "Admin")
		body := map[string]string{"role_id": foreignRole.ID.String()}

		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "PUT", orgPath(s, "/members/"+newbie.ID.String()+"/role"), body, s.Token))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("owner cannot be deactivated", func(t *testing.T) {
		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "DELETE", orgPath(s, "/members/"+s.User.ID.String()), nil, s.Token))
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("deactivated member loses access", func(t *testing.T) {
		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "DELETE", orgPath(s, "/members/"+newbie.ID.String()), nil, s.Token))
		testutil.AssertStatus(t, rr, http.StatusNoContent)

		newbieToken := testutil.GenerateTestToken(t, s.JWTService, newbie, &s.Org.ID)
		rr = httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "GET", orgPath(s, "/members"), nil, newbieToken))
		assert.Equal(t, http.StatusForbidden, rr.Code)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "not_a_member", resp.Code)
	})

	t.Run("invalid user id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "DELETE", orgPath(s, "/members/not-a-uuid"), nil, s.Token))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestOrganizationHandler_OwnerRoleIsGuarded(t *testing.T) {
	s := newHandlerSetup(t)
	ctx := testutil.TestContext(t)

	admin := testutil.CreateTestUser(t, s.DB)
	testutil.AddTestMember(t, s.DB, s.Org.ID, admin.ID, "Admin")
	adminToken := testutil.GenerateTestToken(t, s.JWTService, admin, &s.Org.ID)
	ownerRole := testutil.RoleByName(t, s.DB, s.Org.ID, store.OwnerRoleName)
	memberRole := testutil.RoleByName(t, s.DB, s.Org.ID, "Member")

	t.Run("admin cannot make themselves owner", func(t *testing.T) {
		body := map[string]string{"role_id": ownerRole.ID.String()}

		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "PUT", orgPath(s, "/members/"+admin.ID.String()+"/role"), body, adminToken))
		assert.Equal(t, http.StatusConflict, rr.Code)

		allowed, err := s.Gate.HasPermission(auth.ContextWithToken(ctx, adminToken), "anything.at_all", &s.Org.ID)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("admin cannot invite a new owner", func(t *testing.T) {
		body := map[string]string{
			"user_id": testutil.CreateTestUser(t, s.DB).ID.String(),
			"role_id": ownerRole.ID.String(),
		}

		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "POST", orgPath(s, "/members"), body, adminToken))
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("admin cannot demote the owner", func(t *testing.T) {
		body := map[string]string{"role_id": memberRole.ID.String()}

		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "PUT", orgPath(s, "/members/"+s.User.ID.String()+"/role"), body, adminToken))
		assert.Equal(t, http.StatusConflict, rr.Code)

		allowed, err := s.Gate.HasPermission(auth.ContextWithToken(ctx, s.Token), "members.update", &s.Org.ID)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("owner can hand out the owner role", func(t *testing.T) {
		body := map[string]string{"role_id": ownerRole.ID.String()}

		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "PUT", orgPath(s, "/members/"+admin.ID.String()+"/role"), body, s.Token))
		testutil.AssertStatus(t, rr, http.StatusOK)
	})
}

func TestOrganizationHandler_Roles(t *testing.T) {
	s := newHandlerSetup(t)
	owner := testutil.CreateTestUser(t, s.DB)
	org := testutil.CreateTestOrgWith(t, s.DB, owner, store.NewOrganization{Name: "Custom Roles Co", AllowCustomRoles: true})
	token := testutil.GenerateTestToken(t, s.JWTService, owner, &org.ID)
	base := "/api/v1/organizations/" + org.ID.String() + "/roles"

	var created dto.RoleDTO

	t.Run("list default roles", func(t *testing.T) {
		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "GET", base, nil, token))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var roles []dto.RoleDTO
		testutil.ParseJSONResponse(t, rr, &roles)
		require.Len(t, roles, 3)
		assert.Equal(t, "Owner", roles[0].Name)
		assert.True(t, roles[0].IsSystemRole)
	})

	t.Run("create custom role", func(t *testing.T) {
		body := dto.RoleRequest{
			Name:   "Stock Clerk",
			Grants: []dto.GrantDTO{{Permission: "inventory.*", Allowed: true}, {Permission: "products.read", Allowed: true}},
		}

		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "POST", base, body, token))
		testutil.AssertStatus(t, rr, http.StatusCreated)

		testutil.ParseJSONResponse(t, rr, &created)
		assert.Equal(t, "Stock Clerk", created.Name)
		assert.False(t, created.IsSystemRole)
		assert.Len(t, created.Grants, 2)
	})

	t.Run("global wildcard rejected", func(t *testing.T) {
		body := dto.RoleRequest{Name: "Root", Grants: []dto.GrantDTO{{Permission: "*", Allowed: true}}}

		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "POST", base, body, token))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unknown permission rejected", func(t *testing.T) {
		body := dto.RoleRequest{Name: "Ghost", Grants: []dto.GrantDTO{{Permission: "ghosts.haunt", Allowed: true}}}

		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "POST", base, body, token))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("update grants", func(t *testing.T) {
		body := dto.SetGrantsRequest{Grants: []dto.GrantDTO{{Permission: "inventory.read", Allowed: true}}}

		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "PUT", base+"/"+created.ID+"/grants", body, token))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var role dto.RoleDTO
		testutil.ParseJSONResponse(t, rr, &role)
		require.Len(t, role.Grants, 1)
		assert.Equal(t, "inventory.read", role.Grants[0].Permission)
	})

	t.Run("system role is immutable", func(t *testing.T) {
		ownerRole := testutil.RoleByName(t, s.DB, org.ID, "Owner")
		body := dto.SetGrantsRequest{Grants: []dto.GrantDTO{{Permission: "products.read", Allowed: true}}}

		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "PUT", base+"/"+ownerRole.ID.String()+"/grants", body, token))
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("delete custom role", func(t *testing.T) {
		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "DELETE", base+"/"+created.ID, nil, token))
		testutil.AssertStatus(t, rr, http.StatusNoContent)

		var count int64
		require.NoError(t, s.DB.Model(&models.OrganizationRole{}).Where("id = ?", created.ID).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("custom roles disabled", func(t *testing.T) {
		body := dto.RoleRequest{Name: "Clerk", Grants: []dto.GrantDTO{{Permission: "products.read", Allowed: true}}}

		rr := httptest.NewRecorder()
		s.Router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "POST", orgPath(s, "/roles"), body, s.Token))
		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}
