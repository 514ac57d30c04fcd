package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/orgauth/internal/auth"
	"github.com/hugh/orgauth/internal/database"
	"github.com/hugh/orgauth/internal/database/models"
	"github.com/hugh/orgauth/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestPassword is the password of every fixture user.
const TestPassword = "testpassword123"

// FixedNow is the synthetic clock used by fixture tokens.
var FixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

// SetupTestDB creates a migrated in-memory SQLite database with the
// permission catalog seeded.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Every pooled connection to ":memory:" would be a separate database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	if err := store.New(db).EnsurePermissionCatalog(context.Background(), store.BuiltinPermissions); err != nil {
		t.Fatalf("failed to seed permission catalog: %v", err)
	}

	t.Cleanup(func() { CleanupTestDB(t, db) })
	return db
}

// CleanupTestDB closes the test database connection
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("warning: failed to get sql.DB: %v", err)
		return
	}
	sqlDB.Close()
}

type UserOption func(*models.User)

func WithStatus(status models.UserStatus, active bool) UserOption {
	return func(u *models.User) {
		u.Status = status
		u.IsActive = active
	}
}

func WithUsername(username string) UserOption {
	return func(u *models.User) { u.Username = username }
}

// CreateTestUser creates an active user with TestPassword.
func CreateTestUser(t *testing.T, db *gorm.DB, opts ...UserOption) *models.User {
	t.Helper()

	hash, err := auth.HashPassword(TestPassword)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	suffix := uuid.New().String()[:8]
	user := &models.User{
		Username:     "user-" + suffix,
		Email:        "test-" + suffix + "@example.com",
		FirstName:    "Test",
		LastName:     "User",
		PasswordHash: hash,
		Status:       models.UserStatusActive,
		IsActive:     true,
	}
	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestOrg creates an organization with the default roles, owned by
// owner.
func CreateTestOrg(t *testing.T, db *gorm.DB, owner *models.User) *models.Organization {
	t.Helper()
	return CreateTestOrgWith(t, db, owner, store.NewOrganization{})
}

func CreateTestOrgWith(t *testing.T, db *gorm.DB, owner *models.User, in store.NewOrganization) *models.Organization {
	t.Helper()

	if in.Name == "" {
		in.Name = "Test Organization " + uuid.New().String()[:8]
	}
	m, err := store.New(db).CreateOrganization(context.Background(), in, owner.ID)
	if err != nil {
		t.Fatalf("failed to create test organization: %v", err)
	}

	var org models.Organization
	if err := db.Where("id = ?", m.OrganizationID).Take(&org).Error; err != nil {
		t.Fatalf("failed to load test organization: %v", err)
	}
	return &org
}

// RoleByName loads one of an organization's roles.
func RoleByName(t *testing.T, db *gorm.DB, orgID uuid.UUID, name string) *models.OrganizationRole {
	t.Helper()

	var role models.OrganizationRole
	if err := db.Where("organization_id = ? AND name = ?", orgID, name).Take(&role).Error; err != nil {
		t.Fatalf("failed to load role %q: %v", name, err)
	}
	return &role
}

// CreateTestRole creates a role with the given allowed grants directly,
// bypassing the custom-role rules.
func CreateTestRole(t *testing.T, db *gorm.DB, orgID uuid.UUID, name string, grants map[string]bool) *models.OrganizationRole {
	t.Helper()

	role := &models.OrganizationRole{
		OrganizationID: orgID,
		Name:           name,
		Position:       10,
	}
	if err := db.Create(role).Error; err != nil {
		t.Fatalf("failed to create role: %v", err)
	}

	for permName, allowed := range grants {
		var perm models.Permission
		if err := db.Where("name = ?", permName).Take(&perm).Error; err != nil {
			t.Fatalf("permission %q is not cataloged: %v", permName, err)
		}
		grant := models.OrganizationRolePermission{RoleID: role.ID, PermissionID: perm.ID, Allowed: allowed}
		if err := db.Create(&grant).Error; err != nil {
			t.Fatalf("failed to create grant: %v", err)
		}
	}
	return role
}

// AddTestMember adds user to org with the named role. An empty role name
// adds the membership without a role assignment.
func AddTestMember(t *testing.T, db *gorm.DB, orgID, userID uuid.UUID, roleName string) {
	t.Helper()

	member := &models.OrganizationUser{
		OrganizationID: orgID,
		UserID:         userID,
		IsActive:       true,
		JoinedAt:       time.Now(),
	}
	if err := db.Create(member).Error; err != nil {
		t.Fatalf("failed to create membership: %v", err)
	}
	if roleName == "" {
		return
	}

	role := RoleByName(t, db, orgID, roleName)
	assignment := &models.OrganizationUserRole{
		OrganizationID: orgID,
		UserID:         userID,
		RoleID:         role.ID,
		IsActive:       true,
	}
	if err := db.Create(assignment).Error; err != nil {
		t.Fatalf("failed to create role assignment: %v", err)
	}
}

// CreateTestJWTService returns a JWT service pinned to FixedNow.
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", 24*time.Hour,
		auth.WithClock(func() time.Time { return FixedNow }),
	)
}

// GenerateTestToken issues a token for user, optionally embedding orgID.
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User, orgID *uuid.UUID) string {
	t.Helper()

	token, _, err := jwtService.GenerateToken(auth.TokenSubject{
		UserID:         user.ID,
		Username:       user.Username,
		Email:          user.Email,
		OrganizationID: orgID,
	})
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds all the common test dependencies
type TestSetup struct {
	DB         *gorm.DB
	Store      *store.Store
	JWTService *auth.JWTService
	Org        *models.Organization
	User       *models.User
	Token      string
}

// NewTestContext creates a DB, an owner, their organization and a token
// scoped to it.
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	user := CreateTestUser(t, db)
	org := CreateTestOrg(t, db, user)
	token := GenerateTestToken(t, jwtService, user, &org.ID)

	return &TestSetup{
		DB:         db,
		Store:      store.New(db),
		JWTService: jwtService,
		Org:        org,
		User:       user,
		Token:      token,
	}
}
