package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/orgauth/internal/api/dto"
	"github.com/hugh/orgauth/internal/auth"
	"github.com/hugh/orgauth/internal/authz"
	"github.com/hugh/orgauth/internal/database/models"
	"github.com/hugh/orgauth/internal/store"
)

func benchTenant() *authz.TenantContext {
	orgID := uuid.New()
	grants := make([]store.PermissionGrant, 0, len(store.BuiltinPermissions))
	for _, p := range store.BuiltinPermissions {
		if p.Name != store.GlobalWildcard {
			grants = append(grants, store.PermissionGrant{Name: p.Name, Allowed: true})
		}
	}
	return &authz.TenantContext{
		User: &auth.ResolvedUser{ID: uuid.New(), Username: "bench", Email: "bench@example.com", SessionOrganizationID: &orgID},
		Organization: store.OrganizationProjection{
			ID: orgID, Name: "Bench Org", Slug: "bench-org",
			Status: models.OrganizationStatusActive, Timezone: "UTC", Currency: "USD",
		},
		Membership: store.Membership{OrganizationID: orgID, IsActive: true, JoinedAt: time.Now()},
		Role:       &store.Role{ID: uuid.New(), OrganizationID: orgID, Name: "Admin", Grants: grants},
	}
}

// BenchmarkJSONSerialization benchmarks JSON encoding of common response types
func BenchmarkJSONSerialization(b *testing.B) {
	b.Run("ErrorResponse", func(b *testing.B) {
		resp := dto.ErrorResponse{
			Error: "Validation failed",
			Details: map[string]string{
				"username": "Username is required",
				"password": "Password is required",
			},
		}
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = json.Marshal(resp)
		}
	})

	b.Run("ContextResponse", func(b *testing.B) {
		resp := dto.ContextFromTenant(benchTenant())
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = json.Marshal(resp)
		}
	})

	b.Run("PaginatedMembersResponse", func(b *testing.B) {
		roleName := "Member"
		members := make([]dto.MemberDTO, 50)
		for i := range members {
			members[i] = dto.MemberFromStore(store.MemberView{
				UserID: uuid.New(), Username: "member", Email: "member@example.com",
				JoinedAt: time.Now(), RoleName: &roleName,
			})
		}
		resp := dto.PaginatedResponse{Data: members, Total: 500, Page: 1, PerPage: 50, TotalPages: 10}
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = json.Marshal(resp)
		}
	})
}

// BenchmarkRequestValidation benchmarks request DTO validation
func BenchmarkRequestValidation(b *testing.B) {
	b.Run("RegisterRequestValid", func(b *testing.B) {
		req := dto.RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "securepassword123"}
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_ = req.Validate()
		}
	})

	b.Run("RoleRequestValid", func(b *testing.B) {
		req := dto.RoleRequest{Name: "Clerk", Grants: []dto.GrantDTO{
			{Permission: "products.read", Allowed: true},
			{Permission: "inventory.*", Allowed: true},
		}}
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_ = req.Validate()
		}
	})

	b.Run("LoginRequestWithDecoder", func(b *testing.B) {
		data := []byte(`{"username":"alice","password":"securepassword123"}`)
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			var req dto.LoginRequest
			_ = json.NewDecoder(bytes.NewReader(data)).Decode(&req)
			_ = req.Validate()
		}
	})
}

// BenchmarkPermissionCheck benchmarks evaluation against a role with many grants
func BenchmarkPermissionCheck(b *testing.B) {
	tc := benchTenant()

	b.Run("ExactGrant", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = tc.Can("inventory.update")
		}
	})

	b.Run("Denied", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = tc.Can("reports.export")
		}
	})
}

func BenchmarkWriteJSON(b *testing.B) {
	resp := dto.ContextFromTenant(benchTenant())
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		writeJSON(w, 200, resp)
	}
}

func BenchmarkParallelPermissionCheck(b *testing.B) {
	tc := benchTenant()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = tc.Can("members.invite")
		}
	})
}
