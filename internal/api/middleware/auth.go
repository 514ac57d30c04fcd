package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/orgauth/internal/api/dto"
	"github.com/hugh/orgauth/internal/auth"
	"github.com/hugh/orgauth/internal/authz"
)

type contextKey string

const (
	userKey   contextKey = "user"
	tenantKey contextKey = "tenant"
)

// OrganizationQueryParam selects the tenant on routes without {orgID}.
const OrganizationQueryParam = "organization_id"

var ErrInvalidOrganizationID = errors.New("invalid organization id")

// Session extracts the raw session token and attaches a request-scoped
// resolution cache. It never rejects a request; guards do that.
func Session(cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := authz.WithRequestCache(r.Context())
			if token := extractToken(r, cookieName); token != "" {
				ctx = auth.ContextWithToken(ctx, token)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractToken(r *http.Request, cookieName string) string {
	// 1. Authorization header (API requests)
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	// 2. Session cookie (browser clients)
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	// 3. X-Auth-Token header (localStorage fallback for AJAX)
	return r.Header.Get("X-Auth-Token")
}

// RequireAuth rejects requests without a live session and stores the
// resolved user in the context.
func RequireAuth(gate *authz.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := gate.RequireServerAuth(r.Context())
			if err != nil {
				WriteAuthError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission resolves the tenant from the {orgID} URL parameter, or
// the organization_id query parameter, or the session, and rejects the
// request unless the member's role grants permission.
func RequirePermission(gate *authz.Gate, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID, err := OrganizationParam(r)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid organization ID", Code: "invalid_organization_id"})
				return
			}

			tc, err := gate.RequirePermission(r.Context(), permission, orgID)
			if err != nil {
				WriteAuthError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, tc.User)
			ctx = context.WithValue(ctx, tenantKey, tc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OrganizationParam returns the explicitly requested organization, or nil
// when the request names none.
func OrganizationParam(r *http.Request) (*uuid.UUID, error) {
	raw := chi.URLParam(r, "orgID")
	if raw == "" {
		raw = r.URL.Query().Get(OrganizationQueryParam)
	}
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, ErrInvalidOrganizationID
	}
	return &id, nil
}

// Helper functions to extract values from context
func GetUser(ctx context.Context) *auth.ResolvedUser {
	user, _ := ctx.Value(userKey).(*auth.ResolvedUser)
	return user
}

func GetTenant(ctx context.Context) *authz.TenantContext {
	tc, _ := ctx.Value(tenantKey).(*authz.TenantContext)
	return tc
}

func GetUserID(ctx context.Context) uuid.UUID {
	if user := GetUser(ctx); user != nil {
		return user.ID
	}
	return uuid.Nil
}

func GetOrganizationID(ctx context.Context) uuid.UUID {
	if tc := GetTenant(ctx); tc != nil {
		return tc.Organization.ID
	}
	return uuid.Nil
}
