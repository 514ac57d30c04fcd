package api_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hugh/orgauth/internal/api"
	"github.com/hugh/orgauth/internal/api/dto"
	"github.com/hugh/orgauth/internal/api/handlers"
	"github.com/hugh/orgauth/internal/auth"
	"github.com/hugh/orgauth/internal/authz"
	"github.com/hugh/orgauth/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, loginLimit int) (*api.Router, *testutil.TestSetup) {
	t.Helper()

	tc := testutil.NewTestContext(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := prometheus.NewRegistry()
	metrics := authz.NewMetrics(registry)

	gate := authz.NewGate(
		auth.NewSessionResolver(tc.JWTService, tc.Store, logger),
		authz.NewContextResolver(tc.Store, metrics),
		logger,
		authz.WithMetrics(metrics),
	)

	router := api.NewRouter(api.RouterConfig{
		DB:             tc.DB,
		Logger:         logger,
		Store:          tc.Store,
		AuthService:    auth.NewService(tc.Store, tc.JWTService, logger),
		Gate:           gate,
		Gatherer:       registry,
		Cookie:         handlers.CookieConfig{Name: "auth-token"},
		LoginLimitReqs: loginLimit,
		LoginWindow:    time.Minute,
	})
	return router, tc
}

func TestRouter_Health(t *testing.T) {
	router, _ := newTestRouter(t, 10)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"database":"healthy"`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/ready", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_MetricsExposeDecisions(t *testing.T) {
	router, tc := newTestRouter(t, 10)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "GET", "/api/v1/organizations/"+tc.Org.ID.String()+"/roles", nil, tc.Token))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `authz_decisions_total{outcome="allowed",permission_category="roles"} 1`)
}

func TestRouter_CookieSessionNeedsCSRFToken(t *testing.T) {
	router, tc := newTestRouter(t, 10)
	cookie := &http.Cookie{Name: "auth-token", Value: tc.Token}

	// Cookie sessions resolve like bearer sessions
	req := httptest.NewRequest("GET", "/api/v1/auth/csrf", nil)
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]string
	testutil.ParseJSONResponse(t, rr, &body)
	token := body["csrf_token"]
	require.NotEmpty(t, token)

	payload := `{"name":"Cookie Org"}`

	req = httptest.NewRequest("POST", "/api/v1/organizations", strings.NewReader(payload))
	req.AddCookie(cookie)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	req = httptest.NewRequest("POST", "/api/v1/organizations", strings.NewReader(payload))
	req.AddCookie(cookie)
	req.Header.Set("X-CSRF-Token", token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestRouter_LoginRateLimit(t *testing.T) {
	router, tc := newTestRouter(t, 2)
	body := map[string]string{"username": tc.User.Username, "password": "wrong-password"}

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login", body))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login", body))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestRouter_TenantRoutes(t *testing.T) {
	router, tc := newTestRouter(t, 10)
	outsider := testutil.CreateTestUser(t, tc.DB)
	outsiderToken := testutil.GenerateTestToken(t, tc.JWTService, outsider, nil)

	tests := []struct {
		name   string
		token  string
		path   string
		status int
		code   string
	}{
		{"owner reads members", tc.Token, "/members", http.StatusOK, ""},
		{"outsider is not a member", outsiderToken, "/members", http.StatusForbidden, "not_a_member"},
		{"anonymous", "", "/members", http.StatusUnauthorized, "unauthenticated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "GET", "/api/v1/organizations/"+tc.Org.ID.String()+tt.path, nil, tt.token))
			assert.Equal(t, tt.status, rr.Code)
			if tt.code != "" {
				var resp dto.ErrorResponse
				testutil.ParseJSONResponse(t, rr, &resp)
				assert.Equal(t, tt.code, resp.Code)
			}
		})
	}
}
