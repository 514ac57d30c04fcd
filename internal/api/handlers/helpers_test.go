package handlers_test

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/orgauth/internal/api/handlers"
	"github.com/hugh/orgauth/internal/api/middleware"
	"github.com/hugh/orgauth/internal/auth"
	"github.com/hugh/orgauth/internal/authz"
	"github.com/hugh/orgauth/internal/testutil"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type handlerSetup struct {
	*testutil.TestSetup
	Router http.Handler
	Auth   *auth.Service
	Gate   *authz.Gate
}

// newHandlerSetup wires the handlers behind the same guards the API router
// uses.
func newHandlerSetup(t *testing.T) *handlerSetup {
	t.Helper()

	tc := testutil.NewTestContext(t)
	authService := auth.NewService(tc.Store, tc.JWTService, discard)
	gate := authz.NewGate(
		auth.NewSessionResolver(tc.JWTService, tc.Store, discard),
		authz.NewContextResolver(tc.Store, nil),
		discard,
	)

	authHandler := handlers.NewAuthHandler(authService, gate, nil, handlers.CookieConfig{})
	meHandler := handlers.NewMeHandler(gate, tc.Store)
	orgHandler := handlers.NewOrganizationHandler(tc.Store, discard)

	r := chi.NewRouter()
	r.Use(middleware.Session("auth-token"))
	r.Post("/api/v1/auth/register", authHandler.Register)
	r.Post("/api/v1/auth/login", authHandler.Login)
	r.Post("/api/v1/auth/logout", authHandler.Logout)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(gate))
		r.Post("/api/v1/session/organization", authHandler.SwitchOrganization)
		r.Get("/api/v1/me", meHandler.Get)
		r.Delete("/api/v1/me", authHandler.CloseAccount)
		r.Get("/api/v1/me/account", authHandler.Account)
		r.Get("/api/v1/me/organizations", meHandler.Organizations)
		r.Get("/api/v1/me/context", meHandler.Context)
		r.Get("/api/v1/me/permissions/{permission}", meHandler.Permission)
		r.Post("/api/v1/organizations", orgHandler.Create)
	})

	r.Route("/api/v1/organizations/{orgID}", func(r chi.Router) {
		r.With(middleware.RequirePermission(gate, "organizations.read")).Get("/", orgHandler.Get)
		r.With(middleware.RequirePermission(gate, "members.read")).Get("/members", orgHandler.ListMembers)
		r.With(middleware.RequirePermission(gate, "members.invite")).Post("/members", orgHandler.AddMember)
		r.With(middleware.RequirePermission(gate, "members.update")).Put("/members/{userID}/role", orgHandler.AssignRole)
		r.With(middleware.RequirePermission(gate, "members.remove")).Delete("/members/{userID}", orgHandler.DeactivateMember)
		r.With(middleware.RequirePermission(gate, "roles.read")).Get("/roles", orgHandler.ListRoles)
		r.With(middleware.RequirePermission(gate, "roles.create")).Post("/roles", orgHandler.CreateRole)
		r.With(middleware.RequirePermission(gate, "roles.update")).Put("/roles/{roleID}/grants", orgHandler.UpdateRoleGrants)
		r.With(middleware.RequirePermission(gate, "roles.delete")).Delete("/roles/{roleID}", orgHandler.DeleteRole)
	})

	return &handlerSetup{TestSetup: tc, Router: r, Auth: authService, Gate: gate}
}
