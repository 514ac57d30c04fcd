package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hugh/orgauth/internal/api/handlers"
	"github.com/hugh/orgauth/internal/api/middleware"
	"github.com/hugh/orgauth/internal/auth"
	"github.com/hugh/orgauth/internal/authz"
	"github.com/hugh/orgauth/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB          *gorm.DB
	Redis       *redis.Client
	Logger      *slog.Logger
	Store       *store.Store
	AuthService *auth.Service
	Gate        *authz.Gate
	Gatherer    prometheus.Gatherer // nil disables /metrics

	Cookie         handlers.CookieConfig
	AllowedOrigins []string // CORS allowed origins

	RateLimitReqs   int           // Global requests per window
	RateLimitWindow time.Duration // Global window
	LoginLimitReqs  int           // Login attempts per client per window
	LoginWindow     time.Duration
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	if cfg.Cookie.Name == "" {
		cfg.Cookie.Name = "auth-token"
	}

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	// Rate limiting - applied globally to prevent abuse
	if cfg.RateLimitReqs > 0 {
		r.Use(middleware.RateLimit(
			middleware.NewRateLimiter(cfg.RateLimitReqs, cfg.RateLimitWindow),
			middleware.ByIP("global:"),
			cfg.Logger,
		))
	}

	// CORS - restrict to configured origins, or allow all in development
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		// Default to localhost for development - configure in production
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Auth-Token"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	csrfStore := middleware.NewCSRFStore(cfg.Cookie.Name)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService, cfg.Gate, csrfStore, cfg.Cookie)
	meHandler := handlers.NewMeHandler(cfg.Gate, cfg.Store)
	orgHandler := handlers.NewOrganizationHandler(cfg.Store, cfg.Logger)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	// Login attempts are counted in Redis so every replica shares the budget
	var loginLimiter middleware.Limiter = middleware.NewRedisLimiter(cfg.Redis, "ratelimit:", cfg.LoginLimitReqs, cfg.LoginWindow)
	if cfg.Redis == nil {
		loginLimiter = middleware.NewRateLimiter(cfg.LoginLimitReqs, cfg.LoginWindow)
	}

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Session(cfg.Cookie.Name))
		r.Use(middleware.CSRF(csrfStore))

		// Public auth endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(loginLimiter, middleware.ByIP("login:"), cfg.Logger))
			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
		})
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/csrf", authHandler.CSRFToken)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(cfg.Gate))
			if cfg.RateLimitReqs > 0 {
				r.Use(middleware.RateLimit(
					middleware.NewRateLimiter(cfg.RateLimitReqs, cfg.RateLimitWindow),
					middleware.ByUser("user:"),
					cfg.Logger,
				))
			}

			r.Get("/me", meHandler.Get)
			r.Delete("/me", authHandler.CloseAccount)
			r.Get("/me/account", authHandler.Account)
			r.Get("/me/organizations", meHandler.Organizations)
			r.Get("/me/context", meHandler.Context)
			r.Get("/me/permissions/{permission}", meHandler.Permission)

			r.Post("/session/organization", authHandler.SwitchOrganization)
			r.Post("/organizations", orgHandler.Create)
		})

		// Tenant routes: the organization comes from the URL and every
		// route names the permission it needs
		r.Route("/organizations/{orgID}", func(r chi.Router) {
			r.With(middleware.RequirePermission(cfg.Gate, "organizations.read")).Get("/", orgHandler.Get)

			r.Route("/members", func(r chi.Router) {
				r.With(middleware.RequirePermission(cfg.Gate, "members.read")).Get("/", orgHandler.ListMembers)
				r.With(middleware.RequirePermission(cfg.Gate, "members.invite")).Post("/", orgHandler.AddMember)
				r.With(middleware.RequirePermission(cfg.Gate, "members.update")).Put("/{userID}/role", orgHandler.AssignRole)
				r.With(middleware.RequirePermission(cfg.Gate, "members.remove")).Delete("/{userID}", orgHandler.DeactivateMember)
			})

			r.Route("/roles", func(r chi.Router) {
				r.With(middleware.RequirePermission(cfg.Gate, "roles.read")).Get("/", orgHandler.ListRoles)
				r.With(middleware.RequirePermission(cfg.Gate, "roles.create")).Post("/", orgHandler.CreateRole)
				r.With(middleware.RequirePermission(cfg.Gate, "roles.update")).Put("/{roleID}/grants", orgHandler.UpdateRoleGrants)
				r.With(middleware.RequirePermission(cfg.Gate, "roles.delete")).Delete("/{roleID}", orgHandler.DeleteRole)
			})
		})
	})

	return &Router{r}
}
