package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/orgauth/internal/api"
	"github.com/hugh/orgauth/internal/api/handlers"
	"github.com/hugh/orgauth/internal/auth"
	"github.com/hugh/orgauth/internal/authz"
	"github.com/hugh/orgauth/internal/database"
	"github.com/hugh/orgauth/internal/store"
	"github.com/hugh/orgauth/internal/tasks"
	"github.com/hugh/orgauth/pkg/config"
	"github.com/hugh/orgauth/pkg/queue"
	"github.com/hugh/orgauth/pkg/util"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting orgauth server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	st := store.New(db)
	if err := st.EnsurePermissionCatalog(context.Background(), store.BuiltinPermissions); err != nil {
		logger.Error("failed to seed permission catalog", "error", err)
		os.Exit(1)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis, background jobs disabled", "error", err)
		redisClient.Close()
		redisClient = nil
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := authz.NewMetrics(registry)

	// Initialize services
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry(),
		auth.WithIssuer(cfg.JWT.Issuer),
		auth.WithSigningMethod(cfg.JWT.Algorithm),
		auth.WithLeeway(cfg.JWT.Leeway()),
	)
	authService := auth.NewService(st, jwtService, logger)

	gateOpts := []authz.GateOption{authz.WithMetrics(metrics)}

	// Initialize Asynq client for background job enqueuing
	var asynqClient *asynq.Client
	if redisClient != nil {
		asynqClient = queue.NewClient(&cfg.Redis)
		enqueuer := tasks.NewEnqueuer(asynqClient)
		authService.WithLoginRecorder(enqueuer)
		gateOpts = append(gateOpts, authz.WithAuditor(enqueuer))
	}

	gate := authz.NewGate(
		auth.NewSessionResolver(jwtService, st, logger),
		authz.NewContextResolver(st, metrics),
		logger,
		gateOpts...,
	)

	// Create router
	router := api.NewRouter(api.RouterConfig{
		DB:          db,
		Redis:       redisClient,
		Logger:      logger,
		Store:       st,
		AuthService: authService,
		Gate:        gate,
		Gatherer:    registry,
		Cookie: handlers.CookieConfig{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.CookieSecure,
		},
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		RateLimitReqs:   cfg.RateLimit.Requests,
		RateLimitWindow: cfg.RateLimit.Window(),
		LoginLimitReqs:  cfg.RateLimit.LoginRequests,
		LoginWindow:     cfg.RateLimit.LoginWindow(),
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Close Asynq client
	if asynqClient != nil {
		asynqClient.Close()
	}

	// Close Redis connection
	if redisClient != nil {
		redisClient.Close()
	}

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}
