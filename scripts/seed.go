//go:build ignore

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/hugh/orgauth/internal/auth"
	"github.com/hugh/orgauth/internal/database"
	"github.com/hugh/orgauth/internal/store"
	"github.com/hugh/orgauth/pkg/config"
	"github.com/hugh/orgauth/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env)
	ctx := context.Background()

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	st := store.New(db)
	if err := st.EnsurePermissionCatalog(ctx, store.BuiltinPermissions); err != nil {
		log.Fatalf("failed to seed permission catalog: %v", err)
	}

	// Create admin user
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry(),
		auth.WithIssuer(cfg.JWT.Issuer),
		auth.WithSigningMethod(cfg.JWT.Algorithm),
	)
	authService := auth.NewService(st, jwtService, logger)

	username := os.Getenv("ADMIN_USERNAME")
	password := os.Getenv("ADMIN_PASSWORD")
	orgName := os.Getenv("ADMIN_ORG_NAME")

	if username == "" {
		username = "admin"
	}
	if password == "" {
		password = "admin123!"
	}
	if orgName == "" {
		orgName = "Default Organization"
	}

	resp, err := authService.Register(ctx, auth.RegisterInput{
		Username:  username,
		Email:     os.Getenv("ADMIN_EMAIL"),
		Password:  password,
		FirstName: "Admin",
		OrgName:   orgName,
	})
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			fmt.Printf("Admin user already exists: %s\n", username)
			return
		}
		log.Fatalf("failed to create admin user: %v", err)
	}

	fmt.Printf("Admin user created successfully!\n")
	fmt.Printf("Username: %s\n", resp.User.Username)
	if resp.Organization != nil {
		fmt.Printf("Organization: %s (%s)\n", resp.Organization.Organization.Name, resp.Organization.OrganizationID)
	}
	fmt.Printf("Token: %s\n", resp.Token)
}
