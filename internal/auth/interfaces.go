package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/orgauth/internal/database/models"
	"github.com/hugh/orgauth/internal/store"
)

// Authenticator defines the interface for account and login operations.
type Authenticator interface {
	Register(ctx context.Context, input RegisterInput) (*AuthResponse, error)
	Login(ctx context.Context, input LoginInput) (*AuthResponse, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*store.UserProjection, error)
	SetUserStatus(ctx context.Context, id uuid.UUID, status models.UserStatus, active bool) error
}

// TokenService defines the interface for JWT token operations.
type TokenService interface {
	GenerateToken(sub TokenSubject) (string, time.Time, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// Compile-time interface satisfaction checks
var (
	_ Authenticator  = (*Service)(nil)
	_ TokenService   = (*JWTService)(nil)
	_ TokenValidator = (*JWTService)(nil)
	_ UserFinder     = (*store.Store)(nil)
)
