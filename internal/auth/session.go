package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hugh/orgauth/internal/database/models"
	"github.com/hugh/orgauth/internal/store"
)

// ResolvedUser is a live identity confirmed against the store.
type ResolvedUser struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`

	// SessionOrganizationID is the tenant embedded in the token, if any.
	SessionOrganizationID *uuid.UUID `json:"session_organization_id,omitempty"`
}

type UserFinder interface {
	FindUserByID(ctx context.Context, id uuid.UUID) (*store.UserProjection, error)
}

type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// SessionResolver turns a raw token into a live user. Token claims are not
// trusted alone: the account state is re-read on every call.
type SessionResolver struct {
	tokens TokenValidator
	users  UserFinder
	log    *slog.Logger
}

func NewSessionResolver(tokens TokenValidator, users UserFinder, log *slog.Logger) *SessionResolver {
	return &SessionResolver{tokens: tokens, users: users, log: log}
}

// Resolve returns ErrUnauthenticated for every recoverable failure and a
// *StoreError when the user lookup itself fails.
func (r *SessionResolver) Resolve(ctx context.Context, rawToken string) (*ResolvedUser, error) {
	if rawToken == "" {
		return nil, fmt.Errorf("%w: no session token", ErrUnauthenticated)
	}

	claims, err := r.tokens.ValidateToken(rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if claims.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: token has no user", ErrUnauthenticated)
	}

	user, err := r.users.FindUserByID(ctx, claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: user not found", ErrUnauthenticated)
	}
	if err != nil {
		return nil, NewStoreError("find user", err)
	}

	if !user.IsActive || user.Status != models.UserStatusActive {
		r.log.Debug("session rejected for disabled account",
			"user_id", user.ID,
			"status", user.Status,
			"is_active", user.IsActive,
		)
		return nil, fmt.Errorf("%w: account is not active", ErrUnauthenticated)
	}

	return &ResolvedUser{
		ID:                    user.ID,
		Username:              user.Username,
		Email:                 user.Email,
		FirstName:             user.FirstName,
		LastName:              user.LastName,
		SessionOrganizationID: claims.OrganizationID,
	}, nil
}
