package authz

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/orgauth/internal/auth"
)

type SessionResolver interface {
	Resolve(ctx context.Context, rawToken string) (*auth.ResolvedUser, error)
}

// Auditor receives permission denials for out-of-band recording.
type Auditor interface {
	RecordDenial(ctx context.Context, userID uuid.UUID, orgID *uuid.UUID, permission string, kind Kind) error
}

// Gate is the entry point request handlers call. It reads the raw session
// token from the context and composes session resolution, tenant
// resolution and permission evaluation.
type Gate struct {
	sessions SessionResolver
	contexts *ContextResolver
	metrics  *Metrics
	auditor  Auditor
	log      *slog.Logger
}

type GateOption func(*Gate)

func WithMetrics(m *Metrics) GateOption {
	return func(g *Gate) { g.metrics = m }
}

func WithAuditor(a Auditor) GateOption {
	return func(g *Gate) { g.auditor = a }
}

func NewGate(sessions SessionResolver, contexts *ContextResolver, log *slog.Logger, opts ...GateOption) *Gate {
	g := &Gate{sessions: sessions, contexts: contexts, log: log}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) resolveUser(ctx context.Context) (*auth.ResolvedUser, error) {
	cache := cacheFrom(ctx)
	if e, ok := cache.loadUser(); ok {
		return e.user, e.err
	}

	start := time.Now()
	user, err := g.sessions.Resolve(ctx, auth.TokenFromContext(ctx))
	g.metrics.ObserveResolve(StageSession, time.Since(start))
	if err != nil && KindOf(err) == KindStore {
		g.log.Error("session resolution failed", "error", err)
	}

	cache.storeUser(user, err)
	return user, err
}

func (g *Gate) resolveContext(ctx context.Context, user *auth.ResolvedUser, orgID *uuid.UUID) (*TenantContext, error) {
	target, ok := TargetOrganization(user, orgID)
	if !ok {
		return nil, ErrNoContext
	}

	cache := cacheFrom(ctx)
	if e, ok := cache.loadContext(target); ok {
		return e.tc, e.err
	}

	tc, err := g.contexts.Resolve(ctx, user, &target)
	if err != nil && KindOf(err) == KindStore {
		g.log.Error("tenant context resolution failed", "user_id", user.ID, "org_id", target, "error", err)
	}

	cache.storeContext(target, tc, err)
	return tc, err
}

// GetServerUser returns the live user, or nil when the request is not
// authenticated. Only store failures are returned as errors.
func (g *Gate) GetServerUser(ctx context.Context) (*auth.ResolvedUser, error) {
	user, err := g.resolveUser(ctx)
	if errors.Is(err, auth.ErrUnauthenticated) {
		return nil, nil
	}
	return user, err
}

// RequireServerAuth returns auth.ErrUnauthenticated when there is no live
// session.
func (g *Gate) RequireServerAuth(ctx context.Context) (*auth.ResolvedUser, error) {
	return g.resolveUser(ctx)
}

// GetServerUserWithOrganization returns the tenant context, or nil when the
// request is unauthenticated, has no target organization, or the user is
// not a member. Only store failures are returned as errors.
func (g *Gate) GetServerUserWithOrganization(ctx context.Context, orgID *uuid.UUID) (*TenantContext, error) {
	tc, err := g.RequireContext(ctx, orgID)
	switch KindOf(err) {
	case KindOK:
		return tc, nil
	case KindUnauthenticated, KindNoContext, KindNotFound:
		return nil, nil
	default:
		return nil, err
	}
}

// RequireContext resolves the tenant context or returns the failure kind
// as a typed error.
func (g *Gate) RequireContext(ctx context.Context, orgID *uuid.UUID) (*TenantContext, error) {
	user, err := g.resolveUser(ctx)
	if err != nil {
		return nil, err
	}
	return g.resolveContext(ctx, user, orgID)
}

// HasPermission reports whether the request may use permission in the
// target organization. Any denial is false; store failures are errors.
func (g *Gate) HasPermission(ctx context.Context, permission string, orgID *uuid.UUID) (bool, error) {
	_, err := g.check(ctx, permission, orgID)
	if KindOf(err) == KindStore {
		return false, err
	}
	return err == nil, nil
}

// RequirePermission returns the tenant context when permission is granted.
// Failures carry their kind: auth.ErrUnauthenticated, ErrNoContext,
// ErrNotMember, ErrPermissionDenied or a *auth.StoreError.
func (g *Gate) RequirePermission(ctx context.Context, permission string, orgID *uuid.UUID) (*TenantContext, error) {
	tc, err := g.check(ctx, permission, orgID)
	if err == nil {
		return tc, nil
	}

	switch kind := KindOf(err); kind {
	case KindPermissionDenied, KindNotFound:
		g.audit(ctx, permission, orgID, kind)
	}
	return nil, err
}

func (g *Gate) check(ctx context.Context, permission string, orgID *uuid.UUID) (*TenantContext, error) {
	tc, err := g.RequireContext(ctx, orgID)
	if err == nil && !tc.Can(permission) {
		err = &DeniedError{Permission: permission, OrganizationID: tc.Organization.ID}
		g.log.Debug("permission denied",
			"user_id", tc.User.ID,
			"org_id", tc.Organization.ID,
			"permission", permission,
		)
	}
	g.metrics.ObserveDecision(permission, err)
	if err != nil {
		return nil, err
	}
	return tc, nil
}

func (g *Gate) audit(ctx context.Context, permission string, orgID *uuid.UUID, kind Kind) {
	if g.auditor == nil {
		return
	}
	user, err := g.resolveUser(ctx)
	if err != nil || user == nil {
		return
	}
	target := orgID
	if id, ok := TargetOrganization(user, orgID); ok {
		target = &id
	}
	if err := g.auditor.RecordDenial(ctx, user.ID, target, permission, kind); err != nil {
		g.log.Warn("failed to record denial", "user_id", user.ID, "permission", permission, "error", err)
	}
}
