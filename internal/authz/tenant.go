package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/orgauth/internal/auth"
	"github.com/hugh/orgauth/internal/store"
	"golang.org/x/sync/errgroup"
)

type MembershipFinder interface {
	FindActiveMembership(ctx context.Context, orgID, userID uuid.UUID) (*store.Membership, error)
	FindActiveRoleAssignment(ctx context.Context, orgID, userID uuid.UUID) (*store.RoleAssignment, error)
}

// TenantContext is the (organization, role) pair active for a request.
type TenantContext struct {
	User         *auth.ResolvedUser           `json:"user"`
	Organization store.OrganizationProjection `json:"organization"`
	Membership   store.Membership             `json:"membership"`
	// Role is nil when the member holds no active role; every check denies.
	Role *store.Role `json:"role"`
}

func (c *TenantContext) Can(permission string) bool {
	if c == nil {
		return false
	}
	return IsAllowed(c.Role, permission)
}

// TargetOrganization picks the organization a request acts on: the explicit
// id wins over the one embedded in the session.
func TargetOrganization(user *auth.ResolvedUser, requested *uuid.UUID) (uuid.UUID, bool) {
	if requested != nil && *requested != uuid.Nil {
		return *requested, true
	}
	if user != nil && user.SessionOrganizationID != nil && *user.SessionOrganizationID != uuid.Nil {
		return *user.SessionOrganizationID, true
	}
	return uuid.Nil, false
}

type ContextResolver struct {
	store   MembershipFinder
	metrics *Metrics
}

func NewContextResolver(st MembershipFinder, metrics *Metrics) *ContextResolver {
	return &ContextResolver{store: st, metrics: metrics}
}

// Resolve loads the membership and role of user in the target organization.
// A missing membership never falls back to another organization.
func (r *ContextResolver) Resolve(ctx context.Context, user *auth.ResolvedUser, requested *uuid.UUID) (*TenantContext, error) {
	orgID, ok := TargetOrganization(user, requested)
	if !ok {
		return nil, ErrNoContext
	}

	start := time.Now()
	defer func() { r.metrics.ObserveResolve(StageContext, time.Since(start)) }()

	var (
		membership *store.Membership
		assignment *store.RoleAssignment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := r.store.FindActiveMembership(gctx, orgID, user.ID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotMember, orgID)
		}
		if err != nil {
			return auth.NewStoreError("find membership", err)
		}
		membership = m
		return nil
	})
	g.Go(func() error {
		a, err := r.store.FindActiveRoleAssignment(gctx, orgID, user.ID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return auth.NewStoreError("find role assignment", err)
		}
		assignment = a
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tc := &TenantContext{
		User:         user,
		Organization: membership.Organization,
		Membership:   *membership,
	}
	// Grants from another tenant must never leak into this context.
	if assignment != nil && assignment.Role.OrganizationID == orgID {
		role := assignment.Role
		tc.Role = &role
	}
	return tc, nil
}
