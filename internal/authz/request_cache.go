package authz

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/hugh/orgauth/internal/auth"
)

type cacheKey struct{}

type userEntry struct {
	user *auth.ResolvedUser
	err  error
}

type contextEntry struct {
	tc  *TenantContext
	err error
}

// requestCache memoizes resolutions for the lifetime of one request.
type requestCache struct {
	mu       sync.Mutex
	user     *userEntry
	contexts map[uuid.UUID]contextEntry
}

// WithRequestCache attaches an empty memoization cache to ctx. Outcomes are
// shared by every Gate call made with the returned context.
func WithRequestCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, cacheKey{}, &requestCache{
		contexts: make(map[uuid.UUID]contextEntry),
	})
}

func cacheFrom(ctx context.Context) *requestCache {
	c, _ := ctx.Value(cacheKey{}).(*requestCache)
	return c
}

func (c *requestCache) loadUser() (userEntry, bool) {
	if c == nil {
		return userEntry{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return userEntry{}, false
	}
	return *c.user, true
}

func (c *requestCache) storeUser(user *auth.ResolvedUser, err error) {
	if c == nil || !cacheable(err) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = &userEntry{user: user, err: err}
}

func (c *requestCache) loadContext(orgID uuid.UUID) (contextEntry, bool) {
	if c == nil {
		return contextEntry{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.contexts[orgID]
	return e, ok
}

func (c *requestCache) storeContext(orgID uuid.UUID, tc *TenantContext, err error) {
	if c == nil || !cacheable(err) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contexts[orgID] = contextEntry{tc: tc, err: err}
}
