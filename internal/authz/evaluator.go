package authz

import "github.com/hugh/orgauth/internal/store"

// IsAllowed reports whether role grants permission. An exact grant, the
// "<category>.*" wildcard and the global "*" wildcard each satisfy the
// request when allowed. A withheld (allowed=false) row grants nothing and
// does not suppress a matching wildcard. A nil role denies everything.
func IsAllowed(role *store.Role, permission string) bool {
	if role == nil || permission == "" {
		return false
	}

	categoryWildcard := store.PermissionCategory(permission) + ".*"
	for _, g := range role.Grants {
		if !g.Allowed {
			continue
		}
		switch g.Name {
		case permission, categoryWildcard, store.GlobalWildcard:
			return true
		}
	}
	return false
}
