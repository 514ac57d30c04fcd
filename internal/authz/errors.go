package authz

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hugh/orgauth/internal/auth"
)

var (
	// ErrNoContext means the user is authenticated but no organization was
	// requested or embedded in the session.
	ErrNoContext = errors.New("no active organization")

	// ErrNotMember means the user has no active membership in the target
	// organization. It is a denial, not a fault.
	ErrNotMember = errors.New("not a member of organization")

	ErrPermissionDenied = errors.New("permission denied")
)

// DeniedError carries the permission and tenant of a failed grant check.
type DeniedError struct {
	Permission     string
	OrganizationID uuid.UUID
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: %q in organization %s", ErrPermissionDenied, e.Permission, e.OrganizationID)
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// Kind classifies an outcome of the resolution pipeline.
type Kind int

const (
	KindOK Kind = iota
	KindUnauthenticated
	KindNoContext
	KindNotFound
	KindPermissionDenied
	KindStore
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindNoContext:
		return "no_context"
	case KindNotFound:
		return "not_member"
	case KindPermissionDenied:
		return "denied"
	case KindStore:
		return "store_error"
	default:
		return "internal"
	}
}

// KindOf maps any error returned by this package or auth to its kind.
// StoreErrors are checked first so an outage is never read as a denial.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, auth.ErrStore):
		return KindStore
	case errors.Is(err, auth.ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrNoContext):
		return KindNoContext
	case errors.Is(err, ErrNotMember):
		return KindNotFound
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	default:
		return KindInternal
	}
}

// cacheable reports whether an outcome may be memoized for the request.
func cacheable(err error) bool {
	switch KindOf(err) {
	case KindStore, KindInternal:
		return false
	}
	return true
}
