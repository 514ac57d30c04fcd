package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("store: not found")
	ErrConflict            = errors.New("store: already exists")
	ErrInvalidInput        = errors.New("store: invalid input")
	ErrUnknownPermission   = errors.New("store: permission is not in the catalog")
	ErrSystemRole          = errors.New("store: system roles cannot be modified")
	ErrCustomRolesDisabled = errors.New("store: organization does not allow custom roles")
	ErrWildcardDenied      = errors.New("store: wildcard permission not allowed for custom roles")
	ErrOwnerImmutable      = errors.New("store: organization owner membership cannot be changed")
	ErrRoleInUse           = errors.New("store: role is assigned to members")
)

// ErrUsernameTaken matches ErrConflict as well.
var ErrUsernameTaken = fmt.Errorf("%w: username taken", ErrConflict)
