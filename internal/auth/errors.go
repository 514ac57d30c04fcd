package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated covers a missing, invalid or expired token and a
	// deactivated account. The client recovers by logging in again.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrStore is matched by every *StoreError.
	ErrStore = errors.New("credential store unavailable")
)

// StoreError reports a dependency failure. It is never a denial and must
// not be cached as one.
type StoreError struct {
	Op  string
	Err error
}

func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStore, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}
