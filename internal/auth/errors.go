package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for auth operations. Callers classify with errors.Is.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("insufficient permissions")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrRateLimited        = errors.New("too many requests")
	ErrInvalidInput       = errors.New("invalid input")

	// ErrRolesNotConfigured means the built-in roles have not been seeded.
	ErrRolesNotConfigured = errors.New("roles not configured")
)

// Refinements of the categories above.
var (
	// ErrTokenExpired is a kind of ErrUnauthorized.
	ErrTokenExpired = fmt.Errorf("%w: token has expired", ErrUnauthorized)

	ErrPrincipalNotFound = fmt.Errorf("principal %w", ErrNotFound)
	ErrRoleNotFound      = fmt.Errorf("role %w", ErrNotFound)
	ErrTokenNotFound     = fmt.Errorf("refresh token %w", ErrNotFound)

	ErrNameTaken  = fmt.Errorf("%w: name already registered", ErrConflict)
	ErrEmailTaken = fmt.Errorf("%w: email already registered", ErrConflict)
)
