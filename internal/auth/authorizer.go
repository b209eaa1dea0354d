package auth

import (
	"context"
)

// RoleSource returns a principal's current roles, or an error wrapping
// ErrNotFound when the principal does not exist.
type RoleSource interface {
	RolesOf(ctx context.Context, principalID string) ([]Role, error)
}

// Authorizer decides whether a principal holds any of a set of roles.
// Roles are read from the store on every call so grants and revocations
// apply immediately, without waiting for tokens to be reissued.
type Authorizer struct {
	roles RoleSource
}

// NewAuthorizer creates an Authorizer.
func NewAuthorizer(roles RoleSource) *Authorizer {
	return &Authorizer{roles: roles}
}

// Authorize reports whether principalID holds at least one of required.
// An empty requirement is satisfied without consulting the store.
func (a *Authorizer) Authorize(ctx context.Context, principalID string, required ...Role) (bool, error) {
	if len(required) == 0 {
		return true, nil
	}

	held, err := a.roles.RolesOf(ctx, principalID)
	if err != nil {
		return false, err
	}
	return hasAnyRole(held, required), nil
}
