package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// RegistrationRequest carries the fields a new principal signs up with.
type RegistrationRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks field formats. Failures wrap ErrInvalidInput.
func (r RegistrationRequest) Validate() error {
	var problems []string
	if !IsValidName(r.Name) {
		problems = append(problems, "name must be 1-64 characters of letters, digits, dots, hyphens or underscores")
	}
	if addr, err := mail.ParseAddress(r.Email); err != nil || addr.Address != r.Email {
		problems = append(problems, "email must be a valid address")
	}
	if !IsStrongPassword(r.Password) {
		problems = append(problems, "password must be at least 8 characters with upper and lower case letters, a digit and a symbol")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// Registrar creates principals with the default role.
type Registrar struct {
	principals PrincipalRepository
	roles      RoleRepository
	hasher     PasswordHasher
	now        func() time.Time
}

// NewRegistrar creates a Registrar.
func NewRegistrar(principals PrincipalRepository, roles RoleRepository, hasher PasswordHasher) *Registrar {
	return &Registrar{principals: principals, roles: roles, hasher: hasher, now: time.Now}
}

// Register validates req, checks that the user role exists and that name and
// email are free, then stores a principal holding RoleUser.
func (r *Registrar) Register(ctx context.Context, req RegistrationRequest) (*Principal, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if _, err := r.roles.GetByName(ctx, RoleUser); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrRolesNotConfigured
		}
		return nil, fmt.Errorf("looking up default role: %w", err)
	}

	if err := r.principals.FindConflict(ctx, req.Name, req.Email); err != nil {
		return nil, err
	}

	hash, err := r.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	p := &Principal{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Roles:        []Role{RoleUser},
		CreatedAt:    r.now(),
	}
	if err := r.principals.Create(ctx, p); err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			return nil, ErrRolesNotConfigured
		}
		return nil, err
	}

	p.PasswordHash = ""
	return p, nil
}
