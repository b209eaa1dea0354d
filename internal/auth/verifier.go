package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// PrincipalLookup finds principals by name.
type PrincipalLookup interface {
	GetByName(ctx context.Context, name string) (*Principal, error)
}

// Verifier checks a name and secret against the store.
type Verifier struct {
	principals PrincipalLookup
	hasher     PasswordHasher

	dummyOnce sync.Once
	dummyHash string
}

// NewVerifier creates a credential verifier.
func NewVerifier(principals PrincipalLookup, hasher PasswordHasher) *Verifier {
	return &Verifier{principals: principals, hasher: hasher}
}

// Verify returns the principal named name if secret matches its stored hash.
// The returned principal has PasswordHash cleared. Unknown names, wrong
// secrets and unreadable hashes all yield ErrInvalidCredentials.
func (v *Verifier) Verify(ctx context.Context, name, secret string) (*Principal, error) {
	p, err := v.principals.GetByName(ctx, name)
	if errors.Is(err, ErrNotFound) {
		// Burn the same work as a real comparison so timing does not reveal
		// whether the name exists.
		_, _ = v.hasher.Verify(secret, v.dummy()) //nolint:errcheck // result intentionally ignored
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("looking up principal: %w", err)
	}

	ok, err := v.hasher.Verify(secret, p.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	p.PasswordHash = ""
	return p, nil
}

func (v *Verifier) dummy() string {
	v.dummyOnce.Do(func() {
		v.dummyHash, _ = v.hasher.Hash("dummy-secret-for-timing") //nolint:errcheck // empty hash still fails Verify
	})
	return v.dummyHash
}
