package auth

import (
	"regexp"
	"slices"
	"time"
)

// namePattern defines the valid format for principal names:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidName checks if a principal name meets format requirements.
func IsValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Role is a named permission tag. Role checks compare names exactly.
type Role string

const (
	// RoleAdmin can read the audit trail in addition to everything a user can do.
	RoleAdmin Role = "admin"

	// RoleUser is assigned to every newly registered principal.
	RoleUser Role = "user"
)

// BuiltinRoles must exist in the store before registration works.
var BuiltinRoles = []Role{RoleAdmin, RoleUser}

// RoleRecord is a stored role row.
type RoleRecord struct {
	ID        string    `json:"id"`
	Name      Role      `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Principal is an authenticatable identity.
type Principal struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never serialised
	Roles        []Role    `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func hasAnyRole(held, required []Role) bool {
	for _, r := range required {
		if slices.Contains(held, r) {
			return true
		}
	}
	return false
}

// RefreshToken is a stored, device-scoped refresh credential.
// Only the SHA-256 hash of the opaque token is persisted.
type RefreshToken struct {
	ID          string    `json:"id"`
	PrincipalID string    `json:"principal_id"`
	TokenHash   string    `json:"-"` // never serialised
	Device      string    `json:"device"`
	OriginIP    string    `json:"origin_ip"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Expired reports whether the token is past its expiry at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Device describes one signed-in device of a principal.
type Device struct {
	PrincipalID string    `json:"principal_id"`
	DeviceID    string    `json:"device_id"`
	Device      string    `json:"device"`
	OriginIP    string    `json:"origin_ip"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	TokenType        string    `json:"tokenType"`
	ExpiresIn        int       `json:"expiresIn"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// Identity is the verified claim set carried by an access token.
type Identity struct {
	PrincipalID string    `json:"id"`
	Name        string    `json:"name"`
	ExpiresAt   time.Time `json:"-"`
}
