package realtime

import (
	"errors"
	"net/http"
	"strings"

	"github.com/kifel/authcore/internal/auth"
)

// TokenVerifier validates an access token and returns its identity.
type TokenVerifier interface {
	VerifyIdentity(token string) (auth.Identity, error)
}

// State is where a connection is in the handshake.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateRejected:
		return "rejected"
	default:
		return "unauthenticated"
	}
}

// Exception codes sent to rejected clients.
const (
	CodeTokenExpired = "token_expired"
	CodeUnauthorized = "unauthorized"
)

// Handshake is the outcome of authenticating a connection.
type Handshake struct {
	State    State
	Identity auth.Identity
	Err      error
}

// Code returns the exception code for a rejected handshake.
func (h Handshake) Code() string {
	return exceptionCode(h.Err)
}

// Authenticator checks the bearer token presented during the upgrade.
type Authenticator struct {
	Verifier TokenVerifier
}

// Authenticate reads the Authorization header. It never touches the
// session registry.
func (a Authenticator) Authenticate(header http.Header) Handshake {
	token, ok := BearerToken(header.Get("Authorization"))
	if !ok {
		return Handshake{State: StateRejected, Err: auth.ErrUnauthorized}
	}

	id, err := a.Verifier.VerifyIdentity(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return Handshake{State: StateRejected, Err: auth.ErrTokenExpired}
		}
		return Handshake{State: StateRejected, Err: auth.ErrUnauthorized}
	}
	return Handshake{State: StateAuthenticated, Identity: id}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(value string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(value), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func exceptionCode(err error) string {
	if errors.Is(err, auth.ErrTokenExpired) {
		return CodeTokenExpired
	}
	return CodeUnauthorized
}
