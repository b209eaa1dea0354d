package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kifel/authcore/internal/audit"
	"github.com/kifel/authcore/internal/auth"
)

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// refreshRequest is the request body for POST /auth/refresh.
type refreshRequest struct {
	UserID       string `json:"userId"`
	RefreshToken string `json:"refreshToken"`
}

// logoutRequest is the request body for DELETE /auth/logout.
type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// writeValidationError writes a 400 validation_error response.
func writeValidationError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeValidation, message)
}

// handleLogin verifies credentials and issues a token pair bound to the
// calling device.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" || req.Password == "" {
		writeValidationError(w, "name and password are required")
		return
	}

	ip := s.clientIP(r)
	p, err := s.verifier.Verify(r.Context(), req.Name, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.audit.Record(audit.Event{
				Action:   audit.ActionLoginFailed,
				OriginIP: ip,
				Details:  map[string]any{"name": req.Name},
			})
		}
		s.writeServiceError(w, r, err)
		return
	}

	pair, err := s.issuer.Issue(r.Context(), p, ip, r.UserAgent())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.audit.Record(audit.Event{Action: audit.ActionLogin, PrincipalID: p.ID, OriginIP: ip})
	writeJSON(w, http.StatusOK, pair)
}

// handleRefresh rotates a refresh token and returns a new pair.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" || req.RefreshToken == "" {
		writeValidationError(w, "userId and refreshToken are required")
		return
	}

	ip := s.clientIP(r)
	pair, err := s.issuer.Refresh(r.Context(), req.UserID, req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			s.audit.Record(audit.Event{Action: audit.ActionRefreshFailed, PrincipalID: req.UserID, OriginIP: ip})
		}
		s.writeServiceError(w, r, err)
		return
	}

	s.audit.Record(audit.Event{Action: audit.ActionRefresh, PrincipalID: req.UserID, OriginIP: ip})
	writeJSON(w, http.StatusOK, pair)
}

// handleLogout revokes one refresh token owned by the caller.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	var req logoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeValidationError(w, "refreshToken is required")
		return
	}

	if err := s.issuer.Revoke(r.Context(), id.PrincipalID, req.RefreshToken); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.audit.Record(audit.Event{Action: audit.ActionLogout, PrincipalID: id.PrincipalID, OriginIP: s.clientIP(r)})
	w.WriteHeader(http.StatusNoContent)
}

// handleLogoutAll revokes every refresh token the caller holds.
func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	n, err := s.issuer.RevokeAll(r.Context(), id.PrincipalID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.audit.Record(audit.Event{
		Action:      audit.ActionLogoutAll,
		PrincipalID: id.PrincipalID,
		OriginIP:    s.clientIP(r),
		Details:     map[string]any{"revoked": n},
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleListDevices returns one entry per active refresh token of the caller.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	devices, err := s.issuer.ListDevices(r.Context(), id.PrincipalID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}
