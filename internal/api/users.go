package api

import (
	"net/http"

	"github.com/kifel/authcore/internal/audit"
	"github.com/kifel/authcore/internal/auth"
)

// handleRegister creates a principal holding the user role.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegistrationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := s.registrar.Register(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.audit.Record(audit.Event{Action: audit.ActionRegister, PrincipalID: p.ID, OriginIP: s.clientIP(r)})
	writeJSON(w, http.StatusCreated, p)
}

// handleMe returns the caller's principal as currently stored.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	p, err := s.principals.GetByID(r.Context(), id.PrincipalID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
