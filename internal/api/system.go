package api

import (
	"net/http"
)

// handleHealth returns the server health status. When a database is
// configured and unreachable the status is degraded and the code 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if s.database != nil {
		if err := s.database.HealthCheck(r.Context()); err != nil {
			s.logger.Warn("database health check failed", "error", err)
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
	})
}
