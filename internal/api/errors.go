package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kifel/authcore/internal/auth"
	"github.com/kifel/authcore/internal/realtime"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// rateLimitError is the 429 body; it also reports the remaining allowance.
type rateLimitError struct {
	Error
	Remaining int `json:"remaining"`
}

// Common error codes. The authentication codes are shared with the
// WebSocket exception payload so both transports spell them the same.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeUnauthorized       = realtime.CodeUnauthorized
	ErrCodeTokenExpired       = realtime.CodeTokenExpired
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeForbidden          = "forbidden"
	ErrCodeConflict           = "conflict"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeRolesNotConfigured = "roles_not_configured"
	ErrCodeInternal           = "internal_error"
	ErrCodeValidation         = "validation_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Unauthorized")
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// errorResponse maps a service error to its HTTP status and code.
// The second return is false for errors that are not part of the taxonomy.
func errorResponse(err error) (Error, bool) {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return Error{http.StatusUnauthorized, ErrCodeTokenExpired, "token has expired"}, true
	case errors.Is(err, auth.ErrInvalidCredentials):
		return Error{http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid credentials"}, true
	case errors.Is(err, auth.ErrUnauthorized):
		return Error{http.StatusUnauthorized, ErrCodeUnauthorized, "Unauthorized"}, true
	case errors.Is(err, auth.ErrForbidden):
		return Error{http.StatusForbidden, ErrCodeForbidden, "insufficient permissions"}, true
	case errors.Is(err, auth.ErrInvalidInput):
		return Error{http.StatusBadRequest, ErrCodeValidation, err.Error()}, true
	case errors.Is(err, auth.ErrConflict):
		return Error{http.StatusConflict, ErrCodeConflict, conflictMessage(err)}, true
	case errors.Is(err, auth.ErrNotFound):
		return Error{http.StatusNotFound, ErrCodeNotFound, "not found"}, true
	case errors.Is(err, auth.ErrRolesNotConfigured):
		return Error{http.StatusServiceUnavailable, ErrCodeRolesNotConfigured, "roles are not configured"}, true
	case errors.Is(err, auth.ErrRateLimited):
		return Error{http.StatusTooManyRequests, ErrCodeRateLimited, "Too Many Requests"}, true
	}
	return Error{http.StatusInternalServerError, ErrCodeInternal, "internal server error"}, false
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrNameTaken):
		return "name already registered"
	case errors.Is(err, auth.ErrEmailTaken):
		return "email already registered"
	}
	return "conflict"
}

// writeServiceError writes the response for err. Errors outside the
// taxonomy are logged with the request id and surface as 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	resp, known := errorResponse(err)
	if !known {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestID(r.Context()),
			"error", err,
		)
	}
	writeJSON(w, resp.Status, resp)
}
