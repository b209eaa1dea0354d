package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kifel/authcore/internal/auth"
)

// route declares one endpoint and who may call it.
type route struct {
	method  string
	pattern string
	handler http.HandlerFunc
	public  bool
	roles   []auth.Role
}

// anyUser is the role set for routes every signed-in principal may use.
var anyUser = []auth.Role{auth.RoleAdmin, auth.RoleUser}

// routes is the authorization table for /api/v1.
func (s *Server) routes() []route {
	rs := []route{
		{method: http.MethodGet, pattern: "/health", handler: s.handleHealth, public: true},
		{method: http.MethodGet, pattern: "/metrics", handler: s.metrics.Handler().ServeHTTP, public: true},

		{method: http.MethodPost, pattern: "/users", handler: s.handleRegister, public: true},
		{method: http.MethodPost, pattern: "/auth/login", handler: s.handleLogin, public: true},
		{method: http.MethodPost, pattern: "/auth/refresh", handler: s.handleRefresh, public: true},

		{method: http.MethodGet, pattern: "/users/me", handler: s.handleMe, roles: anyUser},
		{method: http.MethodDelete, pattern: "/auth/logout", handler: s.handleLogout, roles: anyUser},
		{method: http.MethodDelete, pattern: "/auth/logout-all", handler: s.handleLogoutAll, roles: anyUser},
		{method: http.MethodGet, pattern: "/auth/devices", handler: s.handleListDevices, roles: anyUser},

		{method: http.MethodGet, pattern: "/audit", handler: s.handleListAuditLogs, roles: []auth.Role{auth.RoleAdmin}},
	}

	// The hub authenticates the handshake itself so it can answer with an
	// exception frame instead of an HTTP status.
	if s.hub != nil {
		rs = append(rs, route{method: http.MethodGet, pattern: "/ws", handler: s.hub.ServeHTTP, public: true})
	}
	return rs
}

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	r.Use(s.metrics.Instrument)
	if s.limiter != nil {
		r.Use(s.rateLimitMiddleware)
	}

	r.Route("/api/v1", func(r chi.Router) {
		for _, rt := range s.routes() {
			var h http.Handler = rt.handler
			if !rt.public {
				h = s.authenticate(s.authorize(rt.roles...)(h))
			}
			r.Method(rt.method, rt.pattern, h)
		}
	})

	return r
}
