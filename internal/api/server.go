package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kifel/authcore/internal/audit"
	"github.com/kifel/authcore/internal/auth"
	"github.com/kifel/authcore/internal/infrastructure/config"
	"github.com/kifel/authcore/internal/infrastructure/logging"
	"github.com/kifel/authcore/internal/ratelimit"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ClientCounter reports how many WebSocket clients are connected.
type ClientCounter interface {
	http.Handler
	ClientCount() int
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	Logger     *logging.Logger
	Verifier   *auth.Verifier
	Registrar  *auth.Registrar
	Issuer     *auth.Issuer
	Signer     *auth.Signer
	Authorizer *auth.Authorizer
	Principals auth.PrincipalFetcher
	AuditRepo  audit.Repository
	Audit      *audit.Recorder    // optional: nil records nothing
	Limiter    *ratelimit.Limiter // optional: nil disables request limiting
	Hub        ClientCounter      // optional: nil disables /ws
	Metrics    *Metrics           // optional: created if nil
	Database   HealthChecker      // optional: reported by /health
	Version    string
}

// Server is the HTTP API server for authcore.
//
// It manages the HTTP listener, routes and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	logger     *logging.Logger
	verifier   *auth.Verifier
	registrar  *auth.Registrar
	issuer     *auth.Issuer
	signer     *auth.Signer
	authorizer *auth.Authorizer
	principals auth.PrincipalFetcher
	auditRepo  audit.Repository
	audit      *audit.Recorder
	limiter    *ratelimit.Limiter
	hub        ClientCounter
	metrics    *Metrics
	database   HealthChecker
	version    string
	server     *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Verifier == nil || deps.Registrar == nil || deps.Issuer == nil {
		return nil, fmt.Errorf("verifier, registrar and issuer are required")
	}
	if deps.Signer == nil || deps.Authorizer == nil || deps.Principals == nil {
		return nil, fmt.Errorf("signer, authorizer and principal store are required")
	}

	s := &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		verifier:   deps.Verifier,
		registrar:  deps.Registrar,
		issuer:     deps.Issuer,
		signer:     deps.Signer,
		authorizer: deps.Authorizer,
		principals: deps.Principals,
		auditRepo:  deps.AuditRepo,
		audit:      deps.Audit,
		limiter:    deps.Limiter,
		hub:        deps.Hub,
		metrics:    deps.Metrics,
		database:   deps.Database,
		version:    deps.Version,
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if s.hub != nil {
		hub := s.hub
		s.metrics.TrackGauge("ws_clients", "Connected WebSocket clients.", func() float64 {
			return float64(hub.ClientCount())
		})
	}

	return s, nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
