// authcore - multi-tenant authentication and session core
//
// This is the main entry point for the authcore service. It serves:
//   - Credential verification and token issuance over HTTP
//   - Store-fresh role checks on every protected route
//   - A WebSocket endpoint with live presence of connected principals
//   - Per-origin request limiting
//
// Optional integrations publish presence and auth events to MQTT and
// write auth event time series to InfluxDB.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/kifel/authcore/internal/api"
	"github.com/kifel/authcore/internal/audit"
	"github.com/kifel/authcore/internal/auth"
	"github.com/kifel/authcore/internal/infrastructure/config"
	"github.com/kifel/authcore/internal/infrastructure/database"
	"github.com/kifel/authcore/internal/infrastructure/influxdb"
	"github.com/kifel/authcore/internal/infrastructure/logging"
	"github.com/kifel/authcore/internal/infrastructure/mqtt"
	"github.com/kifel/authcore/internal/ratelimit"
	"github.com/kifel/authcore/internal/realtime"
	_ "github.com/kifel/authcore/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

const (
	// purgeInterval is how often expired refresh tokens are deleted.
	purgeInterval = time.Hour

	// sweepInterval is how often lapsed rate-limit windows are dropped.
	sweepInterval = 10 * time.Minute
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, args []string) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting authcore",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath, err := getConfigPath(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	applied, err := db.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete", "applied", applied)

	// Auth services
	principals := auth.NewPrincipalRepository(db.DB)
	roles := auth.NewRoleRepository(db.DB)
	tokens := auth.NewTokenRepository(db.DB)

	if cfg.Security.SeedRoles {
		created, seedErr := auth.SeedRoles(ctx, roles, log.With("component", "seed").Logger)
		if seedErr != nil {
			return fmt.Errorf("seeding roles: %w", seedErr)
		}
		log.Info("roles checked", "created", len(created))
	}

	hasher := auth.NewArgon2Hasher()
	signer := auth.NewSigner(cfg.Security.JWT.Secret, cfg.AccessTokenTTL())
	issuer := auth.NewIssuer(tokens, principals, signer, cfg.RefreshTokenTTL())

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
			"topic_prefix", mqttClient.Topics().Prefix(),
		)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Background workers share one context so shutdown stops them together.
	workCtx, stopWorkers := context.WithCancel(ctx)
	var workers []func()
	goWorker := func(fn func(context.Context)) {
		done := make(chan struct{})
		go func() {
			defer close(done)
			fn(workCtx)
		}()
		workers = append(workers, func() { <-done })
	}

	// Audit trail and its sinks
	metrics := api.NewMetrics()
	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo, log.With("component", "audit"),
		auditSinks(metrics, mqttClient, influxClient, log)...)
	goWorker(recorder.Run)

	// Session registry and WebSocket hub
	registry := realtime.NewRegistry(log.With("component", "registry"))
	hub := realtime.NewHub(cfg.WebSocket, realtime.Authenticator{Verifier: signer}, registry, log.With("component", "websocket"))
	registry.AddSink(hub)
	if mqttClient != nil {
		presence := realtime.NewPresencePublisher(mqttClient, mqttClient.Topics().Presence(), log.With("component", "presence"))
		registry.AddSink(presence)
		goWorker(presence.Run)
	}
	goWorker(registry.Run)
	goWorker(hub.Run)

	// Request limiter
	var limiter *ratelimit.Limiter
	if cfg.Security.RateLimit.Enabled {
		limiter = ratelimit.New(cfg.Security.RateLimit.MaxRequests, cfg.RateLimitWindow())
		goWorker(func(ctx context.Context) { limiter.Run(ctx, sweepInterval) })
		log.Info("rate limiting enabled",
			"max_requests", limiter.Ceiling(),
			"window", cfg.RateLimitWindow().String(),
		)
	}

	goWorker(func(ctx context.Context) { purgeExpiredTokens(ctx, issuer, log) })

	// HTTP API
	server, err := api.New(api.Deps{
		Config:     cfg.API,
		Logger:     log.With("component", "api"),
		Verifier:   auth.NewVerifier(principals, hasher),
		Registrar:  auth.NewRegistrar(principals, roles, hasher),
		Issuer:     issuer,
		Signer:     signer,
		Authorizer: auth.NewAuthorizer(principals),
		Principals: principals,
		AuditRepo:  auditRepo,
		Audit:      recorder,
		Limiter:    limiter,
		Hub:        hub,
		Metrics:    metrics,
		Database:   db,
		Version:    version,
	})
	if err != nil {
		stopWorkers()
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		stopWorkers()
		return fmt.Errorf("starting API server: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if err := server.Close(); err != nil {
		log.Error("error closing API server", "error", err)
	}
	stopWorkers()
	for _, wait := range workers {
		wait()
	}

	log.Info("authcore stopped")
	return nil
}

// getConfigPath resolves the config file from --config, then
// AUTHCORE_CONFIG, then the default path.
func getConfigPath(args []string) (string, error) {
	fs := pflag.NewFlagSet("authcore", pflag.ContinueOnError)
	path := fs.StringP("config", "c", "", "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return "", fmt.Errorf("parsing flags: %w", err)
	}

	if *path != "" {
		return *path, nil
	}
	if env := os.Getenv("AUTHCORE_CONFIG"); env != "" {
		return env, nil
	}
	return defaultConfigPath, nil
}

// healthCheck verifies every connected dependency before serving.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// auditSinks builds the fan-out for recorded auth events.
func auditSinks(metrics *api.Metrics, mqttClient *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) []audit.Sink {
	sinks := []audit.Sink{metrics}

	if influxClient != nil {
		sinks = append(sinks, audit.SinkFunc(func(e audit.Event) {
			influxClient.WriteAuthEvent(e.Action, e.PrincipalID, e.OriginIP, e.CreatedAt)
		}))
	}

	if mqttClient != nil {
		topics := mqttClient.Topics()
		sinks = append(sinks, audit.SinkFunc(func(e audit.Event) {
			payload, err := json.Marshal(e)
			if err != nil {
				log.Error("failed to marshal auth event", "error", err)
				return
			}
			if err := mqttClient.PublishEvent(topics.AuthEvent(e.Action), payload); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
				log.Warn("publishing auth event failed", "action", e.Action, "error", err)
			}
		}))
	}

	return sinks
}

// purgeExpiredTokens deletes lapsed refresh tokens at startup and then
// every purgeInterval.
func purgeExpiredTokens(ctx context.Context, issuer *auth.Issuer, log *logging.Logger) {
	purge := func() {
		n, err := issuer.PurgeExpired(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("purging expired refresh tokens failed", "error", err)
			}
			return
		}
		if n > 0 {
			log.Info("purged expired refresh tokens", "count", n)
		}
	}

	purge()
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purge()
		}
	}
}
