// Agora Core - Deliberation Authorisation Service
//
// This is the main entry point for the Agora Core daemon. It hosts the
// authorisation policy engine for the deliberation platform:
//   - Access code lifecycle (generate, validate, consume)
//   - Identity resolution (access codes, sessions, federated tokens)
//   - Policy evaluation with a tamper-evident audit log
//   - Live security alerting over MQTT
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/openagora/agora-core/migrations"

	"github.com/openagora/agora-core/internal/accesscode"
	"github.com/openagora/agora-core/internal/alerting"
	"github.com/openagora/agora-core/internal/api"
	"github.com/openagora/agora-core/internal/audit"
	"github.com/openagora/agora-core/internal/deliberation"
	"github.com/openagora/agora-core/internal/identity"
	"github.com/openagora/agora-core/internal/infrastructure/config"
	"github.com/openagora/agora-core/internal/infrastructure/database"
	"github.com/openagora/agora-core/internal/infrastructure/logging"
	"github.com/openagora/agora-core/internal/infrastructure/metrics"
	"github.com/openagora/agora-core/internal/infrastructure/mqtt"
	"github.com/openagora/agora-core/internal/policy"
	"github.com/openagora/agora-core/internal/principal"
	"github.com/openagora/agora-core/internal/trust"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Agora Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories and the audit recorder. Every security-relevant
	// mutation flows through the recorder inside the mutating transaction.
	principalRepo := principal.NewSQLiteRepository(db.DB)
	codeRepo := accesscode.NewSQLiteRepository(db.DB)
	deliberationRepo := deliberation.NewSQLiteRepository(db.DB)
	federatedRepo := identity.NewSQLiteFederatedRepository(db.DB)
	eventRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(eventRepo, log.Logger)

	// Seed the first admin so the "at least one admin" invariant holds
	// from first boot. The generated password is logged once.
	seeded, seedPassword, err := principal.SeedAdmin(ctx, principalRepo, log.Logger)
	if err != nil {
		return fmt.Errorf("seeding admin: %w", err)
	}
	if seeded != nil {
		log.Warn("seeded initial admin - change this password immediately",
			"principal_id", seeded.ID,
			"password", seedPassword,
		)
	}

	// Connect to the metrics sink (optional)
	metricsClient, err := metrics.Connect(cfg.Metrics)
	switch {
	case errors.Is(err, metrics.ErrDisabled):
		log.Info("metrics disabled")
	case err != nil:
		return fmt.Errorf("connecting to metrics: %w", err)
	default:
		defer func() {
			log.Info("closing metrics connection")
			if closeErr := metricsClient.Close(); closeErr != nil {
				log.Error("error closing metrics", "error", closeErr)
			}
		}()
		metricsClient.SetOnError(func(err error) {
			log.Error("metrics write error", "error", err)
		})
		log.Info("metrics connected",
			"url", cfg.Metrics.URL,
			"org", cfg.Metrics.Org,
			"bucket", cfg.Metrics.Bucket,
		)
	}

	// Connect to the MQTT broker for security alerting (optional).
	// Alerts are advisory - the audit log is the durable record.
	var mqttClient *mqtt.Client
	if cfg.Alerting.Enabled {
		mqttClient, err = mqtt.Connect(cfg.Alerting)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.Alerting.Broker.Host, cfg.Alerting.Broker.Port),
			"client_id", cfg.Alerting.Broker.ClientID,
		)

		alerting.NewPublisher(mqttClient, log.Logger).Register(recorder)
		log.Info("alert publisher registered")
	} else {
		log.Info("alerting disabled")
	}

	// Access code lifecycle: brute-force guard plus the manager that
	// drives generate/validate/consume.
	guard := accesscode.NewGuard(
		cfg.Security.RateLimit.MaxFailures,
		cfg.RateLimitWindow(),
		cfg.RateLimitBlock(),
		cfg.Security.RateLimit.GlobalPerSecond,
		cfg.Security.RateLimit.GlobalBurst,
	)
	codes := accesscode.NewManager(db.DB, codeRepo, guard, recorder, log.Logger, cfg.Security.AccessCodes)

	// Identity resolution, in precedence order: access code, session
	// token, federated token. The federated resolver only joins the
	// chain when a verification secret is configured.
	resolvers := []identity.Resolver{
		identity.NewAccessCodeResolver(codes, codeRepo, principalRepo, log.Logger),
		identity.NewSessionResolver(cfg.Security.JWT.Secret, principalRepo),
	}
	if cfg.Security.JWT.FederatedSecret != "" {
		resolvers = append(resolvers, identity.NewFederatedResolver(
			cfg.Security.JWT.FederatedSecret,
			cfg.Security.JWT.FederatedIssuer,
			federatedRepo,
			principalRepo,
			log.Logger,
		))
		log.Info("federated identity resolver enabled", "issuer", cfg.Security.JWT.FederatedIssuer)
	}
	chain := identity.NewChain(log.Logger, resolvers...)

	login := identity.NewLoginService(
		principalRepo,
		recorder,
		log.Logger,
		cfg.Security.JWT.Secret,
		time.Duration(cfg.Security.JWT.SessionTokenTTL)*time.Minute,
	)

	if metricsClient != nil {
		codes.SetMetrics(metricsClient)
		login.SetMetrics(metricsClient)
	}

	// Policy evaluation: resource directory, trusted kernel, evaluator.
	directory := deliberation.NewDirectory(db.DB)
	kernel := trust.NewKernel(db.DB)

	// Avoid a typed-nil interface when metrics is disabled.
	var sink policy.MetricsSink
	if metricsClient != nil {
		sink = metricsClient
	}
	evaluator := policy.NewEvaluator(db.DB, principalRepo, deliberationRepo, directory, kernel, recorder, sink, log.Logger)

	// HTTP API
	server, err := api.New(api.Deps{
		Config:        cfg.API,
		WS:            cfg.WebSocket,
		Logger:        log,
		Identity:      chain,
		Login:         login,
		Evaluator:     evaluator,
		Codes:         codes,
		CodesRepo:     codeRepo,
		Principals:    principalRepo,
		Deliberations: deliberationRepo,
		Resources:     deliberation.NewResourceStore(db.DB),
		Events:        eventRepo,
		Recorder:      recorder,
		Version:       version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, metricsClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. MQTT (if enabled)
	// 3. Metrics (if enabled)
	// 4. Database

	log.Info("Agora Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses AGORA_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AGORA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and metricsClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, metricsClient *metrics.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if metricsClient != nil {
		if err := metricsClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	return nil
}
