// Folioline Core - realtime portfolio platform
//
// This is the main entry point for the Folioline Core application. It
// wires together the HTTP API, the WebSocket fan-out layer, the SQLite
// store and the optional MQTT relay / InfluxDB analytics integrations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/ashmarby/folioline-core/migrations"

	"github.com/ashmarby/folioline-core/internal/api"
	"github.com/ashmarby/folioline-core/internal/bridge"
	"github.com/ashmarby/folioline-core/internal/identity"
	"github.com/ashmarby/folioline-core/internal/infrastructure/config"
	"github.com/ashmarby/folioline-core/internal/infrastructure/database"
	"github.com/ashmarby/folioline-core/internal/infrastructure/influxdb"
	"github.com/ashmarby/folioline-core/internal/infrastructure/logging"
	"github.com/ashmarby/folioline-core/internal/infrastructure/mqtt"
	"github.com/ashmarby/folioline-core/internal/portfolio"
	"github.com/ashmarby/folioline-core/internal/realtime"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main so failures
// can be returned rather than calling os.Exit mid-teardown.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Folioline Core",
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

	// Repositories
	users := identity.NewSQLiteRepository(db.DB)
	portfolios := portfolio.NewSQLiteRepository(db.DB)

	// Seed the first user account on an empty database so the instance
	// is usable straight after install.
	if seedErr := seedFirstUser(ctx, users, log); seedErr != nil {
		return fmt.Errorf("seeding first user: %w", seedErr)
	}

	// Realtime fan-out core
	registry := realtime.NewRegistry()
	dispatcher := realtime.NewDispatcher(registry, log)

	// Connect to the MQTT relay (optional)
	var relayClient *mqtt.Client
	if cfg.Relay.Enabled {
		relayClient, err = mqtt.Connect(cfg.Relay)
		if err != nil {
			return fmt.Errorf("connecting to MQTT relay: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT relay")
			if closeErr := relayClient.Close(); closeErr != nil {
				log.Error("error closing MQTT relay", "error", closeErr)
			}
		}()
		log.Info("MQTT relay connected",
			"broker", fmt.Sprintf("%s:%d", cfg.Relay.Broker.Host, cfg.Relay.Broker.Port),
			"client_id", cfg.Relay.Broker.ClientID,
		)

		relayClient.SetLogger(log)
		relayClient.SetOnConnect(func() {
			log.Info("MQTT relay reconnected")
		})
		relayClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT relay disconnected", "error", err)
		})
	} else {
		log.Info("MQTT relay disabled")
	}

	// Connect to InfluxDB analytics (optional)
	var influxClient *influxdb.Client
	if cfg.Analytics.Enabled {
		influxClient, err = influxdb.Connect(cfg.Analytics)
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
			"url", cfg.Analytics.URL,
			"org", cfg.Analytics.Org,
			"bucket", cfg.Analytics.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB analytics disabled")
	}

	// Mutation-to-event bridge. The nilable integrations must be passed
	// as typed nils only when absent, hence the indirection here.
	var relay bridge.EventRelay
	if relayClient != nil {
		relay = relayClient
	}
	var views bridge.ViewSink
	if influxClient != nil {
		views = influxClient
	}
	notifier := bridge.NewNotifier(dispatcher, relay, views, log)

	// Inbound relay ingest feeds external events into the dispatcher
	if relayClient != nil {
		qos := byte(cfg.Relay.QoS) //nolint:gosec // validated to 0..2 at config load
		if ingestErr := notifier.StartIngest(relayClient, qos); ingestErr != nil {
			return fmt.Errorf("starting relay ingest: %w", ingestErr)
		}
		log.Info("relay ingest subscribed")
	}

	// HTTP API + WebSocket server
	auth := identity.NewAuthenticator(users, cfg.Security.JWT.Secret)
	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log,
		Auth:       auth,
		Users:      users,
		Portfolios: portfolios,
		Registry:   registry,
		Notifier:   notifier,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"host", cfg.API.Host,
		"port", cfg.API.Port,
		"ws_path", cfg.WebSocket.Path,
	)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, relayClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server (drains WebSocket connections)
	// 2. InfluxDB (if enabled)
	// 3. MQTT relay (if enabled)
	// 4. Database

	log.Info("Folioline Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FOLIOLINE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FOLIOLINE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// The relay and analytics clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, relayClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if relayClient != nil {
		if err := relayClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt relay: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// seedFirstUser creates an initial account when the user table is empty.
// Credentials come from FOLIOLINE_ADMIN_EMAIL and FOLIOLINE_ADMIN_PASSWORD;
// without them an empty instance simply has no accounts until one is
// created out of band.
func seedFirstUser(ctx context.Context, users identity.Repository, log *logging.Logger) error {
	count, err := users.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting users: %w", err)
	}
	if count > 0 {
		return nil
	}

	email := strings.ToLower(strings.TrimSpace(os.Getenv("FOLIOLINE_ADMIN_EMAIL")))
	password := os.Getenv("FOLIOLINE_ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Warn("no users exist and FOLIOLINE_ADMIN_EMAIL/PASSWORD not set, skipping seed")
		return nil
	}

	name := os.Getenv("FOLIOLINE_ADMIN_NAME")
	if name == "" {
		name = "Admin"
	}

	hash, err := identity.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	user := &identity.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	}
	if err := users.Create(ctx, user); err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	log.Info("seeded first user", "user_id", user.ID, "email", email)
	return nil
}
