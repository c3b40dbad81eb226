// HearthSync - entity synchronization and conflict-resolution engine.
//
// This is the main entry point for the HearthSync daemon. It mirrors the
// entity registry of an external home-automation controller into a local
// SQLite database, reconciling identity conflicts, duplicates and deletions
// along the way.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hearthlabs/hearthsync/internal/api"
	"github.com/hearthlabs/hearthsync/internal/controller"
	"github.com/hearthlabs/hearthsync/internal/entity"
	"github.com/hearthlabs/hearthsync/internal/infrastructure/config"
	"github.com/hearthlabs/hearthsync/internal/infrastructure/database"
	"github.com/hearthlabs/hearthsync/internal/infrastructure/history"
	"github.com/hearthlabs/hearthsync/internal/infrastructure/logging"
	"github.com/hearthlabs/hearthsync/internal/infrastructure/mqtt"
	"github.com/hearthlabs/hearthsync/internal/sync"
	"github.com/hearthlabs/hearthsync/migrations"
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
	log.Info("starting HearthSync",
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
	if migrateErr := db.Migrate(ctx, migrations.Files()); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise entity registry
	registry := entity.NewRegistry(entity.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.Component("registry"))
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading entity registry: %w", refreshErr)
	}
	log.Info("entity registry initialised", "entities", registry.Count())

	// Controller client for full snapshots
	ctrl := controller.New(cfg.Controller)
	log.Info("controller client created", "base_url", cfg.Controller.BaseURL)

	// Sync engine
	engine := sync.NewEngine(registry, ctrl)
	engine.SetLogger(log.Component("sync"))

	// Connect to MQTT broker (optional: real-time feed and sync events)
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
		)

		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(discErr error) {
			log.Warn("MQTT disconnected", "error", discErr)
		})

		engine.SetPublisher(mqttClient)

		// Real-time statestream feed
		bridge := sync.NewEventBridge(engine, mqttClient, byte(cfg.MQTT.QoS))
		bridge.SetLogger(log.Component("bridge"))
		if bridgeErr := bridge.Start(ctx); bridgeErr != nil {
			return fmt.Errorf("starting event bridge: %w", bridgeErr)
		}
		log.Info("statestream event bridge started")
	} else {
		log.Info("MQTT disabled, running on periodic snapshots only")
	}

	// Connect to state history (optional)
	historyClient, err := history.Connect(cfg.History)
	switch {
	case errors.Is(err, history.ErrDisabled):
		log.Info("state history disabled")
	case err != nil:
		return fmt.Errorf("connecting to history store: %w", err)
	default:
		defer func() {
			log.Info("closing history connection")
			if closeErr := historyClient.Close(); closeErr != nil {
				log.Error("error closing history", "error", closeErr)
			}
		}()
		historyClient.SetOnError(func(writeErr error) {
			log.Error("history write error", "error", writeErr)
		})
		engine.SetRecorder(historyClient)
		log.Info("state history connected",
			"url", cfg.History.URL,
			"bucket", cfg.History.Bucket,
		)
	}

	// Scheduled full-sync passes
	defaults := syncDefaults(cfg)
	scheduler := sync.NewScheduler(engine, cfg.SyncInterval(), defaults)
	scheduler.SetLogger(log.Component("scheduler"))
	go func() {
		if schedErr := scheduler.Run(ctx); schedErr != nil && !errors.Is(schedErr, context.Canceled) {
			log.Error("scheduler stopped", "error", schedErr)
		}
	}()
	log.Info("sync scheduler started", "interval", cfg.SyncInterval())

	// HTTP API
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Logger:   log.Component("api"),
		Registry: registry,
		Engine:   engine,
		Defaults: defaults,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, historyClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. History (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("HearthSync stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HEARTHSYNC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HEARTHSYNC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// syncDefaults builds the engine options from the sync config section.
func syncDefaults(cfg *config.Config) sync.Options {
	return sync.Options{
		ConflictPolicy:   cfg.Sync.ConflictPolicy,
		HandleDeletions:  cfg.Sync.HandleDeletions,
		DeletionStrategy: sync.DeletionStrategy(cfg.Sync.DeletionStrategy),
		MergeHybrids:     cfg.Sync.MergeHybrids,
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// The MQTT and history clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, historyClient *history.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if historyClient != nil {
		if err := historyClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("history: %w", err)
		}
	}

	return nil
}
