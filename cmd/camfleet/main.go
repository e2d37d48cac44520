// camfleet - Camera Fleet Connection Core
//
// This is the main entry point for the camfleet daemon. It manages the
// connection lifecycle of a fleet of action cameras reachable over BLE
// or COHN (HTTPS over WiFi):
//   - Tracks per-device connectivity state
//   - Polls device health and detects silent disconnects
//   - Orchestrates bounded-retry reconnection with cancellation
//   - Persists WiFi credential profiles
//   - Fans capture commands out to the connected fleet
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/camfleet-core/migrations"

	"github.com/nerrad567/camfleet-core/internal/command"
	"github.com/nerrad567/camfleet-core/internal/credentials"
	"github.com/nerrad567/camfleet-core/internal/device"
	"github.com/nerrad567/camfleet-core/internal/infrastructure/config"
	"github.com/nerrad567/camfleet-core/internal/infrastructure/database"
	"github.com/nerrad567/camfleet-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/camfleet-core/internal/infrastructure/logging"
	"github.com/nerrad567/camfleet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/camfleet-core/internal/monitor"
	"github.com/nerrad567/camfleet-core/internal/reconnect"
	"github.com/nerrad567/camfleet-core/internal/transport"
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
	log.Info("starting camfleet",
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

	// Reconfigure logging per config
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "fleet", cfg.Fleet.Name)

	// The bridge transport rides on MQTT; without a broker there is no
	// way to reach a camera.
	if !cfg.MQTT.Enabled {
		return fmt.Errorf("mqtt must be enabled: the camera bridges are reached over the broker")
	}

	// Open database and apply migrations
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Device registry with persistence
	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.With("component", "registry"))
	if err := registry.Load(ctx); err != nil {
		return fmt.Errorf("loading device registry: %w", err)
	}

	// Credential profile store
	creds := credentials.NewStore(cfg.Credentials.Path)
	creds.SetLogger(log.With("component", "credentials"))

	// MQTT: notification channel and bridge transport
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to mqtt broker: %w", err)
	}
	defer mqttClient.Close()
	mqttClient.SetLogger(log.With("component", "mqtt"))

	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("mqtt connection lost", "error", err)
	})

	topics := mqtt.Topics{}
	registry.SetPublisher(mqttClient, topics.DeviceState)

	bridge := transport.NewBridge(mqttClient, cfg.RequestTimeout())
	bridge.SetLogger(log.With("component", "transport"))
	if err := bridge.Start(); err != nil {
		return fmt.Errorf("subscribing to bridge responses: %w", err)
	}

	// Optional telemetry
	var influx *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influx, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			// Telemetry is best-effort; the fleet runs without it.
			log.Warn("influxdb unavailable, telemetry disabled", "error", err)
			influx = nil
		} else {
			defer influx.Close()
			influx.SetOnError(func(err error) {
				log.Warn("telemetry write failed", "error", err)
			})
			registry.SetTelemetry(influx)
		}
	}

	// Reconnection orchestrator
	orchestrator := reconnect.New(registry, bridge, creds, reconnect.Config{
		MaxAttempts: cfg.Reconnect.MaxAttempts,
		SettleDelay: cfg.SettleDelay(),
		RetryDelay:  cfg.RetryDelay(),
		GraceDelay:  cfg.GraceDelay(),
	})
	orchestrator.SetLogger(log.With("component", "reconnect"))
	orchestrator.SetPublisher(mqttClient, topics.JobProgress(), topics.JobOutcome())
	if influx != nil {
		orchestrator.SetTelemetry(influx)
	}

	// Batch command dispatcher
	dispatcher := command.New(registry, bridge)
	dispatcher.SetLogger(log.With("component", "command"))

	// Health monitor, gated on the orchestrator and dispatcher, handing
	// each unhealthy batch straight to the orchestrator.
	healthMonitor := monitor.New(registry, bridge,
		func(unhealthy []device.Device) {
			if _, err := orchestrator.Start(ctx, unhealthy, nil); err != nil {
				log.Warn("reconnection batch rejected", "error", err)
			}
		},
		cfg.MonitorInterval(), cfg.CheckTimeout())
	healthMonitor.SetLogger(log.With("component", "monitor"))
	healthMonitor.AddGate(orchestrator)
	healthMonitor.AddGate(dispatcher)
	healthMonitor.SetPublisher(mqttClient, topics.HealthSummary())
	if influx != nil {
		healthMonitor.SetTelemetry(influx)
	}

	// Seed the registry from an initial scan. Failure is not fatal:
	// cameras may simply be off, and later scans can be user-driven.
	if found, err := bridge.Scan(ctx); err != nil {
		log.Warn("initial scan failed", "error", err)
	} else {
		for _, desc := range found {
			d := &device.Device{ID: desc.ID, Name: desc.Name, Transport: desc.Kind}
			if err := registry.Upsert(ctx, d); err != nil {
				log.Warn("ignoring scanned device", "device_id", desc.ID, "error", err)
			}
		}
		log.Info("initial scan complete", "devices", len(found))
	}

	healthMonitor.Start(ctx)
	log.Info("camfleet running", "devices", len(registry.All()))

	// Block until shutdown signal
	<-ctx.Done()
	log.Info("shutting down")

	// Reverse-order teardown
	healthMonitor.Stop()
	orchestrator.Cancel()
	orchestrator.Wait()

	log.Info("shutdown complete")
	return nil
}

// getConfigPath returns the configuration file path from the environment
// or the default.
func getConfigPath() string {
	if path := os.Getenv("CAMFLEET_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
