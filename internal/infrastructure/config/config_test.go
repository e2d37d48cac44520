package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
fleet:
  id: "test-rig"
  name: "Lab Rig"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
monitor:
  interval_seconds: 30
credentials:
  path: "/tmp/networks.yaml"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Fleet.ID != "test-rig" {
		t.Errorf("Fleet.ID = %q, want %q", cfg.Fleet.ID, "test-rig")
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_Defaults(t *testing.T) {
	// A minimal file should leave the defaults intact.
	content := `
fleet:
  id: "rig-lab"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Monitor.IntervalSeconds != 30 {
		t.Errorf("Monitor.IntervalSeconds = %d, want 30", cfg.Monitor.IntervalSeconds)
	}
	if cfg.Reconnect.MaxAttempts != 3 {
		t.Errorf("Reconnect.MaxAttempts = %d, want 3", cfg.Reconnect.MaxAttempts)
	}
	if cfg.Reconnect.SettleDelayMs != 500 {
		t.Errorf("Reconnect.SettleDelayMs = %d, want 500", cfg.Reconnect.SettleDelayMs)
	}
	if cfg.Reconnect.RetryDelayMs != 2000 {
		t.Errorf("Reconnect.RetryDelayMs = %d, want 2000", cfg.Reconnect.RetryDelayMs)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.MQTT.Broker.ClientID != "camfleet-core" {
		t.Errorf("MQTT.Broker.ClientID = %q, want %q", cfg.MQTT.Broker.ClientID, "camfleet-core")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	content := `
fleet:
  id: "rig-lab"
database:
  path: "/tmp/file.db"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("CAMFLEET_DATABASE_PATH", "/tmp/env.db")
	t.Setenv("CAMFLEET_MQTT_HOST", "broker.local")
	t.Setenv("CAMFLEET_CREDENTIALS_PATH", "/tmp/env-networks.yaml")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want env override", cfg.MQTT.Broker.Host)
	}
	if cfg.Credentials.Path != "/tmp/env-networks.yaml" {
		t.Errorf("Credentials.Path = %q, want env override", cfg.Credentials.Path)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing fleet id",
			mutate:  func(c *Config) { c.Fleet.ID = "" },
			wantErr: "fleet.id",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "zero monitor interval",
			mutate:  func(c *Config) { c.Monitor.IntervalSeconds = 0 },
			wantErr: "monitor.interval_seconds",
		},
		{
			name:    "zero max attempts",
			mutate:  func(c *Config) { c.Reconnect.MaxAttempts = 0 },
			wantErr: "reconnect.max_attempts",
		},
		{
			name:    "missing credentials path",
			mutate:  func(c *Config) { c.Credentials.Path = "" },
			wantErr: "credentials.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.MonitorInterval(); got != 30*time.Second {
		t.Errorf("MonitorInterval() = %v, want 30s", got)
	}
	if got := cfg.CheckTimeout(); got != 10*time.Second {
		t.Errorf("CheckTimeout() = %v, want 10s", got)
	}
	if got := cfg.RequestTimeout(); got != 30*time.Second {
		t.Errorf("RequestTimeout() = %v, want 30s", got)
	}
}
