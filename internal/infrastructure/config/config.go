package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the camera fleet core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Fleet       FleetConfig       `yaml:"fleet"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Reconnect   ReconnectConfig   `yaml:"reconnect"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Transport   TransportConfig   `yaml:"transport"`
}

// FleetConfig contains rig-specific information.
type FleetConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MonitorConfig contains health monitor settings.
type MonitorConfig struct {
	// IntervalSeconds is the steady-state health poll interval.
	// The legacy rig polled every 5 seconds; 30 is the recommended default.
	IntervalSeconds int `yaml:"interval_seconds"`

	// CheckTimeoutSeconds bounds a single health-check transport call.
	CheckTimeoutSeconds int `yaml:"check_timeout_seconds"`
}

// ReconnectConfig contains reconnection orchestrator settings.
type ReconnectConfig struct {
	// MaxAttempts bounds provisioning attempts per device.
	MaxAttempts int `yaml:"max_attempts"`

	// SettleDelayMs is the pause between a provisioning success report and
	// the confirming health check.
	SettleDelayMs int `yaml:"settle_delay_ms"`

	// RetryDelayMs is the pause between failed attempts on the same device.
	RetryDelayMs int `yaml:"retry_delay_ms"`

	// GraceDelayMs is how long a fully successful job stays open before
	// signalling auto-completion.
	GraceDelayMs int `yaml:"grace_delay_ms"`
}

// CredentialsConfig contains credential profile store settings.
type CredentialsConfig struct {
	// Path is the YAML document holding network profiles. The document may
	// contain keys owned by other subsystems; those are preserved on write.
	Path string `yaml:"path"`
}

// TransportConfig contains settings for the MQTT bridge transport adapter.
type TransportConfig struct {
	// RequestTimeoutSeconds bounds a single bridge request/response round trip.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CAMFLEET_SECTION_KEY
// For example: CAMFLEET_DATABASE_PATH, CAMFLEET_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Fleet: FleetConfig{
			ID:   "rig-001",
			Name: "Camera Fleet",
		},
		Database: DatabaseConfig{
			Path:        "./data/camfleet.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "camfleet-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Monitor: MonitorConfig{
			IntervalSeconds:     30,
			CheckTimeoutSeconds: 10,
		},
		Reconnect: ReconnectConfig{
			MaxAttempts:   3,
			SettleDelayMs: 500,
			RetryDelayMs:  2000,
			GraceDelayMs:  2000,
		},
		Credentials: CredentialsConfig{
			Path: "./data/networks.yaml",
		},
		Transport: TransportConfig{
			RequestTimeoutSeconds: 30,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CAMFLEET_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("CAMFLEET_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("CAMFLEET_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CAMFLEET_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CAMFLEET_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("CAMFLEET_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Credentials
	if v := os.Getenv("CAMFLEET_CREDENTIALS_PATH"); v != "" {
		cfg.Credentials.Path = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Fleet validation
	if c.Fleet.ID == "" {
		errs = append(errs, "fleet.id is required")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	// Monitor validation
	if c.Monitor.IntervalSeconds < 1 {
		errs = append(errs, "monitor.interval_seconds must be at least 1")
	}

	// Reconnect validation
	if c.Reconnect.MaxAttempts < 1 {
		errs = append(errs, "reconnect.max_attempts must be at least 1")
	}

	// Credentials validation
	if c.Credentials.Path == "" {
		errs = append(errs, "credentials.path is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// MonitorInterval returns the health monitor poll interval as a Duration.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Monitor.IntervalSeconds) * time.Second
}

// CheckTimeout returns the per-check transport timeout as a Duration.
func (c *Config) CheckTimeout() time.Duration {
	return time.Duration(c.Monitor.CheckTimeoutSeconds) * time.Second
}

// RequestTimeout returns the bridge request timeout as a Duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Transport.RequestTimeoutSeconds) * time.Second
}

// SettleDelay returns the post-provisioning settle delay as a Duration.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Reconnect.SettleDelayMs) * time.Millisecond
}

// RetryDelay returns the inter-attempt reconnect delay as a Duration.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Reconnect.RetryDelayMs) * time.Millisecond
}

// GraceDelay returns the auto-completion grace delay as a Duration.
func (c *Config) GraceDelay() time.Duration {
	return time.Duration(c.Reconnect.GraceDelayMs) * time.Millisecond
}
