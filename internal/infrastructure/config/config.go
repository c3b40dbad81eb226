package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for HearthSync.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	Controller ControllerConfig `yaml:"controller"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Sync       SyncConfig       `yaml:"sync"`
	History    HistoryConfig    `yaml:"history"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// ControllerConfig contains the external controller's REST API settings.
type ControllerConfig struct {
	// BaseURL is the controller's base URL, e.g. "http://homeassistant.local:8123".
	BaseURL string `yaml:"base_url"`

	// Token is the long-lived access token for the controller API.
	Token string `yaml:"token"`

	// Timeout is the snapshot request timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// MQTTConfig contains MQTT broker connection settings for the real-time
// event feed.
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

// SyncConfig contains sync engine defaults. Per-run options passed through
// the API override these.
type SyncConfig struct {
	// Interval is the scheduled full-sync interval in seconds. 0 disables
	// the scheduler; on-demand runs via the API are always possible.
	Interval int `yaml:"interval"`

	// ConflictPolicy is "auto" (resolve conflicts) or "skip"
	// (skip high-confidence duplicates).
	ConflictPolicy string `yaml:"conflict_policy"`

	// DeletionStrategy is "preserve", "soft" or "hard".
	DeletionStrategy string `yaml:"deletion_strategy"`

	// HandleDeletions runs the deletion detector at the end of each pass.
	HandleDeletions bool `yaml:"handle_deletions"`

	// MergeHybrids merges locally-created records with matching external ones.
	MergeHybrids bool `yaml:"merge_hybrids"`
}

// HistoryConfig contains InfluxDB state-history settings.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable
// overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HEARTHSYNC_SECTION_KEY
// For example: HEARTHSYNC_DATABASE_PATH, HEARTHSYNC_CONTROLLER_TOKEN
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "HearthSync",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/hearthsync.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Controller: ControllerConfig{
			Timeout: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "hearthsync",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Sync: SyncConfig{
			Interval:         300,
			ConflictPolicy:   "auto",
			DeletionStrategy: "soft",
			HandleDeletions:  true,
			MergeHybrids:     true,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8124,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HEARTHSYNC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("HEARTHSYNC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Controller
	if v := os.Getenv("HEARTHSYNC_CONTROLLER_URL"); v != "" {
		cfg.Controller.BaseURL = v
	}
	if v := os.Getenv("HEARTHSYNC_CONTROLLER_TOKEN"); v != "" {
		cfg.Controller.Token = v
	}

	// MQTT
	if v := os.Getenv("HEARTHSYNC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HEARTHSYNC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HEARTHSYNC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Sync
	if v := os.Getenv("HEARTHSYNC_SYNC_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.Interval = n
		}
	}

	// API
	if v := os.Getenv("HEARTHSYNC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// History
	if v := os.Getenv("HEARTHSYNC_HISTORY_TOKEN"); v != "" {
		cfg.History.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Controller.BaseURL == "" {
		errs = append(errs, "controller.base_url is required (set HEARTHSYNC_CONTROLLER_URL)")
	}
	if c.Controller.Token == "" {
		errs = append(errs, "controller.token is required (set HEARTHSYNC_CONTROLLER_TOKEN)")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	switch c.Sync.ConflictPolicy {
	case "auto", "skip":
	default:
		errs = append(errs, "sync.conflict_policy must be auto or skip")
	}
	switch c.Sync.DeletionStrategy {
	case "preserve", "soft", "hard":
	default:
		errs = append(errs, "sync.deletion_strategy must be preserve, soft or hard")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// SyncInterval returns the scheduled full-sync interval as a Duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.Interval) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
