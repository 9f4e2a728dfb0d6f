package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for huesync.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge"`
	Sync     SyncConfig     `yaml:"sync"`
	Commands CommandsConfig `yaml:"commands"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BridgeConfig contains the lighting-bridge connection settings.
type BridgeConfig struct {
	// Host is the bridge's IP address or hostname. Required unless the
	// process is started in pairing mode.
	Host string `yaml:"host"`

	// Port is the bridge's HTTP port. Default: 80.
	Port int `yaml:"port"`

	// Username is the API credential obtained from a pairing exchange.
	// Required unless the process is started in pairing mode.
	Username string `yaml:"username"`

	// Devicetype identifies this client during pairing.
	Devicetype string `yaml:"devicetype"`
}

// SyncConfig controls the polling cycle and channel selection.
type SyncConfig struct {
	// Interval is the polling interval in milliseconds.
	// Values between 1 and 2999 are coerced to 3000 at runtime;
	// 0 disables rescheduling after the initial sync.
	Interval int `yaml:"interval"`

	// IDPosition controls where the zero-padded numeric resource id is
	// placed relative to the name slug: "append" or "prepend".
	IDPosition string `yaml:"id_position"`

	// Channels holds per-channel sync toggles keyed by channel name
	// (lights, groups, scenes, schedules, rules, sensors, config).
	Channels map[string]ChannelConfig `yaml:"channels"`
}

// ChannelConfig contains the per-channel sync toggles.
type ChannelConfig struct {
	// Enabled controls whether the channel is mapped at all.
	Enabled bool `yaml:"enabled"`

	// IncludeRecycled maps resources the bridge has flagged as recycled
	// (auto-generated, subject to deletion by the bridge).
	IncludeRecycled bool `yaml:"include_recycled"`
}

// CommandsConfig controls the outbound command pipeline.
type CommandsConfig struct {
	// QueueEnabled coalesces commands per target and flushes on an
	// interval instead of dispatching each write immediately.
	QueueEnabled bool `yaml:"queue_enabled"`

	// FlushInterval is the queue flush period in milliseconds.
	FlushInterval int `yaml:"flush_interval"`

	// BrightnessTracksPower couples on/off with brightness: powering off
	// zeroes brightness, powering back on restores the previous level.
	BrightnessTracksPower bool `yaml:"brightness_tracks_power"`

	// HueToXY translates hue commands into CIE xy coordinates for lights
	// from non-reference manufacturers that ignore the hue field.
	HueToXY bool `yaml:"hue_to_xy"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// DatabaseConfig contains the SQLite tree-snapshot settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains the operational HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ChannelNames lists every resource channel in canonical sync order.
// Lights precede groups so the virtual all-lights group can be populated
// from aggregates computed during the lights pass.
var ChannelNames = []string{"lights", "groups", "config", "scenes", "schedules", "rules", "sensors"}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HUESYNC_SECTION_KEY
// For example: HUESYNC_BRIDGE_HOST, HUESYNC_MQTT_PASSWORD
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
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

// LoadForPairing loads configuration without requiring bridge credentials.
// Used by the pairing flow, which exists to obtain those credentials.
func LoadForPairing(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.Bridge.Host == "" {
		return nil, fmt.Errorf("validating config: bridge.host is required")
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	channels := make(map[string]ChannelConfig, len(ChannelNames))
	for _, name := range ChannelNames {
		channels[name] = ChannelConfig{Enabled: true}
	}

	return &Config{
		Bridge: BridgeConfig{
			Port:       80,
			Devicetype: "huesync",
		},
		Sync: SyncConfig{
			Interval:   30000,
			IDPosition: "append",
			Channels:   channels,
		},
		Commands: CommandsConfig{
			QueueEnabled:          true,
			FlushInterval:         3000,
			BrightnessTracksPower: true,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "huesync",
			},
			QoS:         1,
			TopicPrefix: "huesync",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/huesync.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Enabled: false,
			Host:    "0.0.0.0",
			Port:    8087,
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
// Environment variables follow the pattern: HUESYNC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Bridge
	if v := os.Getenv("HUESYNC_BRIDGE_HOST"); v != "" {
		cfg.Bridge.Host = v
	}
	if v := os.Getenv("HUESYNC_BRIDGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Bridge.Port = port
		}
	}
	if v := os.Getenv("HUESYNC_BRIDGE_USERNAME"); v != "" {
		cfg.Bridge.Username = v
	}

	// MQTT
	if v := os.Getenv("HUESYNC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HUESYNC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HUESYNC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("HUESYNC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("HUESYNC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Bridge validation. Host and username are the minimum needed to
	// reach the API; without them the sync driver can never start.
	if c.Bridge.Host == "" {
		errs = append(errs, "bridge.host is required")
	}
	if c.Bridge.Username == "" {
		errs = append(errs, "bridge.username is required (run with -pair to obtain one)")
	}
	if c.Bridge.Port < 1 || c.Bridge.Port > 65535 {
		errs = append(errs, "bridge.port must be between 1 and 65535")
	}

	// Sync validation
	if c.Sync.IDPosition != "append" && c.Sync.IDPosition != "prepend" {
		errs = append(errs, "sync.id_position must be \"append\" or \"prepend\"")
	}
	if c.Sync.Interval < 0 {
		errs = append(errs, "sync.interval must not be negative")
	}
	for name := range c.Sync.Channels {
		if !isKnownChannel(name) {
			errs = append(errs, fmt.Sprintf("sync.channels: unknown channel %q", name))
		}
	}

	// Commands validation
	if c.Commands.FlushInterval < 1 {
		errs = append(errs, "commands.flush_interval must be positive")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database.enabled is true")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// isKnownChannel reports whether name is a recognised resource channel.
func isKnownChannel(name string) bool {
	for _, known := range ChannelNames {
		if name == known {
			return true
		}
	}
	return false
}

// Channel returns the per-channel toggles for the named channel.
// Channels absent from the configuration default to enabled with
// recycled resources excluded.
func (c *Config) Channel(name string) ChannelConfig {
	if ch, ok := c.Sync.Channels[name]; ok {
		return ch
	}
	return ChannelConfig{Enabled: true}
}

// GetSyncInterval returns the polling interval as a Duration.
func (c *Config) GetSyncInterval() time.Duration {
	return time.Duration(c.Sync.Interval) * time.Millisecond
}

// GetFlushInterval returns the command-queue flush interval as a Duration.
func (c *Config) GetFlushInterval() time.Duration {
	return time.Duration(c.Commands.FlushInterval) * time.Millisecond
}

// GetReadTimeout returns the API read timeout as a Duration.
// The receiver is the API section so the api package, which only
// holds its own section of the configuration, can reach it.
func (a APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (a APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (a APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}
