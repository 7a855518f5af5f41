package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for lifxd.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	LIFX      LIFXConfig      `yaml:"lifx"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	MDNS      MDNSConfig      `yaml:"mdns"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig identifies this installation.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// LIFXConfig contains LAN protocol settings.
type LIFXConfig struct {
	// BindPort is the local UDP port. 0 picks an ephemeral port.
	BindPort int `yaml:"bind_port"`

	// DevicePort is the port devices listen on. Default: 56700
	DevicePort int `yaml:"device_port"`

	// EnableLegacy opens a second, receive-only socket bound to the device
	// port for firmware that replies there instead of to the sender.
	EnableLegacy bool `yaml:"enable_legacy"`

	// BroadcastAddress is the discovery destination. Default: 255.255.255.255
	BroadcastAddress string `yaml:"broadcast_address"`

	// SourceID identifies this client in every header. 0 picks a random value.
	SourceID uint32 `yaml:"source_id"`

	// TickInterval is the discovery and polling period in seconds. Default: 5
	TickInterval int `yaml:"tick_interval"`

	// CorrelationTimeoutMS is the wait per send attempt. Default: 100
	CorrelationTimeoutMS int `yaml:"correlation_timeout_ms"`

	// Attempts is the total number of sends per request. Default: 3
	Attempts int `yaml:"attempts"`

	// ReconnectDelay is the socket rebind delay in seconds. Default: 2
	ReconnectDelay int `yaml:"reconnect_delay"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays prunes history older than this. 0 keeps everything.
	RetentionDays int `yaml:"retention_days"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// BridgeConfig controls the MQTT bridge.
type BridgeConfig struct {
	// TopicPrefix roots every bridge topic. Default: "graylogic"
	TopicPrefix string `yaml:"topic_prefix"`

	// HealthInterval is the health publish period in seconds. Default: 30
	HealthInterval int `yaml:"health_interval"`

	// CommandTimeoutMS bounds each device command. Default: 2000
	CommandTimeoutMS int `yaml:"command_timeout_ms"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig controls the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// MDNSConfig controls service advertisement of the API.
type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LIFXD_SECTION_KEY
// For example: LIFXD_DATABASE_PATH, LIFXD_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file. Empty means defaults only.
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "lifxd-001",
			Name: "lifxd",
		},
		LIFX: LIFXConfig{
			DevicePort:           56700, //nolint:mnd // LIFX LAN port
			BroadcastAddress:     "255.255.255.255",
			TickInterval:         5,   //nolint:mnd
			CorrelationTimeoutMS: 100, //nolint:mnd
			Attempts:             3,   //nolint:mnd
			ReconnectDelay:       2,   //nolint:mnd
		},
		Database: DatabaseConfig{
			Enabled:       true,
			Path:          "./data/lifxd.db",
			WALMode:       true,
			BusyTimeout:   5,  //nolint:mnd
			RetentionDays: 30, //nolint:mnd
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883, //nolint:mnd
				ClientID: "lifxd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60, //nolint:mnd
			},
		},
		Bridge: BridgeConfig{
			TopicPrefix:      "graylogic",
			HealthInterval:   30,   //nolint:mnd
			CommandTimeoutMS: 2000, //nolint:mnd
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090, //nolint:mnd
			Timeouts: APITimeoutConfig{
				Read:  30, //nolint:mnd
				Write: 30, //nolint:mnd
				Idle:  60, //nolint:mnd
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192, //nolint:mnd
			PingInterval:   30,   //nolint:mnd
			PongTimeout:    10,   //nolint:mnd
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,  //nolint:mnd
			FlushInterval: 1000, //nolint:mnd
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "lifxd",
		},
		MDNS: MDNSConfig{
			Instance: "lifxd",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LIFXD_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// LIFX
	if v := os.Getenv("LIFXD_LIFX_BROADCAST_ADDRESS"); v != "" {
		cfg.LIFX.BroadcastAddress = v
	}
	if v, ok := envInt("LIFXD_LIFX_BIND_PORT"); ok {
		cfg.LIFX.BindPort = v
	}

	// Database
	if v := os.Getenv("LIFXD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("LIFXD_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LIFXD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LIFXD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("LIFXD_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v, ok := envInt("LIFXD_API_PORT"); ok {
		cfg.API.Port = v
	}

	// InfluxDB
	if v := os.Getenv("LIFXD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("LIFXD_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// LIFX validation
	if c.LIFX.BindPort < 0 || c.LIFX.BindPort > 65535 {
		errs = append(errs, "lifx.bind_port must be between 0 and 65535")
	}
	if c.LIFX.DevicePort < 1 || c.LIFX.DevicePort > 65535 {
		errs = append(errs, "lifx.device_port must be between 1 and 65535")
	}
	if ip := net.ParseIP(c.LIFX.BroadcastAddress); ip == nil || ip.To4() == nil {
		errs = append(errs, "lifx.broadcast_address must be an IPv4 address")
	}
	if c.LIFX.TickInterval < 1 {
		errs = append(errs, "lifx.tick_interval must be at least 1 second")
	}
	if c.LIFX.CorrelationTimeoutMS < 1 {
		errs = append(errs, "lifx.correlation_timeout_ms must be positive")
	}
	if c.LIFX.Attempts < 1 {
		errs = append(errs, "lifx.attempts must be at least 1")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.Bridge.TopicPrefix == "" {
		errs = append(errs, "bridge.topic_prefix is required when mqtt is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if c.MDNS.Enabled && !c.API.Enabled {
		errs = append(errs, "mdns advertises the api and requires api.enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetTickInterval returns the discovery and polling period.
func (c *Config) GetTickInterval() time.Duration {
	return time.Duration(c.LIFX.TickInterval) * time.Second
}

// GetCorrelationTimeout returns the per-attempt wait.
func (c *Config) GetCorrelationTimeout() time.Duration {
	return time.Duration(c.LIFX.CorrelationTimeoutMS) * time.Millisecond
}

// GetReconnectDelay returns the socket rebind delay.
func (c *Config) GetReconnectDelay() time.Duration {
	return time.Duration(c.LIFX.ReconnectDelay) * time.Second
}

// GetBroadcastIP returns the parsed discovery address.
func (c *Config) GetBroadcastIP() net.IP {
	return net.ParseIP(c.LIFX.BroadcastAddress).To4()
}

// GetCommandTimeout returns the bridge per-command deadline.
func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.Bridge.CommandTimeoutMS) * time.Millisecond
}

// GetHealthInterval returns the bridge health publish period.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
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

// GetRetention returns how long history rows are kept. 0 keeps everything.
func (c *Config) GetRetention() time.Duration {
	return time.Duration(c.Database.RetentionDays) * 24 * time.Hour //nolint:mnd // hours per day
}
