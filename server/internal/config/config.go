package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultGRPCPort           = 50051
	DefaultHTTPPort           = 8080
	DefaultReadingTTL         = 24 * time.Hour
	DefaultCatalogCacheTTL    = 5 * time.Minute
	DefaultSuppressionWindow  = time.Hour
	DefaultMaxMessageLength   = 320
	DefaultSendTimeout        = 10 * time.Second
	DefaultMaxConcurrentSends = 8
	DefaultRetention          = 30 * 24 * time.Hour
	DefaultCleanupInterval    = time.Hour
	DefaultMQTTTopic          = "soilwatch/sensors/+/readings"
	DefaultMQTTClientID       = "soilwatch-server"
	DefaultSQLitePath         = "soilwatch.db"
)

// DefaultEligibleRoles are the directory roles that receive alerts.
var DefaultEligibleRoles = []string{"admin", "manager"}

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// GRPCPort is the port the gRPC reading receiver listens on (default 50051).
	GRPCPort int `yaml:"grpc_port"`

	// HTTPPort is the port the REST API, metrics and WebSocket hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the server authenticates incoming gRPC and REST clients.
	Auth AuthConfig `yaml:"auth"`

	// Readings controls the in-memory latest-reading store.
	Readings ReadingsConfig `yaml:"readings"`

	// Catalog controls the stage-definition cache.
	Catalog CatalogConfig `yaml:"catalog"`

	// Alerts holds suppression, formatting and dispatch settings.
	Alerts AlertsConfig `yaml:"alerts"`

	// Storage selects the database holding plants, catalog, recipients and alert records.
	Storage StorageConfig `yaml:"storage"`

	// SMS configures the outbound SMS gateway.
	SMS SMSConfig `yaml:"sms"`

	// MQTT configures the sensor-changed subscription. Disabled when Broker is empty.
	MQTT MQTTConfig `yaml:"mqtt"`

	// Kafka configures the delivered-alert event stream. Disabled when Brokers is empty.
	Kafka KafkaConfig `yaml:"kafka"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the gRPC metadata key (and HTTP header name) to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// ReadingsConfig controls the latest-reading store used by manual re-checks.
type ReadingsConfig struct {
	// TTL is how long a sensor's latest reading stays available. Default: 24h.
	TTL time.Duration `yaml:"ttl"`
}

// CatalogConfig controls stage threshold caching.
type CatalogConfig struct {
	// CacheTTL is the lifetime of a resolved (plant type, stage) entry. Default: 5m.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// AlertsConfig holds alert suppression and delivery settings. Every field
// except SuppressionWindow, Retention and CleanupInterval is hot-reloadable.
type AlertsConfig struct {
	// SuppressionWindow is how long an identical alert is not re-delivered. Default: 1h.
	SuppressionWindow time.Duration `yaml:"suppression_window"`

	// MaxMessageLength bounds the SMS body in characters. Default: 320.
	MaxMessageLength int `yaml:"max_message_length"`

	// SendTimeout bounds each individual recipient send. Default: 10s.
	SendTimeout time.Duration `yaml:"send_timeout"`

	// MaxConcurrentSends caps the fan-out width of one dispatch. Default: 8.
	MaxConcurrentSends int `yaml:"max_concurrent_sends"`

	// EligibleRoles are the directory roles that receive alerts.
	EligibleRoles []string `yaml:"eligible_roles"`

	// Timezone is the IANA zone used for message timestamps. Default: UTC.
	Timezone string `yaml:"timezone"`

	// Retention is how long delivered alert records are kept. Default: 30 days.
	Retention time.Duration `yaml:"retention"`

	// CleanupInterval is how often expired alert records are deleted. Default: 1h.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// Location resolves Timezone, falling back to UTC.
func (a AlertsConfig) Location() *time.Location {
	if a.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StorageConfig selects and locates the database.
type StorageConfig struct {
	// Driver is one of: postgres | sqlite. Default: sqlite.
	Driver string `yaml:"driver"`

	// DSNEnv names the environment variable holding the postgres DSN.
	DSNEnv string `yaml:"dsn_env"`

	// Path is the SQLite database file. Default: soilwatch.db.
	Path string `yaml:"path"`
}

// DSN returns the connection string for the configured driver.
func (s StorageConfig) DSN() string {
	if s.Driver == "postgres" {
		if s.DSNEnv == "" {
			return ""
		}
		return os.Getenv(s.DSNEnv)
	}
	return s.Path
}

// SMSConfig configures the HTTP SMS gateway.
type SMSConfig struct {
	// URLEnv names the environment variable holding the gateway endpoint.
	URLEnv string `yaml:"url_env"`

	// TokenEnv names the environment variable holding the bearer token.
	TokenEnv string `yaml:"token_env"`

	// Sender is the originator shown on the handset.
	Sender string `yaml:"sender"`

	// BreakerFailures opens the circuit after this many consecutive failures. Default: 5.
	BreakerFailures uint32 `yaml:"breaker_failures"`

	// BreakerCooldown is how long the circuit stays open. Default: 30s.
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

// URL returns the gateway URL resolved from the environment.
func (s SMSConfig) URL() string {
	if s.URLEnv == "" {
		return ""
	}
	return os.Getenv(s.URLEnv)
}

// Token returns the gateway token resolved from the environment.
func (s SMSConfig) Token() string {
	if s.TokenEnv == "" {
		return ""
	}
	return os.Getenv(s.TokenEnv)
}

// MQTTConfig configures the sensor reading subscription.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883.
	Broker string `yaml:"broker"`

	// Topic is the subscription filter. Default: soilwatch/sensors/+/readings.
	Topic string `yaml:"topic"`

	// ClientID is the MQTT client identifier. Default: soilwatch-server.
	ClientID string `yaml:"client_id"`

	// Username is the literal broker username.
	Username string `yaml:"username"`

	// PasswordEnv names the environment variable holding the broker password.
	PasswordEnv string `yaml:"password_env"`
}

// Password returns the broker password resolved from the environment.
func (m MQTTConfig) Password() string {
	if m.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(m.PasswordEnv)
}

// KafkaConfig configures the delivered-alert event stream.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}
	if len(cfg.Server.Alerts.EligibleRoles) == 0 {
		cfg.Server.Alerts.EligibleRoles = append([]string(nil), DefaultEligibleRoles...)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCPort: DefaultGRPCPort,
			HTTPPort: DefaultHTTPPort,
			Readings: ReadingsConfig{TTL: DefaultReadingTTL},
			Catalog:  CatalogConfig{CacheTTL: DefaultCatalogCacheTTL},
			Alerts: AlertsConfig{
				SuppressionWindow:  DefaultSuppressionWindow,
				MaxMessageLength:   DefaultMaxMessageLength,
				SendTimeout:        DefaultSendTimeout,
				MaxConcurrentSends: DefaultMaxConcurrentSends,
				Retention:          DefaultRetention,
				CleanupInterval:    DefaultCleanupInterval,
			},
			Storage: StorageConfig{
				Driver: "sqlite",
				Path:   DefaultSQLitePath,
			},
			SMS: SMSConfig{
				BreakerFailures: 5,
				BreakerCooldown: 30 * time.Second,
			},
			MQTT: MQTTConfig{
				Topic:    DefaultMQTTTopic,
				ClientID: DefaultMQTTClientID,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.GRPCPort <= 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [1, 65535]", s.GRPCPort)
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Readings.TTL <= 0 {
		return fmt.Errorf("server.readings.ttl must be positive")
	}
	if s.Catalog.CacheTTL < 0 {
		return fmt.Errorf("server.catalog.cache_ttl must not be negative")
	}
	if err := validateAlerts(s.Alerts); err != nil {
		return err
	}
	switch s.Storage.Driver {
	case "sqlite":
		if s.Storage.Path == "" {
			return fmt.Errorf("server.storage.path is required for sqlite")
		}
	case "postgres":
		if s.Storage.DSNEnv == "" {
			return fmt.Errorf("server.storage.dsn_env is required for postgres")
		}
	default:
		return fmt.Errorf("server.storage.driver %q unknown: want postgres|sqlite", s.Storage.Driver)
	}
	if s.MQTT.Broker != "" && s.MQTT.Topic == "" {
		return fmt.Errorf("server.mqtt.topic is required when a broker is set")
	}
	if len(s.Kafka.Brokers) > 0 && s.Kafka.Topic == "" {
		return fmt.Errorf("server.kafka.topic is required when brokers are set")
	}
	return nil
}

func validateAlerts(a AlertsConfig) error {
	if a.SuppressionWindow <= 0 {
		return fmt.Errorf("server.alerts.suppression_window must be positive")
	}
	// The message must at least fit the truncation marker.
	if a.MaxMessageLength < 16 {
		return fmt.Errorf("server.alerts.max_message_length %d is below 16", a.MaxMessageLength)
	}
	if a.SendTimeout <= 0 {
		return fmt.Errorf("server.alerts.send_timeout must be positive")
	}
	if a.MaxConcurrentSends <= 0 {
		return fmt.Errorf("server.alerts.max_concurrent_sends must be positive")
	}
	for i, r := range a.EligibleRoles {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("server.alerts.eligible_roles[%d] is empty", i)
		}
	}
	if a.Timezone != "" {
		if _, err := time.LoadLocation(a.Timezone); err != nil {
			return fmt.Errorf("server.alerts.timezone %q: %w", a.Timezone, err)
		}
	}
	if a.Retention < a.SuppressionWindow {
		return fmt.Errorf("server.alerts.retention must be at least the suppression window")
	}
	if a.CleanupInterval <= 0 {
		return fmt.Errorf("server.alerts.cleanup_interval must be positive")
	}
	return nil
}
