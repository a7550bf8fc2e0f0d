package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultScrapeInterval = 30 * time.Second
	DefaultHeartbeat      = 15 * time.Minute
	DefaultBufferSize     = 1000
	DefaultCertCheck      = 24 * time.Hour
)

// Config is the agent configuration. The `server:` key in the same file is
// ignored.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ServerEndpoint is the gRPC address of soilwatch-server (host:port).
	ServerEndpoint string `yaml:"server_endpoint"`

	// ScrapeInterval controls how often each gateway is polled.
	ScrapeInterval time.Duration `yaml:"scrape_interval"`

	// Heartbeat re-ships an unchanged reading once this much time has passed,
	// so the server's latest-reading store does not expire a quiet sensor.
	Heartbeat time.Duration `yaml:"heartbeat"`

	// BufferSize is the maximum number of readings held in memory when
	// the server is unreachable.
	BufferSize int `yaml:"buffer_size"`

	// CertCheckInterval controls how often HTTPS gateway certificates are
	// inspected for expiry. Zero disables the check.
	CertCheckInterval time.Duration `yaml:"cert_check_interval"`

	// Gateways is the list of field gateways exposing sensor metrics.
	Gateways []Gateway `yaml:"gateways"`

	// ServerAuth configures how the agent authenticates to soilwatch-server.
	// Supports mtls | apikey | none.
	ServerAuth AuthConfig `yaml:"server_auth"`
}

// Gateway describes one field gateway exposing soil_* metrics in the
// Prometheus text format, one series per sensor_id label.
type Gateway struct {
	// ID is a unique, human-readable identifier for this gateway.
	ID string `yaml:"id"`

	// Endpoint is the full URL of the gateway's metrics endpoint.
	Endpoint string `yaml:"endpoint"`

	// Auth configures how the agent authenticates to this gateway.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies an authentication mode.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the HTTP header (or gRPC metadata key) carrying the API key.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the bearer token.
	TokenEnv string `yaml:"token_env"`

	// Username is the literal basic-auth username.
	Username string `yaml:"username"`
	// PasswordEnv is the name of the environment variable that holds the password.
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// EffectiveHeader returns Header, or "x-api-key" when unset.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// TLSConfig holds per-gateway TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			ScrapeInterval:    DefaultScrapeInterval,
			Heartbeat:         DefaultHeartbeat,
			BufferSize:        DefaultBufferSize,
			CertCheckInterval: DefaultCertCheck,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.ServerEndpoint == "" {
		return fmt.Errorf("agent.server_endpoint is required")
	}
	if a.ScrapeInterval <= 0 {
		return fmt.Errorf("agent.scrape_interval must be positive")
	}
	if a.Heartbeat < a.ScrapeInterval {
		return fmt.Errorf("agent.heartbeat must be at least the scrape interval")
	}
	if a.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}
	if a.CertCheckInterval < 0 {
		return fmt.Errorf("agent.cert_check_interval must not be negative")
	}
	switch a.ServerAuth.Mode {
	case "mtls", "apikey", "none", "":
	default:
		return fmt.Errorf("agent.server_auth.mode %q unknown: want mtls|apikey|none", a.ServerAuth.Mode)
	}

	seen := make(map[string]bool, len(a.Gateways))
	for i, gw := range a.Gateways {
		if gw.ID == "" {
			return fmt.Errorf("gateways[%d]: id is required", i)
		}
		if seen[gw.ID] {
			return fmt.Errorf("gateways[%d]: duplicate id %q", i, gw.ID)
		}
		seen[gw.ID] = true
		if gw.Endpoint == "" {
			return fmt.Errorf("gateways[%d] %q: endpoint is required", i, gw.ID)
		}
		switch gw.Auth.Mode {
		case "mtls", "apikey", "bearer", "basic", "none", "":
		default:
			return fmt.Errorf("gateways[%d] %q: unknown auth mode %q", i, gw.ID, gw.Auth.Mode)
		}
		if gw.Auth.Mode == "apikey" && gw.Auth.Header == "" {
			return fmt.Errorf("gateways[%d] %q: auth.header is required for apikey", i, gw.ID)
		}
	}
	return nil
}
