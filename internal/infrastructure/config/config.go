package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Agora Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Alerting  AlertingConfig  `yaml:"alerting"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// ServiceConfig contains instance-specific information.
type ServiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
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
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains settings for the security-event feed socket.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// AlertingConfig contains MQTT alert fan-out settings.
// High-risk security events are published to the configured broker.
type AlertingConfig struct {
	Enabled bool             `yaml:"enabled"`
	Broker  MQTTBrokerConfig `yaml:"broker"`
	Auth    MQTTAuthConfig   `yaml:"auth"`
	QoS     int              `yaml:"qos"`
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

// MetricsConfig contains InfluxDB connection settings for decision metrics.
type MetricsConfig struct {
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT         JWTConfig        `yaml:"jwt"`
	AccessCodes AccessCodeConfig `yaml:"access_codes"`
	RateLimit   RateLimitConfig  `yaml:"rate_limit"`
}

// JWTConfig contains session and federated token settings.
type JWTConfig struct {
	Secret          string `yaml:"secret"`
	SessionTokenTTL int    `yaml:"session_token_ttl"` // minutes

	// FederatedSecret verifies tokens minted by the federated identity
	// provider. Empty disables the federated resolver.
	FederatedSecret string `yaml:"federated_secret"`
	FederatedIssuer string `yaml:"federated_issuer"`
}

// AccessCodeConfig contains access code lifecycle settings.
type AccessCodeConfig struct {
	// Length is the number of characters in a generated code.
	Length int `yaml:"length"`

	// MaxGenerateAttempts bounds the uniqueness retry loop.
	MaxGenerateAttempts int `yaml:"max_generate_attempts"`

	// DefaultExpiryHours is applied to generated codes when no explicit
	// expiry is given. 0 means codes never expire.
	DefaultExpiryHours int `yaml:"default_expiry_hours"`
}

// RateLimitConfig contains brute-force guard settings for code validation.
type RateLimitConfig struct {
	// MaxFailures is how many failed validations a source may accumulate
	// within the window before being blocked.
	MaxFailures int `yaml:"max_failures"`

	// WindowMinutes is the sliding window over which failures are counted.
	WindowMinutes int `yaml:"window_minutes"`

	// BlockMinutes is how long a source stays blocked once over the limit.
	BlockMinutes int `yaml:"block_minutes"`

	// GlobalPerSecond throttles validation attempts across all sources.
	GlobalPerSecond int `yaml:"global_per_second"`

	// GlobalBurst is the burst allowance for the global throttle.
	GlobalBurst int `yaml:"global_burst"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: AGORA_SECTION_KEY
// For example: AGORA_DATABASE_PATH, AGORA_JWT_SECRET
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
		Service: ServiceConfig{
			ID:   "agora-001",
			Name: "Agora Core",
		},
		Database: DatabaseConfig{
			Path:        "./data/agora.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws/events",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Alerting: AlertingConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "agora-core",
			},
			QoS: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				SessionTokenTTL: 15,
			},
			AccessCodes: AccessCodeConfig{
				Length:              10,
				MaxGenerateAttempts: 20,
				DefaultExpiryHours:  0,
			},
			RateLimit: RateLimitConfig{
				MaxFailures:     6,
				WindowMinutes:   60,
				BlockMinutes:    60,
				GlobalPerSecond: 20,
				GlobalBurst:     40,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: AGORA_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGORA_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("AGORA_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("AGORA_MQTT_HOST"); v != "" {
		cfg.Alerting.Broker.Host = v
	}
	if v := os.Getenv("AGORA_MQTT_USERNAME"); v != "" {
		cfg.Alerting.Auth.Username = v
	}
	if v := os.Getenv("AGORA_MQTT_PASSWORD"); v != "" {
		cfg.Alerting.Auth.Password = v
	}

	if v := os.Getenv("AGORA_METRICS_TOKEN"); v != "" {
		cfg.Metrics.Token = v
	}

	// Security - JWT secrets (IMPORTANT: always set in production)
	if v := os.Getenv("AGORA_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("AGORA_FEDERATED_SECRET"); v != "" {
		cfg.Security.JWT.FederatedSecret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Alerting.QoS < 0 || c.Alerting.QoS > 2 {
		errs = append(errs, "alerting.qos must be 0, 1, or 2")
	}

	// An empty or weak session secret would let anyone forge a principal.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set AGORA_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if c.Security.AccessCodes.Length < 6 {
		errs = append(errs, "security.access_codes.length must be at least 6")
	}
	if c.Security.AccessCodes.MaxGenerateAttempts < 1 {
		errs = append(errs, "security.access_codes.max_generate_attempts must be at least 1")
	}

	if c.Security.RateLimit.MaxFailures < 1 {
		errs = append(errs, "security.rate_limit.max_failures must be at least 1")
	}
	if c.Security.RateLimit.WindowMinutes < 1 {
		errs = append(errs, "security.rate_limit.window_minutes must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// RateLimitWindow returns the brute-force counting window as a Duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.Security.RateLimit.WindowMinutes) * time.Minute
}

// RateLimitBlock returns the brute-force block duration.
func (c *Config) RateLimitBlock() time.Duration {
	return time.Duration(c.Security.RateLimit.BlockMinutes) * time.Minute
}
