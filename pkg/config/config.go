package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/stockroom/pkg/auth"
	"github.com/platinummonkey/stockroom/pkg/observability"
)

// ConfigFileEnv names the optional YAML base file
const ConfigFileEnv = "STOCKROOM_CONFIG_FILE"

// Backend names
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Cookie security modes
const (
	SecureAuto   = "auto"
	SecureAlways = "always"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	OIDC          OIDCConfig          `yaml:"oidc"`
	Session       SessionConfig       `yaml:"session"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Audit         AuditConfig         `yaml:"audit"`
	RateLimit     RateLimitConfig     `yaml:"rateLimit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"healthPort"`

	// TrustProxy honours X-Forwarded-For and X-Forwarded-Proto
	TrustProxy bool `yaml:"trustProxy"`
}

// OIDCConfig holds the identity provider registration
type OIDCConfig struct {
	IssuerURL    string        `yaml:"issuerUrl"`
	ClientID     string        `yaml:"clientId"`
	ClientSecret string        `yaml:"clientSecret"`
	RedirectURL  string        `yaml:"redirectUrl"`
	Scopes       []string      `yaml:"scopes"`
	HTTPTimeout  time.Duration `yaml:"httpTimeout"`
}

// SessionConfig selects the session backend and cookie behaviour
type SessionConfig struct {
	Backend    string `yaml:"backend"`
	CookieName string `yaml:"cookieName"`
	// Secure is "auto" (Secure on HTTPS requests) or "always"
	Secure string `yaml:"secure"`
	// CleanupSchedule is a cron spec for purging expired sessions
	CleanupSchedule string `yaml:"cleanupSchedule"`
}

// DatabaseConfig holds the PostgreSQL connection
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// RedisConfig holds the Redis connection
type RedisConfig struct {
	URL string `yaml:"url"`
}

// AuditConfig selects the audit sink
type AuditConfig struct {
	Backend    string `yaml:"backend"`
	BufferSize int    `yaml:"bufferSize"`
}

// RateLimitConfig throttles the login endpoints per client address
type RateLimitConfig struct {
	LoginRequestsPerMinute int `yaml:"loginRequestsPerMinute"`
	LoginBurst             int `yaml:"loginBurst"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"logLevel"`
	MetricsEnabled bool   `yaml:"metricsEnabled"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otelEnabled"`
	OTelEndpoint       string `yaml:"otelEndpoint"`
	OTelServiceName    string `yaml:"otelServiceName"`
	OTelServiceVersion string `yaml:"otelServiceVersion"`
	OTelInsecure       bool   `yaml:"otelInsecure"` // Use insecure gRPC connection
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel converts the settings for observability.InitOTel
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
	}
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		OIDC: OIDCConfig{
			Scopes:      []string{"openid", "profile", "email"},
			HTTPTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			Backend:         BackendMemory,
			CookieName:      "stockroom.sid",
			Secure:          SecureAuto,
			CleanupSchedule: "*/15 * * * *",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Audit: AuditConfig{
			Backend:    BackendMemory,
			BufferSize: 1024,
		},
		RateLimit: RateLimitConfig{
			LoginRequestsPerMinute: 20,
			LoginBurst:             10,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "stockroom",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// LoadConfig loads configuration from the optional YAML file named by
// STOCKROOM_CONFIG_FILE, then applies STOCKROOM_* environment variables on top
func LoadConfig() (*Config, error) {
	return load(os.Getenv(ConfigFileEnv))
}

func load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields whose environment variable is set
func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("STOCKROOM_HOST", s.Host)
	s.Port = getEnv("STOCKROOM_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("STOCKROOM_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("STOCKROOM_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("STOCKROOM_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("STOCKROOM_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("STOCKROOM_HEALTH_PORT", s.HealthPort)
	s.TrustProxy = getEnvBool("STOCKROOM_TRUST_PROXY", s.TrustProxy)

	o := &c.OIDC
	o.IssuerURL = getEnv("STOCKROOM_OIDC_ISSUER_URL", o.IssuerURL)
	o.ClientID = getEnv("STOCKROOM_OIDC_CLIENT_ID", o.ClientID)
	o.ClientSecret = getEnv("STOCKROOM_OIDC_CLIENT_SECRET", o.ClientSecret)
	o.RedirectURL = getEnv("STOCKROOM_OIDC_REDIRECT_URL", o.RedirectURL)
	o.Scopes = getEnvList("STOCKROOM_OIDC_SCOPES", o.Scopes)
	o.HTTPTimeout = getEnvDuration("STOCKROOM_OIDC_HTTP_TIMEOUT", o.HTTPTimeout)

	ss := &c.Session
	ss.Backend = strings.ToLower(getEnv("STOCKROOM_SESSION_BACKEND", ss.Backend))
	ss.CookieName = getEnv("STOCKROOM_SESSION_COOKIE_NAME", ss.CookieName)
	ss.Secure = strings.ToLower(getEnv("STOCKROOM_SESSION_SECURE", ss.Secure))
	ss.CleanupSchedule = getEnv("STOCKROOM_SESSION_CLEANUP_SCHEDULE", ss.CleanupSchedule)

	db := &c.Database
	db.URL = getEnv("STOCKROOM_POSTGRES_URL", db.URL)
	db.MaxOpenConns = getEnvInt("STOCKROOM_POSTGRES_MAX_OPEN_CONNS", db.MaxOpenConns)
	db.MaxIdleConns = getEnvInt("STOCKROOM_POSTGRES_MAX_IDLE_CONNS", db.MaxIdleConns)
	db.ConnMaxLifetime = getEnvDuration("STOCKROOM_POSTGRES_CONN_MAX_LIFETIME", db.ConnMaxLifetime)

	c.Redis.URL = getEnv("STOCKROOM_REDIS_URL", c.Redis.URL)

	c.Audit.Backend = strings.ToLower(getEnv("STOCKROOM_AUDIT_BACKEND", c.Audit.Backend))
	c.Audit.BufferSize = getEnvInt("STOCKROOM_AUDIT_BUFFER_SIZE", c.Audit.BufferSize)

	c.RateLimit.LoginRequestsPerMinute = getEnvInt("STOCKROOM_LOGIN_RATE_LIMIT", c.RateLimit.LoginRequestsPerMinute)
	c.RateLimit.LoginBurst = getEnvInt("STOCKROOM_LOGIN_RATE_BURST", c.RateLimit.LoginBurst)

	ob := &c.Observability
	ob.LogLevel = getEnv("STOCKROOM_LOG_LEVEL", ob.LogLevel)
	ob.MetricsEnabled = getEnvBool("STOCKROOM_METRICS_ENABLED", ob.MetricsEnabled)
	ob.OTelEnabled = getEnvBool("STOCKROOM_OTEL_ENABLED", ob.OTelEnabled)
	ob.OTelEndpoint = getEnv("STOCKROOM_OTEL_ENDPOINT", ob.OTelEndpoint)
	ob.OTelServiceName = getEnv("STOCKROOM_OTEL_SERVICE_NAME", ob.OTelServiceName)
	ob.OTelServiceVersion = getEnv("STOCKROOM_OTEL_SERVICE_VERSION", ob.OTelServiceVersion)
	ob.OTelInsecure = getEnvBool("STOCKROOM_OTEL_INSECURE", ob.OTelInsecure)
}

// Validate checks if the configuration is valid. Missing identity provider
// settings are reported as auth.ErrConfiguration.
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if err := c.OIDC.validate(); err != nil {
		return err
	}

	switch c.Session.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis URL is required for redis sessions")
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("postgres URL is required for postgres sessions")
		}
	default:
		return fmt.Errorf("invalid session backend: %s (must be memory, redis, or postgres)", c.Session.Backend)
	}
	if c.Session.Secure != SecureAuto && c.Session.Secure != SecureAlways {
		return fmt.Errorf("invalid session secure mode: %s (must be auto or always)", c.Session.Secure)
	}
	if _, err := cron.ParseStandard(c.Session.CleanupSchedule); err != nil {
		return fmt.Errorf("invalid session cleanup schedule %q: %w", c.Session.CleanupSchedule, err)
	}

	switch c.Audit.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("postgres URL is required for the postgres audit log")
		}
	default:
		return fmt.Errorf("invalid audit backend: %s (must be memory or postgres)", c.Audit.Backend)
	}
	if c.Audit.BufferSize <= 0 {
		return fmt.Errorf("audit buffer size must be positive")
	}

	if c.RateLimit.LoginRequestsPerMinute <= 0 || c.RateLimit.LoginBurst <= 0 {
		return fmt.Errorf("login rate limit and burst must be positive")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

func (o OIDCConfig) validate() error {
	switch {
	case o.IssuerURL == "":
		return fmt.Errorf("%w: STOCKROOM_OIDC_ISSUER_URL is required", auth.ErrConfiguration)
	case o.ClientID == "":
		return fmt.Errorf("%w: STOCKROOM_OIDC_CLIENT_ID is required", auth.ErrConfiguration)
	case o.RedirectURL == "":
		return fmt.Errorf("%w: STOCKROOM_OIDC_REDIRECT_URL is required", auth.ErrConfiguration)
	}
	return nil
}

// UsesPostgres reports whether any store needs the database
func (c *Config) UsesPostgres() bool {
	return c.Session.Backend == BackendPostgres || c.Audit.Backend == BackendPostgres || c.Database.URL != ""
}

// UsesRedis reports whether the session store needs Redis
func (c *Config) UsesRedis() bool {
	return c.Session.Backend == BackendRedis
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma or space separated variable
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	fields := strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) == 0 {
		return defaultValue
	}
	return fields
}
