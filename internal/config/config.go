// Package config loads and validates the dandi service configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the DANDI_ prefix (e.g., DANDI_DATABASE_HOST
// overrides database.host in the YAML), so the same binary runs with a config.yaml
// locally and with pure environment variables in containers.
//
// The LLM and GitHub credentials may also be given as GEMINI_API_KEY, OPENAI_API_KEY
// and GITHUB_TOKEN, the names their upstream SDKs and CLIs already use.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	GitHub    GitHubConfig    `mapstructure:"github"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// RedisConfig holds the connection settings for the shared rate-limit store.
// Only used when security.rate_limiting.backend is "redis".
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GitHubConfig holds the content-hosting API settings.
type GitHubConfig struct {
	// APIURL is the REST API base (repository info, releases, tags).
	APIURL string `mapstructure:"api_url"`
	// RawURL is the raw file content base used for README retrieval.
	RawURL string `mapstructure:"raw_url"`
	// Token is optional; unauthenticated requests work but get a lower rate limit.
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
	// CacheSize and CacheTTL bound the in-process repository info cache.
	CacheSize int           `mapstructure:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// LLMConfig holds the structured-completion provider settings.
type LLMConfig struct {
	// Provider is "gemini" or "openai" (any OpenAI-compatible chat completions API).
	Provider       string        `mapstructure:"provider"`
	Model          string        `mapstructure:"model"`
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Temperature    float64       `mapstructure:"temperature"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxReadmeChars int           `mapstructure:"max_readme_chars"`
}

// AnalysisConfig selects the pipeline variant.
type AnalysisConfig struct {
	// WithMetadata adds stars, latest_version, website and license to the response.
	WithMetadata bool `mapstructure:"with_metadata"`
	// ScopeToOwner only accepts keys owned by the authenticated session principal.
	ScopeToOwner bool `mapstructure:"scope_to_owner"`
	// UsageTimeout bounds the background usage increment.
	UsageTimeout time.Duration `mapstructure:"usage_timeout"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	APIKeys APIKeyConfig  `mapstructure:"api_keys"`
	Session SessionConfig `mapstructure:"session"`
}

// APIKeyConfig holds API key issuance configuration
type APIKeyConfig struct {
	Prefix              string `mapstructure:"prefix"`
	DefaultMonthlyLimit int    `mapstructure:"default_monthly_limit"`
}

// SessionConfig holds the session token settings used by the key management API.
// The signing secret itself is read from DANDI_JWT_SECRET.
type SessionConfig struct {
	Expiry time.Duration `mapstructure:"expiry"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
	// Backend is "memory" (per process) or "redis" (shared across replicas).
	Backend string `mapstructure:"backend"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled     bool            `mapstructure:"enabled"`
	ServiceName string          `mapstructure:"service_name"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Profiling   ProfilingConfig `mapstructure:"profiling"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// ProfilingConfig holds profiling configuration
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// JobsConfig holds background job settings
type JobsConfig struct {
	// QuotaMonitorInterval controls how often exhausted keys are counted; 0 disables the job.
	QuotaMonitorInterval time.Duration `mapstructure:"quota_monitor_interval"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
// viper.BindEnv only errors when called with zero keys; since every key here is a non-empty
// hardcoded string, any error indicates a programming bug and is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.read_timeout",
		"server.write_timeout",

		// Redis
		"redis.addr",
		"redis.password",
		"redis.db",

		// GitHub
		"github.api_url",
		"github.raw_url",
		"github.timeout",
		"github.cache_size",
		"github.cache_ttl",

		// LLM
		"llm.provider",
		"llm.model",
		"llm.base_url",
		"llm.temperature",
		"llm.timeout",
		"llm.max_readme_chars",

		// Analysis
		"analysis.with_metadata",
		"analysis.scope_to_owner",
		"analysis.usage_timeout",

		// Auth
		"auth.api_keys.prefix",
		"auth.api_keys.default_monthly_limit",
		"auth.session.expiry",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.rate_limiting.backend",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.enabled",
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
		"telemetry.profiling.enabled",
		"telemetry.profiling.port",

		// Jobs
		"jobs.quota_monitor_interval",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}

	// Credentials also honour the names the upstream tooling uses.
	aliases := map[string][]string{
		"github.token": {"DANDI_GITHUB_TOKEN", "GITHUB_TOKEN"},
		"llm.api_key":  {"DANDI_LLM_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY"},
	}
	for key, envs := range aliases {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/dandi")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("DANDI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.GitHub.Token = expandEnv(cfg.GitHub.Token)
	cfg.LLM.APIKey = expandEnv(cfg.LLM.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "dandi")
	v.SetDefault("database.user", "dandi")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// GitHub defaults
	v.SetDefault("github.api_url", "https://api.github.com")
	v.SetDefault("github.raw_url", "https://raw.githubusercontent.com")
	v.SetDefault("github.timeout", "10s")
	v.SetDefault("github.cache_size", 512)
	v.SetDefault("github.cache_ttl", "5m")

	// LLM defaults
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.timeout", "10s")
	v.SetDefault("llm.max_readme_chars", 3000)

	// Analysis defaults
	v.SetDefault("analysis.with_metadata", true)
	v.SetDefault("analysis.scope_to_owner", false)
	v.SetDefault("analysis.usage_timeout", "5s")

	// Auth defaults
	v.SetDefault("auth.api_keys.prefix", "dandi-dev-")
	v.SetDefault("auth.api_keys.default_monthly_limit", 1000)
	v.SetDefault("auth.session.expiry", "24h")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 60)
	v.SetDefault("security.rate_limiting.burst", 10)
	v.SetDefault("security.rate_limiting.backend", "memory")
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "dandi")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
	v.SetDefault("telemetry.profiling.enabled", false)
	v.SetDefault("telemetry.profiling.port", 6060)

	// Jobs defaults
	v.SetDefault("jobs.quota_monitor_interval", "5m")
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	if c.GitHub.APIURL == "" {
		return fmt.Errorf("github.api_url is required")
	}
	if c.GitHub.RawURL == "" {
		return fmt.Errorf("github.raw_url is required")
	}
	if c.GitHub.Timeout <= 0 {
		return fmt.Errorf("github.timeout must be positive")
	}

	validProviders := map[string]bool{"gemini": true, "openai": true}
	if !validProviders[c.LLM.Provider] {
		return fmt.Errorf("invalid llm provider: %s (must be gemini or openai)", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.MaxReadmeChars <= 0 {
		return fmt.Errorf("llm.max_readme_chars must be positive")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("invalid llm temperature: %v (must be between 0 and 2)", c.LLM.Temperature)
	}

	if c.Auth.APIKeys.Prefix == "" {
		return fmt.Errorf("auth.api_keys.prefix is required")
	}
	if c.Auth.APIKeys.DefaultMonthlyLimit < 0 {
		return fmt.Errorf("auth.api_keys.default_monthly_limit must not be negative")
	}

	if c.Security.RateLimiting.Enabled {
		validBackends := map[string]bool{"memory": true, "redis": true}
		if !validBackends[c.Security.RateLimiting.Backend] {
			return fmt.Errorf("invalid rate limiting backend: %s (must be memory or redis)", c.Security.RateLimiting.Backend)
		}
		if c.Security.RateLimiting.Backend == "redis" && c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when the redis rate limiting backend is used")
		}
	}

	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
