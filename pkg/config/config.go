package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cohortd/cohort/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Token store configuration
	TokenStore TokenStoreConfig

	// OIDC client registrations, one per principal kind
	OIDC OIDCConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	PostgresURL string
	MaxConns    int
	ConnTimeout time.Duration
}

// TokenStoreConfig holds Redis settings for the token bundle store. An empty
// RedisURL selects the in-memory store, suitable only for single-node runs.
type TokenStoreConfig struct {
	RedisURL      string
	RedisPassword string
	RedisDB       int
}

// OIDCClientConfig holds one OIDC client registration
type OIDCClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// OIDCConfig holds the shared issuer and the per-kind client registrations
type OIDCConfig struct {
	IssuerURL   string
	Researcher  OIDCClientConfig
	Participant OIDCClientConfig
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		TokenStore:    loadTokenStoreConfig(),
		OIDC:          loadOIDCConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("COHORT_HOST", "0.0.0.0"),
		Port:            getEnv("COHORT_PORT", "8080"),
		ReadTimeout:     getEnvDuration("COHORT_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("COHORT_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("COHORT_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("COHORT_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("COHORT_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		PostgresURL: getEnv("COHORT_POSTGRES_URL", ""),
		MaxConns:    getEnvInt("COHORT_POSTGRES_MAX_CONNS", 20),
		ConnTimeout: getEnvDuration("COHORT_POSTGRES_TIMEOUT", 5*time.Second),
	}
}

// loadTokenStoreConfig loads token store configuration from environment
func loadTokenStoreConfig() TokenStoreConfig {
	return TokenStoreConfig{
		RedisURL:      getEnv("COHORT_REDIS_URL", ""),
		RedisPassword: getEnv("COHORT_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("COHORT_REDIS_DB", 0),
	}
}

// loadOIDCConfig loads OIDC client registrations from environment
func loadOIDCConfig() OIDCConfig {
	return OIDCConfig{
		IssuerURL: getEnv("COHORT_OIDC_ISSUER_URL", ""),
		Researcher: OIDCClientConfig{
			ClientID:     getEnv("COHORT_RESEARCHER_CLIENT_ID", ""),
			ClientSecret: getEnv("COHORT_RESEARCHER_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("COHORT_RESEARCHER_REDIRECT_URL", ""),
		},
		Participant: OIDCClientConfig{
			ClientID:     getEnv("COHORT_PARTICIPANT_CLIENT_ID", ""),
			ClientSecret: getEnv("COHORT_PARTICIPANT_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("COHORT_PARTICIPANT_REDIRECT_URL", ""),
		},
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("COHORT_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("COHORT_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
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

	// Validate database config
	if c.Database.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	// Validate OIDC config
	if c.OIDC.IssuerURL == "" {
		return fmt.Errorf("OIDC issuer URL is required")
	}
	if err := c.OIDC.Researcher.validate("researcher"); err != nil {
		return err
	}
	if err := c.OIDC.Participant.validate("participant"); err != nil {
		return err
	}

	return nil
}

func (c OIDCClientConfig) validate(kind string) error {
	if c.ClientID == "" {
		return fmt.Errorf("%s OIDC client ID is required", kind)
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("%s OIDC redirect URL is required", kind)
	}
	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
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
