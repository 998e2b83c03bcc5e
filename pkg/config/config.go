package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platterhq/platter/pkg/docstore"
	"github.com/platterhq/platter/pkg/observability"
	"github.com/platterhq/platter/pkg/payfast"
)

// Config holds all application configuration. It is loaded once at process
// start and injected; no package reads the environment afterwards.
type Config struct {
	Server        ServerConfig
	PayFast       payfast.Config
	Firestore     docstore.FirestoreConfig
	Audit         AuditConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration.
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

// AuditConfig holds the optional relational audit sink settings.
type AuditConfig struct {
	// PostgresURL enables the relational audit sink when set. The document
	// store sink is always on.
	PostgresURL  string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds the rate limiter backend settings.
type RedisConfig struct {
	// Addr enables the distributed rate limiter when set.
	Addr     string
	Password string
	DB       int

	RateLimitPerMinute int
}

// AuthConfig selects the bearer-token verifier.
type AuthConfig struct {
	// DevTokens maps static bearer tokens to user IDs. When non-empty the
	// static verifier is used instead of Firebase token verification.
	DevTokens map[string]string
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("PLATTER_HOST", "0.0.0.0"),
			Port:            getEnv("PLATTER_PORT", "8080"),
			ReadTimeout:     getEnvDuration("PLATTER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("PLATTER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("PLATTER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("PLATTER_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("PLATTER_HEALTH_PORT", "9090"),
		},
		PayFast: payfast.Config{
			MerchantID: getEnv("PLATTER_PAYFAST_MERCHANT_ID", ""),
			Passphrase: getEnv("PLATTER_PAYFAST_PASSPHRASE", ""),
			BaseURL:    getEnv("PLATTER_PAYFAST_BASE_URL", ""),
			Sandbox:    getEnvBool("PLATTER_PAYFAST_SANDBOX", false),
			Timeout:    getEnvDuration("PLATTER_PAYFAST_TIMEOUT", 30*time.Second),
		},
		Firestore: docstore.FirestoreConfig{
			ProjectID:       getEnv("PLATTER_FIRESTORE_PROJECT_ID", ""),
			CredentialsFile: getEnv("PLATTER_FIRESTORE_CREDENTIALS_FILE", ""),
			CredentialsJSON: getEnv("PLATTER_FIRESTORE_CREDENTIALS_JSON", ""),
		},
		Audit: AuditConfig{
			PostgresURL:  getEnv("PLATTER_AUDIT_POSTGRES_URL", ""),
			MaxOpenConns: getEnvInt("PLATTER_AUDIT_POSTGRES_MAX_CONNS", 10),
			MaxIdleConns: getEnvInt("PLATTER_AUDIT_POSTGRES_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:               getEnv("PLATTER_REDIS_ADDR", ""),
			Password:           getEnv("PLATTER_REDIS_PASSWORD", ""),
			DB:                 getEnvInt("PLATTER_REDIS_DB", 0),
			RateLimitPerMinute: getEnvInt("PLATTER_RATE_LIMIT_PER_MINUTE", 30),
		},
		Auth: AuthConfig{
			DevTokens: parseDevTokens(getEnv("PLATTER_AUTH_DEV_TOKENS", "")),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLevel(getEnv("PLATTER_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("PLATTER_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration can actually run the service.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.PayFast.MerchantID == "" {
		return fmt.Errorf("payfast merchant ID is required")
	}
	if c.PayFast.Passphrase == "" {
		return fmt.Errorf("payfast passphrase is required")
	}

	if c.Firestore.ProjectID == "" {
		return fmt.Errorf("firestore project ID is required")
	}
	if c.Firestore.CredentialsFile != "" && c.Firestore.CredentialsJSON != "" {
		return fmt.Errorf("firestore credentials file and inline JSON are mutually exclusive")
	}

	if c.Redis.RateLimitPerMinute <= 0 {
		return fmt.Errorf("rate limit per minute must be positive")
	}
	return nil
}

// parseDevTokens parses "token1:user1,token2:user2".
func parseDevTokens(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	tokens := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			tokens[parts[0]] = parts[1]
		}
	}
	if len(tokens) == 0 {
		return nil
	}
	return tokens
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
