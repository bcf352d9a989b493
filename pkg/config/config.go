package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/seatsync/seatsync/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Ledger        LedgerConfig
	Email         EmailConfig
	Invites       InviteConfig
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
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnTimeout  time.Duration
}

// RedisConfig holds Redis configuration for the distributed rate limiter.
// Rate limiting is skipped when Addr is empty.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LedgerConfig holds subscription ledger (Stripe) configuration.
// When APIKey is empty the server falls back to the in-memory ledger,
// which is only useful for local development.
type LedgerConfig struct {
	APIKey             string
	MonthlySeatPriceID string
	AnnualSeatPriceID  string
	CallTimeout        time.Duration
}

// EmailConfig holds invite email delivery configuration.
// Invites are logged instead of sent when SendGridAPIKey is empty.
type EmailConfig struct {
	SendGridAPIKey string
	FromEmail      string
	FromName       string
	// BaseURL is the public address invite links point at
	BaseURL string
}

// InviteConfig holds invitation lifecycle settings
type InviteConfig struct {
	TTL time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SEATSYNC_HOST", "0.0.0.0"),
			Port:            getEnv("SEATSYNC_PORT", "8080"),
			ReadTimeout:     getEnvDuration("SEATSYNC_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SEATSYNC_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SEATSYNC_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SEATSYNC_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:          getEnv("SEATSYNC_POSTGRES_URL", ""),
			MaxOpenConns: getEnvInt("SEATSYNC_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("SEATSYNC_POSTGRES_IDLE_CONNS", 5),
			ConnTimeout:  getEnvDuration("SEATSYNC_POSTGRES_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("SEATSYNC_REDIS_ADDR", ""),
			Password: getEnv("SEATSYNC_REDIS_PASSWORD", ""),
			DB:       getEnvInt("SEATSYNC_REDIS_DB", 0),
		},
		Ledger: LedgerConfig{
			APIKey:             getEnv("SEATSYNC_STRIPE_API_KEY", ""),
			MonthlySeatPriceID: getEnv("SEATSYNC_SEAT_PRICE_MONTHLY", ""),
			AnnualSeatPriceID:  getEnv("SEATSYNC_SEAT_PRICE_ANNUAL", ""),
			CallTimeout:        getEnvDuration("SEATSYNC_LEDGER_TIMEOUT", 10*time.Second),
		},
		Email: EmailConfig{
			SendGridAPIKey: getEnv("SEATSYNC_SENDGRID_API_KEY", ""),
			FromEmail:      getEnv("SEATSYNC_EMAIL_FROM", "noreply@seatsync.dev"),
			FromName:       getEnv("SEATSYNC_EMAIL_FROM_NAME", "Seatsync"),
			BaseURL:        getEnv("SEATSYNC_BASE_URL", "http://localhost:8080"),
		},
		Invites: InviteConfig{
			TTL: getEnvDuration("SEATSYNC_INVITE_TTL", 7*24*time.Hour),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLogLevel(strings.ToLower(getEnv("SEATSYNC_LOG_LEVEL", "info"))),
			MetricsEnabled: getEnvBool("SEATSYNC_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Ledger.APIKey != "" {
		if c.Ledger.MonthlySeatPriceID == "" || c.Ledger.AnnualSeatPriceID == "" {
			return fmt.Errorf("seat price IDs are required when a Stripe API key is configured")
		}
	}
	if c.Invites.TTL <= 0 {
		return fmt.Errorf("invite TTL must be positive")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return strings.ToLower(val) == "true"
	}
	return defaultVal
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
