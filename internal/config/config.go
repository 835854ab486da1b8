package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve in minimal containers

	"github.com/joho/godotenv"

	"github.com/selfieapp/selfie/internal/validator"
)

var (
	ErrMissingConfig    = errors.New("missing required configuration")
	ErrInvalidConfig    = errors.New("invalid configuration value")
	ErrTokenSecretSize  = errors.New("token secret must be at least 32 characters")
	ErrValidationFailed = errors.New("configuration validation failed")
)

// Environment represents the deployment environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

const defaultAllowedOrigins = "http://localhost:3000,http://localhost:5173,http://127.0.0.1:3000,http://127.0.0.1:5173"

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Security     SecurityConfig
	Database     DatabaseConfig
	Calendar     CalendarConfig
	RateLimiting RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           int
	Environment    Environment
	LogLevel       string
	AllowedOrigins []string
}

// SecurityConfig holds bearer token configuration.
type SecurityConfig struct {
	TokenSecret string
	TokenMaxAge time.Duration
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string
}

// CalendarConfig holds the recurrence engine settings.
type CalendarConfig struct {
	Location            *time.Location
	LegacyHorizonMonths int
	MaxOccurrences      int
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// Load loads configuration from environment variables.
// It attempts to load from .env file first, but continues if not found.
func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional

	cfg := &Config{}

	// Server configuration
	port, err := getEnvInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%w: PORT: %w", ErrInvalidConfig, err)
	}
	cfg.Server.Port = port
	cfg.Server.Environment = Environment(strings.ToLower(getEnv("ENVIRONMENT", "production")))
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.Server.AllowedOrigins = splitList(getEnv("ALLOWED_ORIGINS", defaultAllowedOrigins))

	// Security configuration
	cfg.Security.TokenSecret = getEnvRequired("TOKEN_SECRET")
	if cfg.Security.TokenSecret != "" && len(cfg.Security.TokenSecret) < 32 {
		return nil, ErrTokenSecretSize
	}

	maxAge, err := getEnvInt("TOKEN_MAX_AGE_SECS", 604800)
	if err != nil {
		return nil, fmt.Errorf("%w: TOKEN_MAX_AGE_SECS: %w", ErrInvalidConfig, err)
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("%w: TOKEN_MAX_AGE_SECS must be positive", ErrInvalidConfig)
	}
	cfg.Security.TokenMaxAge = time.Duration(maxAge) * time.Second

	// Database configuration
	cfg.Database.Path = getEnv("DATABASE_PATH", "./data/selfie.db")

	// Calendar configuration
	loc, err := time.LoadLocation(getEnv("TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("%w: TIMEZONE: %w", ErrInvalidConfig, err)
	}
	cfg.Calendar.Location = loc

	horizon, err := getEnvInt("LEGACY_HORIZON_MONTHS", 3)
	if err != nil {
		return nil, fmt.Errorf("%w: LEGACY_HORIZON_MONTHS: %w", ErrInvalidConfig, err)
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("%w: LEGACY_HORIZON_MONTHS must be positive", ErrInvalidConfig)
	}
	cfg.Calendar.LegacyHorizonMonths = horizon

	maxOccurrences, err := getEnvInt("MAX_OCCURRENCES", 1000)
	if err != nil {
		return nil, fmt.Errorf("%w: MAX_OCCURRENCES: %w", ErrInvalidConfig, err)
	}
	if maxOccurrences <= 0 {
		return nil, fmt.Errorf("%w: MAX_OCCURRENCES must be positive", ErrInvalidConfig)
	}
	cfg.Calendar.MaxOccurrences = maxOccurrences

	// Rate limiting configuration
	rps, err := getEnvFloat("RATE_LIMIT_RPS", 10.0)
	if err != nil {
		return nil, fmt.Errorf("%w: RATE_LIMIT_RPS: %w", ErrInvalidConfig, err)
	}
	cfg.RateLimiting.RPS = rps

	burst, err := getEnvInt("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("%w: RATE_LIMIT_BURST: %w", ErrInvalidConfig, err)
	}
	cfg.RateLimiting.Burst = burst

	// Check for missing required configuration
	missing := cfg.getMissingRequired()
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}

	return cfg, nil
}

// getMissingRequired returns a list of missing required configuration values.
func (c *Config) getMissingRequired() []string {
	var missing []string

	if c.Security.TokenSecret == "" {
		missing = append(missing, "TOKEN_SECRET")
	}

	return missing
}

// Validate checks the allowed origins. Production requires HTTPS except for
// loopback origins.
func (c *Config) Validate() error {
	v := validator.New(validator.WithInsecureLocalhost())

	for _, origin := range c.Server.AllowedOrigins {
		if err := v.ValidateOrigin(origin, c.IsProduction()); err != nil {
			return fmt.Errorf("%w: ALLOWED_ORIGINS: %w", ErrValidationFailed, err)
		}
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvRequired returns the value of an environment variable.
// Returns empty string if not set (caller should check for required values).
func getEnvRequired(key string) string {
	return os.Getenv(key)
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	return parsed, nil
}

// getEnvFloat returns the float value of an environment variable or a default.
func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float: %w", err)
	}
	return parsed, nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
