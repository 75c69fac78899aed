package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port string

	// Redis connection
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Session token verification (HMAC secret for the auth collaborator)
	SessionSecret string

	// Admin bearer token for the reset endpoint; empty disables the endpoint
	AdminToken string

	// Sliding-window rate limits, requests per window
	AnonymousLimit     int
	AuthenticatedLimit int
	WindowMinutes      int

	// Lifetime quota for authenticated users
	TotalQuota      int
	QuotaWindowDays int

	// Model usage tracking
	ModelRetentionDays int
	DefaultModel       string
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		SessionSecret:      getEnv("SESSION_SECRET", ""),
		AdminToken:         getEnv("ADMIN_TOKEN", ""),
		AnonymousLimit:     getEnvInt("RATE_LIMIT_ANONYMOUS", 10),
		AuthenticatedLimit: getEnvInt("RATE_LIMIT_AUTHENTICATED", 10),
		WindowMinutes:      getEnvInt("RATE_LIMIT_WINDOW_MINUTES", 60),
		TotalQuota:         getEnvInt("TOTAL_QUOTA", 50),
		QuotaWindowDays:    getEnvInt("TOTAL_QUOTA_WINDOW_DAYS", 365),
		ModelRetentionDays: getEnvInt("MODEL_USAGE_RETENTION_DAYS", 30),
		DefaultModel:       getEnv("DEFAULT_MODEL", "gpt-4o-mini"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validate ensures configuration values are sensible
func (c *Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR cannot be empty")
	}

	if c.RedisDB < 0 {
		return fmt.Errorf("REDIS_DB must be 0 or positive, got %d", c.RedisDB)
	}

	if c.AnonymousLimit <= 0 {
		return fmt.Errorf("RATE_LIMIT_ANONYMOUS must be positive, got %d", c.AnonymousLimit)
	}

	if c.AuthenticatedLimit <= 0 {
		return fmt.Errorf("RATE_LIMIT_AUTHENTICATED must be positive, got %d", c.AuthenticatedLimit)
	}

	if c.WindowMinutes <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_MINUTES must be positive, got %d", c.WindowMinutes)
	}

	if c.TotalQuota <= 0 {
		return fmt.Errorf("TOTAL_QUOTA must be positive, got %d", c.TotalQuota)
	}

	if c.QuotaWindowDays <= 0 {
		return fmt.Errorf("TOTAL_QUOTA_WINDOW_DAYS must be positive, got %d", c.QuotaWindowDays)
	}

	if c.ModelRetentionDays <= 0 {
		return fmt.Errorf("MODEL_USAGE_RETENTION_DAYS must be positive, got %d", c.ModelRetentionDays)
	}

	if c.DefaultModel == "" {
		return fmt.Errorf("DEFAULT_MODEL cannot be empty")
	}

	return nil
}

// Window returns the sliding-window duration.
func (c *Config) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// QuotaWindow returns the nominal lifetime-quota duration.
func (c *Config) QuotaWindow() time.Duration {
	return time.Duration(c.QuotaWindowDays) * 24 * time.Hour
}

// ModelRetention returns how long model-usage events are kept.
func (c *Config) ModelRetention() time.Duration {
	return time.Duration(c.ModelRetentionDays) * 24 * time.Hour
}

// getEnv returns the environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
