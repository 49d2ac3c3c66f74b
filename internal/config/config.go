package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	// Env selects the log format: "local", "dev" or "prod"
	Env string

	// Storage
	StorageType string // "sqlite" or "postgres"
	SQLitePath  string
	PostgresURL string

	// API Server
	APIPort  string
	APIHost  string
	APIToken string // optional bearer token shared by server and CLI

	// Backend behaviour
	CommentInterval time.Duration // minimum gap between two submitted comments
	HTTPTimeout     time.Duration

	// CLI
	APIEndpoint       string
	PollInterval      time.Duration // batch status polling
	LoginPollInterval time.Duration
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Env:         getEnv("APP_ENV", "local"),
		StorageType: getEnv("STORAGE_TYPE", "sqlite"),
		SQLitePath:  getEnv("SQLITE_PATH", "./bili-comment.db"),
		PostgresURL: getEnv("POSTGRES_URL", ""),
		APIPort:     getEnv("API_PORT", "8080"),
		APIHost:     getEnv("API_HOST", "localhost"),
		APIToken:    getEnv("API_TOKEN", ""),
		APIEndpoint: getEnv("API_ENDPOINT", "http://localhost:8080"),
	}

	var err error
	if cfg.CommentInterval, err = getEnvDuration("COMMENT_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getEnvDuration("HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getEnvDuration("POLL_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if cfg.LoginPollInterval, err = getEnvDuration("LOGIN_POLL_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration parses a duration ("5s") or a bare number of seconds ("5").
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, &ConfigError{Field: key, Message: "must be a duration like 5s or a number of seconds"}
	}
	return d, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.StorageType != "sqlite" && c.StorageType != "postgres" {
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'sqlite' or 'postgres'"}
	}
	if c.StorageType == "postgres" && c.PostgresURL == "" {
		return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
	}
	if c.CommentInterval < 0 {
		return &ConfigError{Field: "COMMENT_INTERVAL", Message: "must not be negative"}
	}
	if c.PollInterval <= 0 {
		return &ConfigError{Field: "POLL_INTERVAL", Message: "must be positive"}
	}
	if c.LoginPollInterval <= 0 {
		return &ConfigError{Field: "LOGIN_POLL_INTERVAL", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
