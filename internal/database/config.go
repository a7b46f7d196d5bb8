package database

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds durable store configuration.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// CommandTimeout bounds each command, pool acquisition included.
	// Pool exhaustion therefore surfaces as a timeout, never a hang.
	CommandTimeout time.Duration
}

// NewConfigFromEnv creates a new Config from environment variables.
func NewConfigFromEnv() (*Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid POSTGRES_PORT: %w", err)
	}

	maxConns, err := strconv.ParseInt(getEnvOrDefault("POSTGRES_MAX_CONNS", "50"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid POSTGRES_MAX_CONNS: %w", err)
	}

	minConns, err := strconv.ParseInt(getEnvOrDefault("POSTGRES_MIN_CONNS", "10"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid POSTGRES_MIN_CONNS: %w", err)
	}

	commandTimeout, err := strconv.Atoi(getEnvOrDefault("QUERY_TIMEOUT_SECONDS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid QUERY_TIMEOUT_SECONDS: %w", err)
	}

	return &Config{
		Host:            getEnvOrDefault("POSTGRES_HOST", "localhost"),
		Port:            port,
		User:            getEnvOrDefault("POSTGRES_USER", "features"),
		Password:        getEnvOrDefault("POSTGRES_PASSWORD", "features"),
		Database:        getEnvOrDefault("POSTGRES_DB", "features"),
		MaxConns:        int32(maxConns),
		MinConns:        int32(minConns),
		MaxConnLifetime: 1 * time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		CommandTimeout:  time.Duration(commandTimeout) * time.Second,
	}, nil
}

// RegistryConfig derives the smaller pool used by the feature registry.
// Registry writes are rare compared to value traffic.
func (c *Config) RegistryConfig() (*Config, error) {
	maxConns, err := strconv.ParseInt(getEnvOrDefault("REGISTRY_MAX_CONNS", "10"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid REGISTRY_MAX_CONNS: %w", err)
	}
	minConns, err := strconv.ParseInt(getEnvOrDefault("REGISTRY_MIN_CONNS", "2"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid REGISTRY_MIN_CONNS: %w", err)
	}

	derived := *c
	derived.MaxConns = int32(maxConns)
	derived.MinConns = int32(minConns)
	return &derived, nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
