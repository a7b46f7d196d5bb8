package api

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the API configuration
type Config struct {
	Host string
	Port int

	// APIKeys maps an opaque key to its tenant tag.
	APIKeys map[string]string

	RequestTimeout  int
	ShutdownTimeout int
}

// LoadConfig loads configuration from environment variables. API_KEYS is a
// comma-separated list of key=tenant pairs.
func LoadConfig() (*Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	requestTimeout, err := strconv.Atoi(getEnvOrDefault("REQUEST_TIMEOUT", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := strconv.Atoi(getEnvOrDefault("SHUTDOWN_TIMEOUT", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	keys, err := ParseAPIKeys(os.Getenv("API_KEYS"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Host:            getEnvOrDefault("HOST", "0.0.0.0"),
		Port:            port,
		APIKeys:         keys,
		RequestTimeout:  requestTimeout,
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

// ParseAPIKeys parses a comma-separated key=tenant list.
func ParseAPIKeys(raw string) (map[string]string, error) {
	keys := make(map[string]string)
	if raw == "" {
		return keys, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, tenant, ok := strings.Cut(pair, "=")
		if !ok || key == "" || tenant == "" {
			return nil, fmt.Errorf("invalid API_KEYS entry %q, want key=tenant", pair)
		}
		keys[key] = tenant
	}
	return keys, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
