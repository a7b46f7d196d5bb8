package cleanup

import (
	"os"
	"strconv"
	"time"
)

// Config contains configuration for the retention service.
type Config struct {
	// Enabled turns the pruning loop on. Off by default so operators
	// opt in explicitly.
	Enabled bool

	// Interval between pruning cycles.
	Interval time.Duration

	// BatchLimit bounds how many rows one DELETE removes. A cycle keeps
	// deleting batches until a batch comes back short.
	BatchLimit int

	// DryRun logs what would be pruned without deleting anything.
	DryRun bool
}

// LoadConfig loads retention configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Enabled:    getEnvBool("RETENTION_ENABLED", false),
		Interval:   getEnvDuration("RETENTION_INTERVAL", time.Hour),
		BatchLimit: getEnvInt("RETENTION_BATCH_LIMIT", 10000),
		DryRun:     getEnvBool("RETENTION_DRY_RUN", false),
	}
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
