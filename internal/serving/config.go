package serving

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds serving engine configuration.
type Config struct {
	// CacheTTL is the TTL applied to backfilled cache entries. Zero defers
	// to the cache tier's default.
	CacheTTL time.Duration

	// MaxBatchSize caps entity_ids per batch read.
	MaxBatchSize int

	// BackfillTimeout bounds the detached cache backfill after a store read.
	BackfillTimeout time.Duration
}

// NewConfigFromEnv creates a new Config from environment variables.
func NewConfigFromEnv() (*Config, error) {
	ttlSeconds, err := strconv.Atoi(getEnvOrDefault("SERVING_CACHE_TTL_SECONDS", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVING_CACHE_TTL_SECONDS: %w", err)
	}

	maxBatch, err := strconv.Atoi(getEnvOrDefault("MAX_BATCH_SIZE", "1000"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_BATCH_SIZE: %w", err)
	}

	return &Config{
		CacheTTL:        time.Duration(ttlSeconds) * time.Second,
		MaxBatchSize:    maxBatch,
		BackfillTimeout: 5 * time.Second,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
