package worker

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds worker configuration
type Config struct {
	// Worker identification
	WorkerID   string
	WorkerName string

	// Processing settings
	BatchSize    int
	FetchTimeout time.Duration

	// Monitoring
	MetricsInterval time.Duration
	HealthCheckPort int
}

// NewConfigFromEnv creates a new Config from environment variables
func NewConfigFromEnv() (*Config, error) {
	batchSize, err := strconv.Atoi(getEnvOrDefault("WORKER_BATCH_SIZE", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_BATCH_SIZE: %w", err)
	}

	fetchTimeout, err := time.ParseDuration(getEnvOrDefault("WORKER_FETCH_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_FETCH_TIMEOUT: %w", err)
	}

	metricsInterval, err := time.ParseDuration(getEnvOrDefault("WORKER_METRICS_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_METRICS_INTERVAL: %w", err)
	}

	healthCheckPort, err := strconv.Atoi(getEnvOrDefault("WORKER_HEALTH_PORT", "8081"))
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_HEALTH_PORT: %w", err)
	}

	workerID := getEnvOrDefault("WORKER_ID", generateWorkerID())

	return &Config{
		WorkerID:        workerID,
		WorkerName:      getEnvOrDefault("WORKER_NAME", "feathers-worker-"+workerID),
		BatchSize:       batchSize,
		FetchTimeout:    fetchTimeout,
		MetricsInterval: metricsInterval,
		HealthCheckPort: healthCheckPort,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func generateWorkerID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}
