package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/birbparty/birb-feathers/internal/cache"
	"github.com/birbparty/birb-feathers/internal/cleanup"
	"github.com/birbparty/birb-feathers/internal/database"
	"github.com/birbparty/birb-feathers/internal/queue"
	"github.com/birbparty/birb-feathers/internal/telemetry"
	"github.com/birbparty/birb-feathers/internal/worker"
)

func main() {
	if err := telemetry.Init(telemetry.NewConfigFromEnv()); err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workerConfig, err := worker.NewConfigFromEnv()
	if err != nil {
		telemetry.L().WithError(err).Fatal("Failed to load worker config")
	}

	dbConfig, err := database.NewConfigFromEnv()
	if err != nil {
		telemetry.L().WithError(err).Fatal("Failed to load database config")
	}

	cacheConfig, err := cache.NewConfigFromEnv()
	if err != nil {
		telemetry.L().WithError(err).Fatal("Failed to load cache config")
	}

	queueConfig, err := queue.NewConfigFromEnv()
	if err != nil {
		telemetry.L().WithError(err).Fatal("Failed to load queue config")
	}

	db, err := database.NewDB(dbConfig)
	if err != nil {
		telemetry.L().WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()
	telemetry.L().Info("Connected to PostgreSQL")

	redisCache, err := cache.NewRedisCache(cacheConfig)
	if err != nil {
		telemetry.L().WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisCache.Close()
	telemetry.L().Info("Connected to Redis")

	queueClient, err := queue.NewClient(queueConfig)
	if err != nil {
		telemetry.L().WithError(err).Fatal("Failed to connect to NATS")
	}
	defer queueClient.Close()
	telemetry.L().Info("Connected to NATS JetStream")

	store := database.NewFeatureStore(db)
	metrics := worker.NewMetrics()
	processor := worker.NewProcessor(workerConfig, store, redisCache, queueClient, metrics)

	if retentionConfig := cleanup.LoadConfig(); retentionConfig.Enabled {
		retention := cleanup.NewService(db, retentionConfig)
		go retention.Start(ctx)
	}

	go startHealthServer(workerConfig.HealthCheckPort, metrics)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	processorDone := make(chan error, 1)
	go func() {
		processorDone <- processor.Start(ctx)
	}()

	select {
	case sig := <-sigChan:
		telemetry.L().WithField("signal", sig.String()).Info("Shutting down gracefully")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		select {
		case <-processorDone:
			telemetry.L().Info("Worker shutdown complete")
		case <-shutdownCtx.Done():
			telemetry.L().Warn("Worker shutdown timeout")
		}
		telemetry.Shutdown(shutdownCtx)

	case err := <-processorDone:
		if err != nil {
			telemetry.L().WithError(err).Fatal("Processor error")
		}
	}
}

func startHealthServer(port int, metrics *worker.Metrics) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if metrics.IsHealthy() {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"status":"healthy","service":"birb-feathers-worker"}`)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"status":"unhealthy","service":"birb-feathers-worker"}`)
		}
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(metrics.GetStats())
	})

	mux.Handle("/metrics", telemetry.PrometheusHandler())

	telemetry.L().WithField("port", port).Info("Health server listening")
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
		telemetry.L().WithError(err).Error("Health server error")
	}
}
