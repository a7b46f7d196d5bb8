package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

var (
	metricsOnce sync.Once

	// Cache tier
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	corruptCacheEntries prometheus.Counter
	cacheInvalidations  prometheus.Counter

	// Serving
	servesTotal      *prometheus.CounterVec
	featureFreshness prometheus.Histogram

	// Durable store
	storeQueryDuration *prometheus.HistogramVec
	storeWriteDuration prometheus.Histogram
	storeWriteRows     prometheus.Histogram

	// API
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Ingest worker
	messagesProcessedTotal *prometheus.CounterVec
	dlqMessagesTotal       *prometheus.CounterVec

	// Retention
	retentionRowsPruned    prometheus.Counter
	retentionCycleDuration prometheus.Histogram

	// System
	serviceUp                 prometheus.Gauge
	databaseConnectionsActive prometheus.Gauge
	redisConnectionsActive    prometheus.Gauge
)

// InitMetrics initializes all metrics
func InitMetrics(cfg *Config) error {
	var err error
	metricsOnce.Do(func() {
		initPrometheusMetrics()

		if cfg.EnableMetrics {
			err = initOTELMetrics(cfg)
		}

		serviceUp.Set(1)
	})
	return err
}

func initPrometheusMetrics() {
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feature_cache_hits_total",
		Help: "Total number of online cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feature_cache_misses_total",
		Help: "Total number of online cache misses",
	})

	corruptCacheEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feature_cache_corrupt_entries_total",
		Help: "Total number of cache entries that failed to decode",
	})

	cacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feature_cache_invalidations_total",
		Help: "Total number of cache keys removed by invalidation",
	})

	servesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feature_serves_total",
		Help: "Total number of online feature serves by source",
	}, []string{"source"})

	featureFreshness = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feature_freshness_seconds",
		Help:    "Age of served feature values in seconds",
		Buckets: []float64{1, 10, 60, 300, 900, 3600, 21600, 86400},
	})

	storeQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "store_query_duration_seconds",
		Help:    "Duration of durable store queries in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	storeWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "store_write_duration_seconds",
		Help:    "Duration of durable store batch writes in seconds",
		Buckets: prometheus.DefBuckets,
	})

	storeWriteRows = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "store_write_rows",
		Help:    "Rows per durable store batch write",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	messagesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_messages_processed_total",
		Help: "Total number of ingest messages processed",
	}, []string{"subject", "status"})

	dlqMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_dlq_messages_total",
		Help: "Total number of messages routed to the dead letter queue",
	}, []string{"reason"})

	retentionRowsPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retention_rows_pruned_total",
		Help: "Total number of feature values removed by TTL retention",
	})

	retentionCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "retention_cycle_duration_seconds",
		Help:    "Duration of retention pruning cycles in seconds",
		Buckets: prometheus.DefBuckets,
	})

	serviceUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "service_up",
		Help: "Whether the service is up (1) or down (0)",
	})

	databaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "database_connections_active",
		Help: "Number of active database connections",
	})

	redisConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redis_connections_active",
		Help: "Number of active Redis connections",
	})
}

func initOTELMetrics(cfg *Config) error {
	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)

	otel.SetMeterProvider(provider)
	return nil
}

// RecordCacheHit records an online cache hit
func RecordCacheHit() {
	cacheHits.Inc()
}

// RecordCacheMiss records an online cache miss
func RecordCacheMiss() {
	cacheMisses.Inc()
}

// RecordCorruptCacheEntry records a cache entry that failed to decode
func RecordCorruptCacheEntry() {
	corruptCacheEntries.Inc()
}

// RecordCacheInvalidation records keys removed by a pattern invalidation
func RecordCacheInvalidation(keys int) {
	cacheInvalidations.Add(float64(keys))
}

// RecordServe records one online serve by result source
func RecordServe(source string) {
	servesTotal.WithLabelValues(source).Inc()
}

// ObserveFeatureFreshness records the age of one served value
func ObserveFeatureFreshness(seconds float64) {
	featureFreshness.Observe(seconds)
}

// ObserveStoreQuery records a durable store query duration
func ObserveStoreQuery(query string, duration time.Duration) {
	storeQueryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// ObserveStoreWrite records a durable store batch write
func ObserveStoreWrite(rows int, duration time.Duration) {
	storeWriteDuration.Observe(duration.Seconds())
	storeWriteRows.Observe(float64(rows))
}

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordMessageProcessed records a processed ingest message
func RecordMessageProcessed(subject, status string) {
	messagesProcessedTotal.WithLabelValues(subject, status).Inc()
}

// RecordDLQMessage records a message sent to the DLQ
func RecordDLQMessage(reason string) {
	dlqMessagesTotal.WithLabelValues(reason).Inc()
}

// ObserveRetention records one TTL retention cycle
func ObserveRetention(rows int64, duration time.Duration) {
	retentionRowsPruned.Add(float64(rows))
	retentionCycleDuration.Observe(duration.Seconds())
}

// UpdateDatabaseConnections updates the database connections metric
func UpdateDatabaseConnections(count int) {
	databaseConnectionsActive.Set(float64(count))
}

// UpdateRedisConnections updates the Redis connections metric
func UpdateRedisConnections(count int) {
	redisConnectionsActive.Set(float64(count))
}
