package worker

import (
	"sync"
	"time"
)

// Metrics holds worker metrics
type Metrics struct {
	mu sync.RWMutex

	messagesProcessed int64
	messagesSucceeded int64
	messagesFailed    int64
	ingestCount       int64
	invalidationCount int64
	rowsWritten       int64
	keysInvalidated   int64

	errorCounts map[string]int64

	startTime       time.Time
	lastProcessedAt time.Time
	isHealthy       bool
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		errorCounts: make(map[string]int64),
		startTime:   time.Now(),
		isHealthy:   true,
	}
}

// RecordIngest records a successfully written ingest batch
func (m *Metrics) RecordIngest(rows int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ingestCount++
	m.rowsWritten += int64(rows)
	m.messagesProcessed++
	m.messagesSucceeded++
	m.lastProcessedAt = time.Now()
}

// RecordInvalidation records a processed invalidation
func (m *Metrics) RecordInvalidation(keys int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.invalidationCount++
	m.keysInvalidated += int64(keys)
	m.messagesProcessed++
	m.messagesSucceeded++
	m.lastProcessedAt = time.Now()
}

// RecordError records a failed message
func (m *Metrics) RecordError(errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errorCounts[errorType]++
	m.messagesProcessed++
	m.messagesFailed++
}

// GetStats returns current metrics
func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uptime := time.Since(m.startTime)
	timeSinceLastProcessed := time.Duration(0)
	if !m.lastProcessedAt.IsZero() {
		timeSinceLastProcessed = time.Since(m.lastProcessedAt)
	}

	return map[string]interface{}{
		"uptime_seconds":        uptime.Seconds(),
		"messages_processed":    m.messagesProcessed,
		"messages_succeeded":    m.messagesSucceeded,
		"messages_failed":       m.messagesFailed,
		"ingest_count":          m.ingestCount,
		"invalidation_count":    m.invalidationCount,
		"rows_written":          m.rowsWritten,
		"keys_invalidated":      m.keysInvalidated,
		"error_counts":          m.errorCounts,
		"last_processed_ago_ms": timeSinceLastProcessed.Milliseconds(),
		"is_healthy":            m.isHealthy,
	}
}

// SetHealthy sets the health status
func (m *Metrics) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isHealthy = healthy
}

// IsHealthy returns the health status
func (m *Metrics) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isHealthy
}
