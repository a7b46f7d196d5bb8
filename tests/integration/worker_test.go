package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/birb-feathers/internal/database"
	"github.com/birbparty/birb-feathers/internal/feature"
	"github.com/birbparty/birb-feathers/internal/queue"
	"github.com/birbparty/birb-feathers/internal/serving"
	"github.com/birbparty/birb-feathers/internal/worker"
)

// startTestWorker runs a processor against the shared containers and
// returns a stop function.
func startTestWorker(t *testing.T) func() {
	t.Helper()

	cfg := &worker.Config{
		WorkerID:        "test-worker-1",
		WorkerName:      "test-worker",
		BatchSize:       10,
		FetchTimeout:    500 * time.Millisecond,
		MetricsInterval: time.Minute,
	}

	metrics := worker.NewMetrics()
	processor := worker.NewProcessor(cfg, testStore, testCache, testQueue, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- processor.Start(ctx)
	}()

	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Fatal("worker did not stop in time")
		}
	}
}

func TestWorker_IngestsPublishedRows(t *testing.T) {
	resetAll(t)
	ctx := context.Background()

	id := mustRegister(t, "purchase_count_7d", 1, "int64", "user")

	stop := startTestWorker(t)
	defer stop()

	ts := time.Now().UTC().Truncate(time.Second).Add(-time.Minute)
	err := testQueue.PublishIngest(ctx, queue.NewIngestMessage([]queue.IngestRow{
		{FeatureID: id, EntityID: "u1", Timestamp: ts, Value: feature.Int64(9)},
		{FeatureID: id, EntityID: "u2", Timestamp: ts, Value: feature.Int64(4)},
	}))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		matrix, err := testStore.GetFeatures(ctx, []string{"u1", "u2"}, []string{"purchase_count_7d"}, time.Now().UTC())
		if err != nil {
			return false
		}
		return len(matrix) == 2
	}, 15*time.Second, 200*time.Millisecond, "published rows should land in the store")

	matrix, err := testStore.GetFeatures(ctx, []string{"u1"}, []string{"purchase_count_7d"}, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, matrix["u1"]["purchase_count_7d"].Value.Equal(feature.Int64(9)))
}

func TestWorker_DuplicateMessageIsDeduplicated(t *testing.T) {
	resetAll(t)
	ctx := context.Background()

	id := mustRegister(t, "churn_score", 1, "float64", "user")

	stop := startTestWorker(t)
	defer stop()

	ts := time.Now().UTC().Truncate(time.Second).Add(-time.Minute)
	msg := queue.NewIngestMessage([]queue.IngestRow{
		{FeatureID: id, EntityID: "u1", Timestamp: ts, Value: feature.Float64(0.5)},
	})

	// Same message ID published twice: JetStream drops the duplicate and
	// the upsert absorbs any redelivery, so exactly one row lands.
	require.NoError(t, testQueue.PublishIngest(ctx, msg))
	require.NoError(t, testQueue.PublishIngest(ctx, msg))

	assert.Eventually(t, func() bool {
		var count int
		if err := testDB.QueryRow(ctx, "SELECT COUNT(*) FROM feature_values").Scan(&count); err != nil {
			return false
		}
		return count == 1
	}, 15*time.Second, 200*time.Millisecond)
}

func TestWorker_InvalidationClearsCache(t *testing.T) {
	resetAll(t)
	ctx := context.Background()

	id := mustRegister(t, "purchase_count_7d", 1, "int64", "user")
	mustWrite(t, []database.FeatureWrite{
		{FeatureID: id, EntityID: "u1", Timestamp: time.Now().UTC().Add(-time.Minute), Value: feature.Int64(7)},
	})

	// Warm the cache through the serving path.
	_, err := testEngine.GetOnlineFeatures(ctx, "u1", []string{"purchase_count_7d"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		r, err := testEngine.GetOnlineFeatures(ctx, "u1", []string{"purchase_count_7d"})
		return err == nil && r.Source == serving.SourceCache
	}, 5*time.Second, 50*time.Millisecond)

	stop := startTestWorker(t)
	defer stop()

	require.NoError(t, testQueue.PublishInvalidation(ctx, queue.NewInvalidationMessage("u1")))

	assert.Eventually(t, func() bool {
		r, err := testEngine.GetOnlineFeatures(ctx, "u1", []string{"purchase_count_7d"})
		if err != nil || r.Source != serving.SourceDatabase {
			return false
		}
		// The read itself backfills again; invalidate to keep the
		// condition stable across retries.
		testCache.Invalidate(ctx, "u1:*")
		return true
	}, 15*time.Second, 200*time.Millisecond, "invalidation message should evict the entity")
}
