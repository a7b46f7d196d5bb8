package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/birb-feathers/internal/database"
	"github.com/birbparty/birb-feathers/internal/feature"
)

// mustRegister registers a feature schema and returns its assigned ID.
func mustRegister(t *testing.T, name string, version int, dtype, entityType string) int {
	t.Helper()
	schema, err := testRegistry.Register(context.Background(), &database.FeatureSchema{
		Name:       name,
		Version:    version,
		DType:      dtype,
		EntityType: entityType,
		TTLHours:   24,
	})
	require.NoError(t, err)
	return schema.ID
}

// mustWrite writes a batch and fails the test on error.
func mustWrite(t *testing.T, writes []database.FeatureWrite) {
	t.Helper()
	require.NoError(t, testStore.WriteFeatures(context.Background(), writes))
}

func TestStore_PointInTimeReads(t *testing.T) {
	resetAll(t)
	ctx := context.Background()

	id := mustRegister(t, "purchase_count_7d", 1, "int64", "user")
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mustWrite(t, []database.FeatureWrite{
		{FeatureID: id, EntityID: "u1", Timestamp: base, Value: feature.Int64(1)},
		{FeatureID: id, EntityID: "u1", Timestamp: base.Add(time.Hour), Value: feature.Int64(2)},
		{FeatureID: id, EntityID: "u1", Timestamp: base.Add(2 * time.Hour), Value: feature.Int64(3)},
	})

	// As-of between the second and third samples returns the second.
	matrix, err := testStore.GetFeatures(ctx, []string{"u1"}, []string{"purchase_count_7d"}, base.Add(90*time.Minute))
	require.NoError(t, err)
	got := matrix["u1"]["purchase_count_7d"]
	assert.True(t, got.Value.Equal(feature.Int64(2)), "expected the sample at +1h, got %v", got.Value)
	assert.True(t, got.Timestamp.Equal(base.Add(time.Hour)))

	// As-of exactly on a sample timestamp includes that sample.
	matrix, err = testStore.GetFeatures(ctx, []string{"u1"}, []string{"purchase_count_7d"}, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, matrix["u1"]["purchase_count_7d"].Value.Equal(feature.Int64(3)))

	// As-of before any sample: the pair is absent, not an error.
	matrix, err = testStore.GetFeatures(ctx, []string{"u1"}, []string{"purchase_count_7d"}, base.Add(-time.Minute))
	require.NoError(t, err)
	assert.NotContains(t, matrix, "u1")
}

func TestStore_TimestampTieBreak(t *testing.T) {
	resetAll(t)
	ctx := context.Background()

	// Two versions of the same feature name with samples at the same
	// instant. The higher feature ID wins so reads stay deterministic.
	v1 := mustRegister(t, "avg_session_minutes", 1, "float64", "user")
	v2 := mustRegister(t, "avg_session_minutes", 2, "float64", "user")
	require.Greater(t, v2, v1)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mustWrite(t, []database.FeatureWrite{
		{FeatureID: v1, EntityID: "u1", Timestamp: ts, Value: feature.Float64(10)},
		{FeatureID: v2, EntityID: "u1", Timestamp: ts, Value: feature.Float64(20)},
	})

	matrix, err := testStore.GetFeatures(ctx, []string{"u1"}, []string{"avg_session_minutes"}, ts)
	require.NoError(t, err)
	assert.True(t, matrix["u1"]["avg_session_minutes"].Value.Equal(feature.Float64(20)))
}

func TestStore_WriteIsIdempotent(t *testing.T) {
	resetAll(t)
	ctx := context.Background()

	id := mustRegister(t, "churn_score", 1, "float64", "user")
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	batch := []database.FeatureWrite{
		{FeatureID: id, EntityID: "u1", Timestamp: ts, Value: feature.Float64(0.42)},
		{FeatureID: id, EntityID: "u2", Timestamp: ts, Value: feature.Float64(0.13)},
	}

	mustWrite(t, batch)
	mustWrite(t, batch)

	var count int
	err := testDB.QueryRow(ctx, "SELECT COUNT(*) FROM feature_values").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "replay of the same batch must not duplicate rows")
}

func TestStore_WriteUpsertsConflictingRow(t *testing.T) {
	resetAll(t)
	ctx := context.Background()

	id := mustRegister(t, "churn_score", 1, "float64", "user")
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mustWrite(t, []database.FeatureWrite{{FeatureID: id, EntityID: "u1", Timestamp: ts, Value: feature.Float64(0.1)}})
	mustWrite(t, []database.FeatureWrite{{FeatureID: id, EntityID: "u1", Timestamp: ts, Value: feature.Float64(0.9)}})

	matrix, err := testStore.GetFeatures(ctx, []string{"u1"}, []string{"churn_score"}, ts)
	require.NoError(t, err)
	assert.True(t, matrix["u1"]["churn_score"].Value.Equal(feature.Float64(0.9)))
}

func TestStore_WriteRollsBackWholeBatch(t *testing.T) {
	resetAll(t)
	ctx := context.Background()

	id := mustRegister(t, "churn_score", 1, "float64", "user")
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	err := testStore.WriteFeatures(ctx, []database.FeatureWrite{
		{FeatureID: id, EntityID: "u1", Timestamp: ts, Value: feature.Float64(0.5)},
		// Unregistered feature ID violates the FK constraint.
		{FeatureID: 999999, EntityID: "u1", Timestamp: ts, Value: feature.Float64(0.5)},
	})
	require.ErrorIs(t, err, database.ErrWriteFailed)

	var count int
	require.NoError(t, testDB.QueryRow(ctx, "SELECT COUNT(*) FROM feature_values").Scan(&count))
	assert.Zero(t, count, "a failed batch must leave no partial rows")
}

func TestStore_History(t *testing.T) {
	resetAll(t)
	ctx := context.Background()

	id := mustRegister(t, "purchase_count_7d", 1, "int64", "user")
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	var writes []database.FeatureWrite
	for i := 0; i < 5; i++ {
		writes = append(writes, database.FeatureWrite{
			FeatureID: id,
			EntityID:  "u1",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Value:     feature.Int64(int64(i)),
		})
	}
	mustWrite(t, writes)

	// Both bounds inclusive.
	history, err := testStore.GetFeatureHistory(ctx, "u1", "purchase_count_7d", base.Add(time.Hour), base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.True(t, history[0].Value.Equal(feature.Int64(1)))
	assert.True(t, history[2].Value.Equal(feature.Int64(3)))
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i].Timestamp.After(history[i-1].Timestamp), "history must ascend")
	}
}

func TestStore_MetadataRoundTrip(t *testing.T) {
	resetAll(t)
	ctx := context.Background()

	id := mustRegister(t, "model_output", 1, "float64", "user")
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mustWrite(t, []database.FeatureWrite{{
		FeatureID: id,
		EntityID:  "u1",
		Timestamp: ts,
		Value:     feature.Float64(0.77),
		Metadata:  map[string]interface{}{"model_version": "v3", "pipeline_run": float64(118)},
	}})

	matrix, err := testStore.GetFeatures(ctx, []string{"u1"}, []string{"model_output"}, ts)
	require.NoError(t, err)
	got := matrix["u1"]["model_output"]
	assert.Equal(t, "v3", got.Metadata["model_version"])
	assert.Equal(t, float64(118), got.Metadata["pipeline_run"])
}
