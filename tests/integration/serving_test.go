package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/birb-feathers/internal/database"
	"github.com/birbparty/birb-feathers/internal/feature"
	"github.com/birbparty/birb-feathers/internal/serving"
)

func TestServing_DatabaseFallbackThenBackfill(t *testing.T) {
	resetAll(t)
	ctx := context.Background()

	id := mustRegister(t, "purchase_count_7d", 1, "int64", "user")
	mustWrite(t, []database.FeatureWrite{
		{FeatureID: id, EntityID: "u1", Timestamp: time.Now().UTC().Add(-time.Minute), Value: feature.Int64(7)},
	})

	// Cold cache: the read falls through to the store.
	result, err := testEngine.GetOnlineFeatures(ctx, "u1", []string{"purchase_count_7d"})
	require.NoError(t, err)
	assert.Equal(t, serving.SourceDatabase, result.Source)
	assert.False(t, result.AllFromCache())
	require.Contains(t, result.Features, "purchase_count_7d")
	assert.True(t, result.Features["purchase_count_7d"].Value.Equal(feature.Int64(7)))
	assert.GreaterOrEqual(t, result.Features["purchase_count_7d"].FreshnessSeconds, float64(0))

	// The backfill runs detached; wait for the cache tier to warm up.
	assert.Eventually(t, func() bool {
		r, err := testEngine.GetOnlineFeatures(ctx, "u1", []string{"purchase_count_7d"})
		return err == nil && r.Source == serving.SourceCache
	}, 5*time.Second, 50*time.Millisecond, "subsequent reads should be served from cache")
}

func TestServing_MixedSource(t *testing.T) {
	resetAll(t)
	ctx := context.Background()

	cached := mustRegister(t, "purchase_count_7d", 1, "int64", "user")
	fresh := mustRegister(t, "churn_score", 1, "float64", "user")

	now := time.Now().UTC().Add(-time.Minute)
	mustWrite(t, []database.FeatureWrite{
		{FeatureID: cached, EntityID: "u1", Timestamp: now, Value: feature.Int64(7)},
	})

	// Warm the cache for the first feature only.
	_, err := testEngine.GetOnlineFeatures(ctx, "u1", []string{"purchase_count_7d"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		r, err := testEngine.GetOnlineFeatures(ctx, "u1", []string{"purchase_count_7d"})
		return err == nil && r.Source == serving.SourceCache
	}, 5*time.Second, 50*time.Millisecond)

	mustWrite(t, []database.FeatureWrite{
		{FeatureID: fresh, EntityID: "u1", Timestamp: now, Value: feature.Float64(0.3)},
	})

	result, err := testEngine.GetOnlineFeatures(ctx, "u1", []string{"purchase_count_7d", "churn_score"})
	require.NoError(t, err)
	assert.Equal(t, serving.SourceMixed, result.Source)
	assert.Len(t, result.Features, 2)
}

func TestServing_InvalidateDropsEntity(t *testing.T) {
	resetAll(t)
	ctx := context.Background()

	id := mustRegister(t, "purchase_count_7d", 1, "int64", "user")
	mustWrite(t, []database.FeatureWrite{
		{FeatureID: id, EntityID: "u1", Timestamp: time.Now().UTC().Add(-time.Minute), Value: feature.Int64(7)},
	})

	_, err := testEngine.GetOnlineFeatures(ctx, "u1", []string{"purchase_count_7d"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		r, err := testEngine.GetOnlineFeatures(ctx, "u1", []string{"purchase_count_7d"})
		return err == nil && r.Source == serving.SourceCache
	}, 5*time.Second, 50*time.Millisecond)

	count, err := testEngine.Invalidate(ctx, "u1")
	require.NoError(t, err)
	assert.Greater(t, count, 0)

	result, err := testEngine.GetOnlineFeatures(ctx, "u1", []string{"purchase_count_7d"})
	require.NoError(t, err)
	assert.Equal(t, serving.SourceDatabase, result.Source, "invalidation must force a store read")
}

func TestServing_AbsentFeatureOmitted(t *testing.T) {
	resetAll(t)
	ctx := context.Background()

	mustRegister(t, "purchase_count_7d", 1, "int64", "user")

	result, err := testEngine.GetOnlineFeatures(ctx, "u-unknown", []string{"purchase_count_7d"})
	require.NoError(t, err)
	assert.Empty(t, result.Features, "missing values are omitted, not errors")
}

func TestServing_BatchPointInTime(t *testing.T) {
	resetAll(t)
	ctx := context.Background()

	id := mustRegister(t, "purchase_count_7d", 1, "int64", "user")
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mustWrite(t, []database.FeatureWrite{
		{FeatureID: id, EntityID: "u1", Timestamp: base, Value: feature.Int64(1)},
		{FeatureID: id, EntityID: "u1", Timestamp: base.Add(time.Hour), Value: feature.Int64(2)},
		{FeatureID: id, EntityID: "u2", Timestamp: base, Value: feature.Int64(5)},
	})

	asOf := base.Add(30 * time.Minute)
	result, err := testEngine.GetBatchFeatures(ctx, []string{"u1", "u2", "u3"}, []string{"purchase_count_7d"}, &asOf)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Count)
	assert.True(t, result.Features["u1"]["purchase_count_7d"].Value.Equal(feature.Int64(1)), "sample after as-of must be excluded")
	assert.True(t, result.Features["u2"]["purchase_count_7d"].Value.Equal(feature.Int64(5)))
	assert.NotContains(t, result.Features, "u3")
}

func TestServing_WriteThenRead(t *testing.T) {
	resetAll(t)
	ctx := context.Background()

	id := mustRegister(t, "churn_score", 1, "float64", "user")

	err := testEngine.WriteFeatures(ctx, []database.FeatureWrite{
		{FeatureID: id, EntityID: "u1", Timestamp: time.Now().UTC(), Value: feature.Float64(0.66)},
	})
	require.NoError(t, err)

	result, err := testEngine.GetOnlineFeatures(ctx, "u1", []string{"churn_score"})
	require.NoError(t, err)
	require.Contains(t, result.Features, "churn_score")
	assert.True(t, result.Features["churn_score"].Value.Equal(feature.Float64(0.66)))
}
