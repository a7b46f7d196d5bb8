package serving

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/birbparty/birb-feathers/internal/cache"
	"github.com/birbparty/birb-feathers/internal/database"
	"github.com/birbparty/birb-feathers/internal/feature"
	"github.com/birbparty/birb-feathers/internal/telemetry"
)

// Result sources for an online read.
const (
	SourceCache    = "cache"
	SourceDatabase = "database"
	SourceMixed    = "mixed"
)

// Store is the durable read/write surface the engine depends on.
type Store interface {
	GetFeatures(ctx context.Context, entityIDs, featureNames []string, ts time.Time) (database.FeatureMatrix, error)
	WriteFeatures(ctx context.Context, writes []database.FeatureWrite) error
}

// ServedFeature is one feature value as returned to a caller.
type ServedFeature struct {
	Value            feature.Value `json:"value"`
	Timestamp        time.Time     `json:"timestamp"`
	FreshnessSeconds float64       `json:"freshness_seconds"`
}

// OnlineResult is the outcome of an online read for one entity.
type OnlineResult struct {
	EntityID string
	Features map[string]ServedFeature
	Source   string
}

// AllFromCache reports whether every served feature came from the cache tier.
func (r *OnlineResult) AllFromCache() bool {
	return r.Source == SourceCache
}

// BatchResult is the outcome of a batch (training) read.
type BatchResult struct {
	Features map[string]map[string]ServedFeature
	Count    int
}

// Engine orchestrates the two-tier read path: cache first, durable store for
// the misses, then a detached best-effort cache backfill.
type Engine struct {
	cache cache.Cache
	store Store
	cfg   *Config
	now   func() time.Time
}

// NewEngine creates a serving engine.
func NewEngine(c cache.Cache, store Store, cfg *Config) *Engine {
	return &Engine{
		cache: c,
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// GetOnlineFeatures serves the freshest known value for each requested
// feature of one entity. Features absent from both tiers are omitted from
// the result; absence is not an error.
func (e *Engine) GetOnlineFeatures(ctx context.Context, entityID string, featureNames []string) (*OnlineResult, error) {
	if entityID == "" {
		return nil, feature.NewValidationError("entity_id is required")
	}
	if len(featureNames) == 0 {
		return nil, feature.NewValidationError("feature_names must be non-empty")
	}

	keys := make([]string, len(featureNames))
	for i, name := range featureNames {
		keys[i] = cacheKey(entityID, name)
	}

	served := make(map[string]ServedFeature, len(featureNames))
	var missing []string

	entries, err := e.cache.GetMany(ctx, keys)
	if err != nil || len(entries) != len(keys) {
		// The cache tier reports failures as all-absent; anything else
		// here still degrades to a full store read.
		entries = make([]*cache.Entry, len(keys))
	}
	for i, entry := range entries {
		if entry == nil {
			missing = append(missing, featureNames[i])
			telemetry.RecordCacheMiss()
			continue
		}
		served[featureNames[i]] = ServedFeature{
			Value:            entry.Value,
			Timestamp:        entry.Timestamp,
			FreshnessSeconds: entry.FreshnessSeconds,
		}
		telemetry.RecordCacheHit()
	}

	if len(missing) > 0 {
		now := e.now().UTC()
		matrix, err := e.store.GetFeatures(ctx, []string{entityID}, missing, now)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrServeUnavailable, err)
		}

		backfill := make(map[string]*cache.Entry, len(missing))
		for name, sample := range matrix[entityID] {
			freshness := now.Sub(sample.Timestamp).Seconds()
			if freshness < 0 {
				freshness = 0
			}
			served[name] = ServedFeature{
				Value:            sample.Value,
				Timestamp:        sample.Timestamp,
				FreshnessSeconds: freshness,
			}
			backfill[cacheKey(entityID, name)] = &cache.Entry{
				Value:            sample.Value,
				Timestamp:        sample.Timestamp,
				FreshnessSeconds: freshness,
			}
		}
		if len(backfill) > 0 {
			go e.backfillCache(entityID, backfill)
		}
	}

	for _, f := range served {
		telemetry.ObserveFeatureFreshness(f.FreshnessSeconds)
	}

	source := SourceMixed
	switch {
	case len(missing) == 0:
		source = SourceCache
	case len(missing) == len(featureNames):
		source = SourceDatabase
	}
	telemetry.RecordServe(source)

	return &OnlineResult{
		EntityID: entityID,
		Features: served,
		Source:   source,
	}, nil
}

// GetBatchFeatures serves a point-in-time matrix for up to MaxBatchSize
// entities. Batch reads bypass the cache: historical as_of timestamps would
// poison it.
func (e *Engine) GetBatchFeatures(ctx context.Context, entityIDs, featureNames []string, asOf *time.Time) (*BatchResult, error) {
	if len(entityIDs) == 0 {
		return nil, feature.NewValidationError("entity_ids must be non-empty")
	}
	if len(entityIDs) > e.cfg.MaxBatchSize {
		return nil, feature.NewValidationError("entity_ids exceeds maximum batch size of %d, got %d", e.cfg.MaxBatchSize, len(entityIDs))
	}
	if len(featureNames) == 0 {
		return nil, feature.NewValidationError("feature_names must be non-empty")
	}

	ts := e.now().UTC()
	if asOf != nil {
		ts = asOf.UTC()
	}

	matrix, err := e.store.GetFeatures(ctx, entityIDs, featureNames, ts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServeUnavailable, err)
	}

	features := make(map[string]map[string]ServedFeature, len(matrix))
	for entityID, byName := range matrix {
		row := make(map[string]ServedFeature, len(byName))
		for name, sample := range byName {
			freshness := ts.Sub(sample.Timestamp).Seconds()
			if freshness < 0 {
				freshness = 0
			}
			row[name] = ServedFeature{
				Value:            sample.Value,
				Timestamp:        sample.Timestamp,
				FreshnessSeconds: freshness,
			}
		}
		features[entityID] = row
	}

	return &BatchResult{Features: features, Count: len(features)}, nil
}

// Invalidate removes every cached feature of one entity and returns the
// advisory count of deleted keys.
func (e *Engine) Invalidate(ctx context.Context, entityID string) (int, error) {
	if entityID == "" {
		return 0, feature.NewValidationError("entity_id is required")
	}
	count, err := e.cache.Invalidate(ctx, entityID+":*")
	if err != nil {
		return 0, err
	}
	telemetry.RecordCacheInvalidation(count)
	return count, nil
}

// WriteFeatures validates and forwards a batch write to the durable store.
// Writes never touch the cache; the pipeline that drove them invalidates
// when appropriate.
func (e *Engine) WriteFeatures(ctx context.Context, writes []database.FeatureWrite) error {
	if len(writes) == 0 {
		return feature.NewValidationError("batch must be non-empty")
	}
	for i, w := range writes {
		if w.FeatureID <= 0 {
			return feature.NewValidationError("row %d: feature_id must be positive", i)
		}
		if w.EntityID == "" {
			return feature.NewValidationError("row %d: entity_id is required", i)
		}
		if w.Timestamp.IsZero() {
			return feature.NewValidationError("row %d: timestamp is required", i)
		}
	}
	return e.store.WriteFeatures(ctx, writes)
}

// backfillCache writes store-fetched entries back to the cache off the
// request path. Failures are logged and dropped.
func (e *Engine) backfillCache(entityID string, entries map[string]*cache.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.BackfillTimeout)
	defer cancel()

	if err := e.cache.SetMany(ctx, entries, e.cfg.CacheTTL); err != nil {
		telemetry.L().WithFields(logrus.Fields{
			"entity_id": entityID,
			"entries":   len(entries),
		}).WithError(err).Warn("cache backfill failed")
	}
}

func cacheKey(entityID, featureName string) string {
	return entityID + ":" + featureName
}
