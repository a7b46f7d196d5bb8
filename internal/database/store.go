package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/birbparty/birb-feathers/internal/feature"
	"github.com/birbparty/birb-feathers/internal/telemetry"
)

// getFeaturesQuery resolves, for every (entity, feature) pair, the single
// newest sample at or before the requested timestamp. Ties on timestamp are
// broken by the highest feature_id so repeated reads stay deterministic.
const getFeaturesQuery = `
SELECT DISTINCT ON (fv.entity_id, f.name)
    fv.entity_id, f.name, fv.value, fv.timestamp, fv.metadata
FROM feature_values fv
JOIN features f ON f.id = fv.feature_id
WHERE fv.entity_id = ANY($1)
  AND f.name = ANY($2)
  AND fv.timestamp <= $3
ORDER BY fv.entity_id, f.name, fv.timestamp DESC, fv.feature_id DESC`

const getHistoryQuery = `
SELECT fv.value, fv.timestamp, fv.metadata
FROM feature_values fv
JOIN features f ON f.id = fv.feature_id
WHERE fv.entity_id = $1
  AND f.name = $2
  AND fv.timestamp >= $3
  AND fv.timestamp <= $4
ORDER BY fv.timestamp ASC`

const upsertValueQuery = `
INSERT INTO feature_values (feature_id, entity_id, timestamp, value, metadata)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (feature_id, entity_id, timestamp)
DO UPDATE SET value = EXCLUDED.value, metadata = EXCLUDED.metadata`

// FeatureStore is the durable, point-in-time correct store backing the
// serving path. It owns no caching; the serving engine layers that on top.
type FeatureStore struct {
	db *DB
}

// NewFeatureStore creates a store on top of an existing pool.
func NewFeatureStore(db *DB) *FeatureStore {
	return &FeatureStore{db: db}
}

// GetFeatures returns the newest sample at or before ts for each requested
// (entity, feature) pair. Pairs with no qualifying sample are simply absent
// from the result; an empty matrix is not an error.
func (s *FeatureStore) GetFeatures(ctx context.Context, entityIDs, featureNames []string, ts time.Time) (FeatureMatrix, error) {
	if len(entityIDs) == 0 || len(featureNames) == 0 {
		return FeatureMatrix{}, nil
	}

	qctx, cancel := s.db.commandContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := s.db.Query(qctx, getFeaturesQuery, entityIDs, featureNames, ts.UTC())
	if err != nil {
		return nil, classify(err, "query features")
	}
	defer rows.Close()

	matrix := make(FeatureMatrix, len(entityIDs))
	for rows.Next() {
		var (
			entityID string
			name     string
			rawValue []byte
			sampleTS time.Time
			rawMeta  []byte
		)
		if err := rows.Scan(&entityID, &name, &rawValue, &sampleTS, &rawMeta); err != nil {
			return nil, classify(err, "scan feature row")
		}

		sample, err := decodeStoredFeature(rawValue, sampleTS, rawMeta)
		if err != nil {
			return nil, fmt.Errorf("decode feature %s for %s: %w", name, entityID, err)
		}

		if matrix[entityID] == nil {
			matrix[entityID] = make(map[string]StoredFeature, len(featureNames))
		}
		matrix[entityID][name] = sample
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "read feature rows")
	}

	telemetry.ObserveStoreQuery("get_features", time.Since(start))
	return matrix, nil
}

// GetFeatureHistory returns all samples for one (entity, feature) pair within
// [from, to], both bounds inclusive, in ascending timestamp order.
func (s *FeatureStore) GetFeatureHistory(ctx context.Context, entityID, featureName string, from, to time.Time) ([]StoredFeature, error) {
	qctx, cancel := s.db.commandContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := s.db.Query(qctx, getHistoryQuery, entityID, featureName, from.UTC(), to.UTC())
	if err != nil {
		return nil, classify(err, "query feature history")
	}
	defer rows.Close()

	var history []StoredFeature
	for rows.Next() {
		var (
			rawValue []byte
			sampleTS time.Time
			rawMeta  []byte
		)
		if err := rows.Scan(&rawValue, &sampleTS, &rawMeta); err != nil {
			return nil, classify(err, "scan history row")
		}
		sample, err := decodeStoredFeature(rawValue, sampleTS, rawMeta)
		if err != nil {
			return nil, fmt.Errorf("decode history for %s/%s: %w", entityID, featureName, err)
		}
		history = append(history, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "read history rows")
	}

	telemetry.ObserveStoreQuery("get_history", time.Since(start))
	return history, nil
}

// WriteFeatures upserts a batch of samples in a single transaction. Either
// the whole batch lands or none of it does; any failure rolls back and
// surfaces as ErrWriteFailed so the producer can retry the batch verbatim.
func (s *FeatureStore) WriteFeatures(ctx context.Context, writes []FeatureWrite) error {
	if len(writes) == 0 {
		return nil
	}

	qctx, cancel := s.db.commandContext(ctx)
	defer cancel()

	start := time.Now()
	tx, err := s.db.BeginTx(qctx, pgx.TxOptions{})
	if err != nil {
		return classify(err, "begin write transaction")
	}

	batch := &pgx.Batch{}
	for i, w := range writes {
		rawValue, err := json.Marshal(w.Value)
		if err != nil {
			_ = tx.Rollback(qctx)
			return fmt.Errorf("%w: encode value at index %d: %v", ErrWriteFailed, i, err)
		}
		var rawMeta []byte
		if len(w.Metadata) > 0 {
			rawMeta, err = json.Marshal(w.Metadata)
			if err != nil {
				_ = tx.Rollback(qctx)
				return fmt.Errorf("%w: encode metadata at index %d: %v", ErrWriteFailed, i, err)
			}
		}
		batch.Queue(upsertValueQuery, w.FeatureID, w.EntityID, w.Timestamp.UTC(), rawValue, rawMeta)
	}

	br := tx.SendBatch(qctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			_ = tx.Rollback(qctx)
			telemetry.L().WithFields(logrus.Fields{
				"batch_size": len(writes),
				"index":      i,
			}).WithError(err).Error("feature batch write rolled back")
			return fmt.Errorf("%w: row %d: %v", ErrWriteFailed, i, err)
		}
	}
	if err := br.Close(); err != nil {
		_ = tx.Rollback(qctx)
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	if err := tx.Commit(qctx); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrWriteFailed, err)
	}

	telemetry.ObserveStoreWrite(len(writes), time.Since(start))
	return nil
}

func decodeStoredFeature(rawValue []byte, ts time.Time, rawMeta []byte) (StoredFeature, error) {
	var val feature.Value
	if err := json.Unmarshal(rawValue, &val); err != nil {
		return StoredFeature{}, fmt.Errorf("unmarshal value: %w", err)
	}

	var meta map[string]interface{}
	if len(rawMeta) > 0 {
		if err := json.Unmarshal(rawMeta, &meta); err != nil {
			return StoredFeature{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return StoredFeature{Value: val, Timestamp: ts.UTC(), Metadata: meta}, nil
}
