// Package cleanup prunes feature values that have outlived their
// feature's registered TTL.
package cleanup

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/birbparty/birb-feathers/internal/database"
	"github.com/birbparty/birb-feathers/internal/telemetry"
)

// expiredRowsQuery counts rows past their feature's ttl_hours.
const expiredRowsQuery = `
SELECT COUNT(*)
FROM feature_values fv
JOIN features f ON f.id = fv.feature_id
WHERE fv.timestamp < NOW() - make_interval(hours => f.ttl_hours)`

// pruneBatchQuery deletes one bounded batch of expired rows. ctid keeps
// the DELETE cheap on the hypertable; the caller loops until a batch
// comes back short.
const pruneBatchQuery = `
DELETE FROM feature_values
WHERE ctid IN (
    SELECT fv.ctid
    FROM feature_values fv
    JOIN features f ON f.id = fv.feature_id
    WHERE fv.timestamp < NOW() - make_interval(hours => f.ttl_hours)
    LIMIT $1
)`

// Service periodically removes feature values older than their TTL.
// The registry's ttl_hours is authoritative: bumping a feature's TTL
// immediately widens what the pruner keeps.
type Service struct {
	db     *database.DB
	config Config
}

// NewService creates a retention service on top of an existing pool.
func NewService(db *database.DB, config Config) *Service {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.BatchLimit <= 0 {
		config.BatchLimit = 10000
	}
	return &Service{db: db, config: config}
}

// Start runs the pruning loop until ctx is cancelled. The first cycle
// runs immediately.
func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	telemetry.L().WithFields(logrus.Fields{
		"interval":    s.config.Interval.String(),
		"batch_limit": s.config.BatchLimit,
		"dry_run":     s.config.DryRun,
	}).Info("Retention service started")

	s.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			telemetry.L().Info("Retention service stopped")
			return
		}
	}
}

// RunOnce prunes expired rows in batches until none remain.
func (s *Service) RunOnce(ctx context.Context) {
	start := time.Now()

	if s.config.DryRun {
		var expired int64
		if err := s.db.QueryRow(ctx, expiredRowsQuery).Scan(&expired); err != nil {
			telemetry.WithError(err).Warn("Retention dry-run count failed")
			return
		}
		telemetry.L().WithField("expired_rows", expired).Info("Retention dry run")
		return
	}

	var total int64
	for {
		tag, err := s.db.Exec(ctx, pruneBatchQuery, s.config.BatchLimit)
		if err != nil {
			telemetry.WithError(err).Warn("Retention batch failed")
			break
		}
		total += tag.RowsAffected()
		if tag.RowsAffected() < int64(s.config.BatchLimit) {
			break
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}

	telemetry.ObserveRetention(total, time.Since(start))
	if total > 0 {
		telemetry.L().WithFields(logrus.Fields{
			"rows_pruned": total,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("Retention cycle completed")
	}
}
