package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/birbparty/birb-feathers/internal/feature"
	"github.com/birbparty/birb-feathers/internal/telemetry"
)

const registerFeatureQuery = `
INSERT INTO features (name, version, dtype, entity_type, ttl_hours, description, tags)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (name, version)
DO UPDATE SET
    dtype = EXCLUDED.dtype,
    entity_type = EXCLUDED.entity_type,
    ttl_hours = EXCLUDED.ttl_hours,
    description = EXCLUDED.description,
    tags = EXCLUDED.tags,
    updated_at = NOW()
RETURNING id, created_at, updated_at`

const getFeatureQuery = `
SELECT id, name, version, dtype, entity_type, ttl_hours, description, tags, created_at, updated_at
FROM features
WHERE name = $1 AND version = $2`

const getLatestFeatureQuery = `
SELECT id, name, version, dtype, entity_type, ttl_hours, description, tags, created_at, updated_at
FROM features
WHERE name = $1
ORDER BY version DESC
LIMIT 1`

const getFeatureByIDQuery = `
SELECT id, name, version, dtype, entity_type, ttl_hours, description, tags, created_at, updated_at
FROM features
WHERE id = $1`

const listFeaturesQuery = `
SELECT id, name, version, dtype, entity_type, ttl_hours, description, tags, created_at, updated_at
FROM features
WHERE ($1 = '' OR entity_type = $1)
ORDER BY name, version`

// FeatureRegistry owns the feature schema catalog. Registrations are
// versioned upserts: re-registering (name, version) replaces the schema
// in place rather than erroring.
type FeatureRegistry struct {
	db *DB
}

// NewFeatureRegistry creates a registry on top of an existing pool.
func NewFeatureRegistry(db *DB) *FeatureRegistry {
	return &FeatureRegistry{db: db}
}

// Register validates and upserts one feature schema. The returned schema
// carries the assigned ID and timestamps.
func (r *FeatureRegistry) Register(ctx context.Context, schema *FeatureSchema) (*FeatureSchema, error) {
	if err := validateSchema(schema); err != nil {
		return nil, err
	}

	qctx, cancel := r.db.commandContext(ctx)
	defer cancel()

	start := time.Now()
	out := *schema
	err := r.db.QueryRow(qctx, registerFeatureQuery,
		schema.Name, schema.Version, schema.DType, schema.EntityType,
		schema.TTLHours, schema.Description, schema.Tags,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, classifyRegistry(err, "register feature")
	}

	telemetry.ObserveStoreQuery("register_feature", time.Since(start))
	return &out, nil
}

// GetFeature resolves a schema by name. A nil version means the highest
// registered version.
func (r *FeatureRegistry) GetFeature(ctx context.Context, name string, version *int) (*FeatureSchema, error) {
	qctx, cancel := r.db.commandContext(ctx)
	defer cancel()

	var row pgx.Row
	if version != nil {
		row = r.db.QueryRow(qctx, getFeatureQuery, name, *version)
	} else {
		row = r.db.QueryRow(qctx, getLatestFeatureQuery, name)
	}
	return scanSchema(row, "get feature")
}

// GetFeatureByID resolves a schema by its registry ID.
func (r *FeatureRegistry) GetFeatureByID(ctx context.Context, id int) (*FeatureSchema, error) {
	qctx, cancel := r.db.commandContext(ctx)
	defer cancel()

	return scanSchema(r.db.QueryRow(qctx, getFeatureByIDQuery, id), "get feature by id")
}

// ListFeatures returns all registered schemas, optionally filtered by
// entity type, ordered by name then version.
func (r *FeatureRegistry) ListFeatures(ctx context.Context, entityType string) ([]FeatureSchema, error) {
	qctx, cancel := r.db.commandContext(ctx)
	defer cancel()

	rows, err := r.db.Query(qctx, listFeaturesQuery, entityType)
	if err != nil {
		return nil, classifyRegistry(err, "list features")
	}
	defer rows.Close()

	var schemas []FeatureSchema
	for rows.Next() {
		var s FeatureSchema
		if err := rows.Scan(&s.ID, &s.Name, &s.Version, &s.DType, &s.EntityType,
			&s.TTLHours, &s.Description, &s.Tags, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, classifyRegistry(err, "scan feature schema")
		}
		schemas = append(schemas, s)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyRegistry(err, "read feature schemas")
	}
	return schemas, nil
}

// Health checks registry pool connectivity.
func (r *FeatureRegistry) Health(ctx context.Context) error {
	return r.db.Health(ctx)
}

func scanSchema(row pgx.Row, op string) (*FeatureSchema, error) {
	var s FeatureSchema
	err := row.Scan(&s.ID, &s.Name, &s.Version, &s.DType, &s.EntityType,
		&s.TTLHours, &s.Description, &s.Tags, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyRegistry(err, op)
	}
	return &s, nil
}

func validateSchema(s *FeatureSchema) error {
	if s == nil {
		return feature.NewValidationError("schema is required")
	}
	if len(s.Name) == 0 || len(s.Name) > 255 {
		return feature.NewValidationError("feature name must be 1-255 characters, got %d", len(s.Name))
	}
	if s.Version < 1 {
		return feature.NewValidationError("feature version must be >= 1, got %d", s.Version)
	}
	if !feature.ValidDType(s.DType) {
		return feature.NewValidationError("unsupported dtype %q", s.DType)
	}
	if s.EntityType == "" {
		return feature.NewValidationError("entity_type is required")
	}
	if s.TTLHours < 1 {
		return feature.NewValidationError("ttl_hours must be >= 1, got %d", s.TTLHours)
	}
	return nil
}
