package database

import (
	"time"

	"github.com/birbparty/birb-feathers/internal/feature"
)

// FeatureSchema is a row in the feature registry.
type FeatureSchema struct {
	ID          int       `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Version     int       `db:"version" json:"version"`
	DType       string    `db:"dtype" json:"dtype"`
	EntityType  string    `db:"entity_type" json:"entity_type"`
	TTLHours    int       `db:"ttl_hours" json:"ttl_hours"`
	Description string    `db:"description" json:"description"`
	Tags        []string  `db:"tags" json:"tags,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// StoredFeature is one feature sample as returned by the durable store.
type StoredFeature struct {
	Value     feature.Value          `json:"value"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// FeatureWrite is one row of a write batch. (FeatureID, EntityID, Timestamp)
// is the upsert key; a repeated write overwrites value and metadata.
type FeatureWrite struct {
	FeatureID int                    `json:"feature_id"`
	EntityID  string                 `json:"entity_id"`
	Timestamp time.Time              `json:"timestamp"`
	Value     feature.Value          `json:"value"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// FeatureMatrix maps entity_id -> feature_name -> sample.
type FeatureMatrix map[string]map[string]StoredFeature
