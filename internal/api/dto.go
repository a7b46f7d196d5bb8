package api

import (
	"time"

	"github.com/birbparty/birb-feathers/internal/feature"
)

// OnlineFeatureRequest asks for the freshest values of one entity.
type OnlineFeatureRequest struct {
	EntityID     string   `json:"entity_id"`
	FeatureNames []string `json:"feature_names"`
}

// FeatureValue is one served feature on the wire.
type FeatureValue struct {
	Value            feature.Value `json:"value"`
	Timestamp        time.Time     `json:"timestamp"`
	FreshnessSeconds float64       `json:"freshness_seconds"`
}

// OnlineFeatureResponse is the online read result. cache_hit mirrors
// all_from_cache for older clients.
type OnlineFeatureResponse struct {
	EntityID     string                  `json:"entity_id"`
	Features     map[string]FeatureValue `json:"features"`
	ServedAt     time.Time               `json:"served_at"`
	Source       string                  `json:"source"`
	AllFromCache bool                    `json:"all_from_cache"`
	CacheHit     bool                    `json:"cache_hit"`
}

// BatchFeatureRequest asks for a point-in-time matrix over many entities.
type BatchFeatureRequest struct {
	EntityIDs    []string   `json:"entity_ids"`
	FeatureNames []string   `json:"feature_names"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
}

// BatchFeatureValue is one matrix cell on the wire.
type BatchFeatureValue struct {
	Value     feature.Value `json:"value"`
	Timestamp time.Time     `json:"timestamp"`
}

// BatchFeatureResponse is the batch read result.
type BatchFeatureResponse struct {
	Features map[string]map[string]BatchFeatureValue `json:"features"`
	AsOf     time.Time                               `json:"as_of"`
	Count    int                                     `json:"count"`
}

// RegisterFeatureRequest registers or updates one feature schema.
type RegisterFeatureRequest struct {
	Name        string   `json:"name"`
	Version     int      `json:"version"`
	DType       string   `json:"dtype"`
	EntityType  string   `json:"entity_type"`
	TTLHours    int      `json:"ttl_hours"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// RegisterFeatureResponse acknowledges a registration.
type RegisterFeatureResponse struct {
	FeatureID int       `json:"feature_id"`
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// FeatureMetadata is one registry row on the wire.
type FeatureMetadata struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Version     int       `json:"version"`
	DType       string    `json:"dtype"`
	EntityType  string    `json:"entity_type"`
	TTLHours    int       `json:"ttl_hours"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListFeaturesResponse lists registry rows.
type ListFeaturesResponse struct {
	Features []FeatureMetadata `json:"features"`
	Count    int               `json:"count"`
}

// InvalidateResponse acknowledges a cache invalidation.
type InvalidateResponse struct {
	Status           string `json:"status"`
	EntityID         string `json:"entity_id"`
	InvalidatedCount int    `json:"invalidated_count"`
}

// HealthResponse is the liveness probe body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse is the readiness probe body.
type ReadinessResponse struct {
	Status   string `json:"status"`
	Database bool   `json:"database"`
	Cache    bool   `json:"cache"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeDependencyUnavailable = "DEPENDENCY_UNAVAILABLE"
	ErrCodeInternalError         = "INTERNAL_ERROR"
)

// NewErrorResponse creates a new error response
func NewErrorResponse(err string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error: err,
		Code:  code,
	}
}
