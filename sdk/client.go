package sdk

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Client is a feature store client. All methods are safe for concurrent
// use by multiple goroutines.
//
// Example:
//
//	client, err := sdk.NewClient(sdk.DefaultConfig().WithAPIKey("key"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	resp, err := client.GetOnlineFeatures(ctx, &sdk.OnlineFeatureRequest{
//	    EntityID:     "user:123",
//	    FeatureNames: []string{"purchase_count_7d"},
//	})
type Client interface {
	// GetOnlineFeatures returns the freshest known values of the named
	// features for one entity. Features with no stored value are absent
	// from the response map.
	GetOnlineFeatures(ctx context.Context, req *OnlineFeatureRequest) (*OnlineFeatureResponse, error)

	// GetBatchFeatures returns a point-in-time feature matrix over many
	// entities. A nil Timestamp means "now".
	GetBatchFeatures(ctx context.Context, req *BatchFeatureRequest) (*BatchFeatureResponse, error)

	// RegisterFeature registers or updates a feature schema.
	// Re-registering the same (name, version) replaces the schema.
	RegisterFeature(ctx context.Context, req *RegisterFeatureRequest) (*RegisterFeatureResponse, error)

	// GetFeature looks up a registered feature by name. A nil version
	// resolves the highest registered version.
	GetFeature(ctx context.Context, name string, version *int) (*FeatureMetadata, error)

	// ListFeatures lists registered features, optionally filtered by
	// entity type (pass "" for all).
	ListFeatures(ctx context.Context, entityType string) (*ListFeaturesResponse, error)

	// InvalidateEntity drops all cached feature values for one entity.
	InvalidateEntity(ctx context.Context, entityID string) (*InvalidateResponse, error)

	// Ping checks connectivity to the server. Useful for health checks.
	Ping(ctx context.Context) error

	// Close releases all resources. Safe to call multiple times.
	Close() error
}

// OnlineFeatureRequest asks for the freshest values of one entity.
type OnlineFeatureRequest struct {
	EntityID     string   `json:"entity_id"`
	FeatureNames []string `json:"feature_names"`
}

// FeatureValue is one served feature value.
type FeatureValue struct {
	Value            interface{} `json:"value"`
	Timestamp        time.Time   `json:"timestamp"`
	FreshnessSeconds float64     `json:"freshness_seconds"`
}

// OnlineFeatureResponse is the online read result. Source is "cache",
// "database", or "mixed" depending on where values came from.
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

// BatchFeatureValue is one matrix cell.
type BatchFeatureValue struct {
	Value     interface{} `json:"value"`
	Timestamp time.Time   `json:"timestamp"`
}

// BatchFeatureResponse is the batch read result, keyed by entity then
// feature name.
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

// FeatureMetadata is one registry entry.
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

// ListFeaturesResponse lists registry entries.
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

// healthResponse is the liveness probe body.
type healthResponse struct {
	Status string `json:"status"`
}

// client is the concrete Client implementation.
type client struct {
	transport *httpTransport
	config    *Config
	mu        sync.RWMutex
	closed    bool
}

// NewClient creates a feature store client with the provided
// configuration. If config is nil, defaults are used.
func NewClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	transport, err := newHTTPTransport(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	return &client{
		transport: transport,
		config:    config,
	}, nil
}

func (c *client) GetOnlineFeatures(ctx context.Context, req *OnlineFeatureRequest) (*OnlineFeatureResponse, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if req == nil || req.EntityID == "" {
		return nil, fmt.Errorf("%w: entity_id is required", ErrInvalidRequest)
	}
	if len(req.FeatureNames) == 0 {
		return nil, fmt.Errorf("%w: feature_names is required", ErrInvalidRequest)
	}

	var resp OnlineFeatureResponse
	if err := c.transport.post(ctx, "/api/v1/features/online", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *client) GetBatchFeatures(ctx context.Context, req *BatchFeatureRequest) (*BatchFeatureResponse, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if req == nil || len(req.EntityIDs) == 0 {
		return nil, fmt.Errorf("%w: entity_ids is required", ErrInvalidRequest)
	}
	if len(req.FeatureNames) == 0 {
		return nil, fmt.Errorf("%w: feature_names is required", ErrInvalidRequest)
	}

	var resp BatchFeatureResponse
	if err := c.transport.post(ctx, "/api/v1/features/batch", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *client) RegisterFeature(ctx context.Context, req *RegisterFeatureRequest) (*RegisterFeatureResponse, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if req == nil || req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}

	var resp RegisterFeatureResponse
	if err := c.transport.post(ctx, "/api/v1/features/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *client) GetFeature(ctx context.Context, name string, version *int) (*FeatureMetadata, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}

	path := buildPath("/api/v1/features/{0}", name)
	if version != nil {
		path += "?version=" + strconv.Itoa(*version)
	}

	var resp FeatureMetadata
	if err := c.transport.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *client) ListFeatures(ctx context.Context, entityType string) (*ListFeaturesResponse, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	path := "/api/v1/features/"
	if entityType != "" {
		path += "?entity_type=" + url.QueryEscape(entityType)
	}

	var resp ListFeaturesResponse
	if err := c.transport.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *client) InvalidateEntity(ctx context.Context, entityID string) (*InvalidateResponse, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if entityID == "" {
		return nil, fmt.Errorf("%w: entity_id is required", ErrInvalidRequest)
	}

	var resp InvalidateResponse
	path := buildPath("/api/v1/cache/invalidate/{0}", entityID)
	if err := c.transport.delete(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *client) Ping(ctx context.Context) error {
	if err := c.checkClosed(); err != nil {
		return err
	}

	var resp healthResponse
	if err := c.transport.get(ctx, "/health", &resp); err != nil {
		return err
	}
	if resp.Status != "healthy" {
		return fmt.Errorf("server is not healthy: %s", resp.Status)
	}
	return nil
}

func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.transport.close()
}

func (c *client) checkClosed() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}
	return nil
}
