package api

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/birbparty/birb-feathers/internal/database"
	"github.com/birbparty/birb-feathers/internal/feature"
	"github.com/birbparty/birb-feathers/internal/serving"
	"github.com/birbparty/birb-feathers/internal/telemetry"
)

// Engine is the serving surface the handlers depend on.
type Engine interface {
	GetOnlineFeatures(ctx context.Context, entityID string, featureNames []string) (*serving.OnlineResult, error)
	GetBatchFeatures(ctx context.Context, entityIDs, featureNames []string, asOf *time.Time) (*serving.BatchResult, error)
	Invalidate(ctx context.Context, entityID string) (int, error)
}

// Registry is the schema catalog surface the handlers depend on.
type Registry interface {
	Register(ctx context.Context, schema *database.FeatureSchema) (*database.FeatureSchema, error)
	GetFeature(ctx context.Context, name string, version *int) (*database.FeatureSchema, error)
	ListFeatures(ctx context.Context, entityType string) ([]database.FeatureSchema, error)
}

// HealthChecker reports durable store connectivity.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Pinger reports cache tier connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for API handlers
type Handler struct {
	engine   Engine
	registry Registry
	db       HealthChecker
	cache    Pinger
}

// NewHandler creates a new handler instance
func NewHandler(engine Engine, registry Registry, db HealthChecker, cache Pinger) *Handler {
	return &Handler{
		engine:   engine,
		registry: registry,
		db:       db,
		cache:    cache,
	}
}

// GetOnlineFeatures handles POST /api/v1/features/online
func (h *Handler) GetOnlineFeatures(c *fiber.Ctx) error {
	var req OnlineFeatureRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse("Invalid request body", ErrCodeInvalidRequest),
		)
	}

	res, err := h.engine.GetOnlineFeatures(c.UserContext(), req.EntityID, req.FeatureNames)
	if err != nil {
		return respondError(c, err)
	}

	features := make(map[string]FeatureValue, len(res.Features))
	for name, f := range res.Features {
		features[name] = FeatureValue{
			Value:            f.Value,
			Timestamp:        f.Timestamp,
			FreshnessSeconds: f.FreshnessSeconds,
		}
	}

	return c.JSON(&OnlineFeatureResponse{
		EntityID:     res.EntityID,
		Features:     features,
		ServedAt:     time.Now().UTC(),
		Source:       res.Source,
		AllFromCache: res.AllFromCache(),
		CacheHit:     res.AllFromCache(),
	})
}

// GetBatchFeatures handles POST /api/v1/features/batch
func (h *Handler) GetBatchFeatures(c *fiber.Ctx) error {
	var req BatchFeatureRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse("Invalid request body", ErrCodeInvalidRequest),
		)
	}

	asOf := time.Now().UTC()
	if req.Timestamp != nil {
		asOf = req.Timestamp.UTC()
	}

	res, err := h.engine.GetBatchFeatures(c.UserContext(), req.EntityIDs, req.FeatureNames, &asOf)
	if err != nil {
		return respondError(c, err)
	}

	features := make(map[string]map[string]BatchFeatureValue, len(res.Features))
	for entityID, byName := range res.Features {
		row := make(map[string]BatchFeatureValue, len(byName))
		for name, f := range byName {
			row[name] = BatchFeatureValue{Value: f.Value, Timestamp: f.Timestamp}
		}
		features[entityID] = row
	}

	return c.JSON(&BatchFeatureResponse{
		Features: features,
		AsOf:     asOf,
		Count:    res.Count,
	})
}

// RegisterFeature handles POST /api/v1/features/register
func (h *Handler) RegisterFeature(c *fiber.Ctx) error {
	var req RegisterFeatureRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse("Invalid request body", ErrCodeInvalidRequest),
		)
	}

	schema, err := h.registry.Register(c.UserContext(), &database.FeatureSchema{
		Name:        req.Name,
		Version:     req.Version,
		DType:       req.DType,
		EntityType:  req.EntityType,
		TTLHours:    req.TTLHours,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		return respondError(c, err)
	}

	telemetry.WithContext(c.UserContext()).WithField("feature", schema.Name).Info("Feature registered")

	return c.JSON(&RegisterFeatureResponse{
		FeatureID: schema.ID,
		Name:      schema.Name,
		Version:   schema.Version,
		Status:    "registered",
		CreatedAt: schema.CreatedAt,
	})
}

// ListFeatures handles GET /api/v1/features
func (h *Handler) ListFeatures(c *fiber.Ctx) error {
	schemas, err := h.registry.ListFeatures(c.UserContext(), c.Query("entity_type"))
	if err != nil {
		return respondError(c, err)
	}

	features := make([]FeatureMetadata, 0, len(schemas))
	for _, s := range schemas {
		features = append(features, toFeatureMetadata(&s))
	}

	return c.JSON(&ListFeaturesResponse{Features: features, Count: len(features)})
}

// GetFeature handles GET /api/v1/features/:name
func (h *Handler) GetFeature(c *fiber.Ctx) error {
	name := c.Params("name")

	var version *int
	if raw := c.Query("version"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(
				NewErrorResponse("Invalid version parameter", ErrCodeInvalidRequest),
			)
		}
		version = &v
	}

	schema, err := h.registry.GetFeature(c.UserContext(), name, version)
	if err != nil {
		return respondError(c, err)
	}

	meta := toFeatureMetadata(schema)
	return c.JSON(&meta)
}

// InvalidateCache handles DELETE /api/v1/cache/invalidate/:entity_id
func (h *Handler) InvalidateCache(c *fiber.Ctx) error {
	entityID := c.Params("entity_id")

	count, err := h.engine.Invalidate(c.UserContext(), entityID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(&InvalidateResponse{
		Status:           "success",
		EntityID:         entityID,
		InvalidatedCount: count,
	})
}

// Health handles GET /health
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(&HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}

// Ready handles GET /ready. Readiness requires both the durable store and
// the cache tier; a degraded cache makes reads slower, not wrong, but a new
// pod should not take traffic with half its dependencies down.
func (h *Handler) Ready(c *fiber.Ctx) error {
	ctx := c.UserContext()

	dbOK := h.db.Health(ctx) == nil
	cacheOK := h.cache.Ping(ctx) == nil

	if !dbOK || !cacheOK {
		return c.Status(fiber.StatusServiceUnavailable).JSON(&ReadinessResponse{
			Status:   "not_ready",
			Database: dbOK,
			Cache:    cacheOK,
		})
	}

	return c.JSON(&ReadinessResponse{
		Status:   "ready",
		Database: true,
		Cache:    true,
	})
}

func toFeatureMetadata(s *database.FeatureSchema) FeatureMetadata {
	return FeatureMetadata{
		ID:          s.ID,
		Name:        s.Name,
		Version:     s.Version,
		DType:       s.DType,
		EntityType:  s.EntityType,
		TTLHours:    s.TTLHours,
		Description: s.Description,
		Tags:        s.Tags,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// respondError maps domain errors onto the HTTP status taxonomy.
func respondError(c *fiber.Ctx, err error) error {
	var verr *feature.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse(verr.Error(), ErrCodeInvalidRequest),
		)
	case errors.Is(err, database.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(
			NewErrorResponse("Feature not found", ErrCodeNotFound),
		)
	case errors.Is(err, serving.ErrServeUnavailable),
		errors.Is(err, database.ErrRegistryUnavailable),
		errors.Is(err, database.ErrStoreUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(
			NewErrorResponse("Dependency unavailable", ErrCodeDependencyUnavailable),
		)
	default:
		telemetry.WithError(err).Error("Unhandled request error")
		return c.Status(fiber.StatusInternalServerError).JSON(
			NewErrorResponse("Internal server error", ErrCodeInternalError),
		)
	}
}
