package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/birb-feathers/internal/api"
	"github.com/birbparty/birb-feathers/internal/database"
	"github.com/birbparty/birb-feathers/internal/feature"
)

const testAPIKey = "integration-test-key"

// newTestAPI builds a fiber app wired to the real engine, registry, and
// containers, the same way cmd/api does.
func newTestAPI() *fiber.App {
	handler := api.NewHandler(testEngine, testRegistry, testDB, testCache)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	api.SetupMiddleware(app)
	api.SetupRoutes(app, handler, &api.Config{
		APIKeys: map[string]string{testAPIKey: "integration"},
	})
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeInto[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	return out
}

func TestAPI_EndToEndServing(t *testing.T) {
	resetAll(t)
	app := newTestAPI()

	// Register a feature over HTTP.
	resp := doRequest(t, app, http.MethodPost, "/api/v1/features/register", api.RegisterFeatureRequest{
		Name:       "purchase_count_7d",
		Version:    1,
		DType:      "int64",
		EntityType: "user",
		TTLHours:   24,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	reg := decodeInto[api.RegisterFeatureResponse](t, resp)
	assert.Equal(t, "registered", reg.Status)
	require.Greater(t, reg.FeatureID, 0)

	// Seed a value directly through the store.
	mustWrite(t, []database.FeatureWrite{{
		FeatureID: reg.FeatureID,
		EntityID:  "u1",
		Timestamp: time.Now().UTC().Add(-time.Minute),
		Value:     feature.Int64(12),
	}})

	// First online read comes from the database.
	resp = doRequest(t, app, http.MethodPost, "/api/v1/features/online", api.OnlineFeatureRequest{
		EntityID:     "u1",
		FeatureNames: []string{"purchase_count_7d"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	online := decodeInto[api.OnlineFeatureResponse](t, resp)
	assert.Equal(t, "database", online.Source)
	assert.False(t, online.CacheHit)
	require.Contains(t, online.Features, "purchase_count_7d")

	// Backfill warms the cache for subsequent reads.
	assert.Eventually(t, func() bool {
		resp := doRequest(t, app, http.MethodPost, "/api/v1/features/online", api.OnlineFeatureRequest{
			EntityID:     "u1",
			FeatureNames: []string{"purchase_count_7d"},
		})
		if resp.StatusCode != http.StatusOK {
			return false
		}
		online := decodeInto[api.OnlineFeatureResponse](t, resp)
		return online.Source == "cache" && online.AllFromCache
	}, 5*time.Second, 50*time.Millisecond)

	// Invalidate over HTTP and verify the next read hits the database.
	resp = doRequest(t, app, http.MethodDelete, "/api/v1/cache/invalidate/u1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	inv := decodeInto[api.InvalidateResponse](t, resp)
	assert.Greater(t, inv.InvalidatedCount, 0)

	resp = doRequest(t, app, http.MethodPost, "/api/v1/features/online", api.OnlineFeatureRequest{
		EntityID:     "u1",
		FeatureNames: []string{"purchase_count_7d"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	online = decodeInto[api.OnlineFeatureResponse](t, resp)
	assert.Equal(t, "database", online.Source)
}

func TestAPI_BatchEndpoint(t *testing.T) {
	resetAll(t)
	app := newTestAPI()

	id := mustRegister(t, "churn_score", 1, "float64", "user")
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mustWrite(t, []database.FeatureWrite{
		{FeatureID: id, EntityID: "u1", Timestamp: base, Value: feature.Float64(0.2)},
		{FeatureID: id, EntityID: "u2", Timestamp: base, Value: feature.Float64(0.8)},
	})

	asOf := base.Add(time.Minute)
	resp := doRequest(t, app, http.MethodPost, "/api/v1/features/batch", api.BatchFeatureRequest{
		EntityIDs:    []string{"u1", "u2"},
		FeatureNames: []string{"churn_score"},
		Timestamp:    &asOf,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	batch := decodeInto[api.BatchFeatureResponse](t, resp)
	assert.Equal(t, 2, batch.Count)
	assert.True(t, batch.AsOf.Equal(asOf))
}

func TestAPI_RegistryEndpoints(t *testing.T) {
	resetAll(t)
	app := newTestAPI()

	mustRegister(t, "purchase_count_7d", 1, "int64", "user")
	mustRegister(t, "purchase_count_7d", 2, "int64", "user")

	resp := doRequest(t, app, http.MethodGet, "/api/v1/features/purchase_count_7d", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	meta := decodeInto[api.FeatureMetadata](t, resp)
	assert.Equal(t, 2, meta.Version, "unversioned lookup resolves the latest")

	resp = doRequest(t, app, http.MethodGet, "/api/v1/features/purchase_count_7d?version=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	meta = decodeInto[api.FeatureMetadata](t, resp)
	assert.Equal(t, 1, meta.Version)

	resp = doRequest(t, app, http.MethodGet, "/api/v1/features/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = doRequest(t, app, http.MethodGet, "/api/v1/features/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeInto[api.ListFeaturesResponse](t, resp)
	assert.Equal(t, 2, list.Count)
}

func TestAPI_AuthRequired(t *testing.T) {
	app := newTestAPI()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/features/", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Probes stay open.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_Readiness(t *testing.T) {
	app := newTestAPI()

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ready := decodeInto[api.ReadinessResponse](t, resp)
	assert.True(t, ready.Database)
	assert.True(t, ready.Cache)
}
