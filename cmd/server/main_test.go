package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harora-WM/chaos-engineering-api/internal/cache"
	"github.com/harora-WM/chaos-engineering-api/internal/config"
	"github.com/harora-WM/chaos-engineering-api/internal/llm"
	"github.com/harora-WM/chaos-engineering-api/internal/llm/mock"
	"github.com/harora-WM/chaos-engineering-api/internal/llm/provider"
	"github.com/harora-WM/chaos-engineering-api/internal/opensearch"
	"github.com/harora-WM/chaos-engineering-api/internal/store"
	"github.com/harora-WM/chaos-engineering-api/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── mock store ──────────────────────────────────────────────────────────────

type testStore struct {
	pingErr error

	mu   sync.Mutex
	runs []*models.GenerationRun
}

func (s *testStore) Ping(_ context.Context) error { return s.pingErr }
func (s *testStore) CreateRun(_ context.Context, run *models.GenerationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}
func (s *testStore) ListRuns(_ context.Context, _ store.RunFilter) ([]*models.GenerationRun, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, len(s.runs), nil
}
func (s *testStore) GetRun(_ context.Context, _ uuid.UUID) (*models.GenerationRun, error) {
	return nil, store.ErrNotFound
}

var _ store.Store = (*testStore)(nil)

// ─── mock cache ──────────────────────────────────────────────────────────────

type testCache struct {
	pingErr error
}

func (c *testCache) Ping(_ context.Context) error { return c.pingErr }
func (c *testCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}
func (c *testCache) Close() error { return nil }

var _ cache.Cache = (*testCache)(nil)

// ─── mock opensearch ────────────────────────────────────────────────────────

type testClient struct{}

func (testClient) TestConnection(_ context.Context) (bool, string) {
	return true, "Connected to OpenSearch v2.11.0"
}
func (testClient) ListIndices(_ context.Context) ([]models.IndexInfo, error) { return nil, nil }
func (testClient) FetchSample(_ context.Context, _ string) models.IndexFetchResult {
	return models.IndexFetchResult{
		Success:    true,
		Mapping:    map[string]any{},
		Documents:  []map[string]any{{"message": "upstream timeout", "level": "ERROR"}},
		SampleSize: 1,
		TotalHits:  1,
	}
}

func testClients(seen *[]models.OpenSearchConnection) opensearch.Factory {
	return func(conn models.OpenSearchConnection) opensearch.Client {
		*seen = append(*seen, conn)
		return testClient{}
	}
}

func testInvokers(reply string) provider.Factory {
	return func(context.Context, models.ModelSelection) (*llm.Invoker, error) {
		return llm.NewInvoker(mock.NewMockModel(reply)), nil
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{CORSOrigins: []string{"*"}, RateLimitPerMinute: 30},
		OpenSearch: config.OpenSearchConfig{
			Endpoint: "http://opensearch:9200",
			Username: "admin",
			Password: "secret",
		},
	}
}

// ─── health handler tests ───────────────────────────────────────────────────

func healthBody(t *testing.T, h http.HandlerFunc) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestHealthHandler_AllOK(t *testing.T) {
	code, body := healthBody(t, healthHandler(&testStore{}, &testCache{}))

	assert.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, "chaos-engineering-api", data["service"])
	services := data["services"].(map[string]any)
	assert.Equal(t, "ok", services["database"])
	assert.Equal(t, "ok", services["cache"])
}

func TestHealthHandler_Disabled(t *testing.T) {
	code, body := healthBody(t, healthHandler(nil, nil))

	assert.Equal(t, http.StatusOK, code)
	services := body["data"].(map[string]any)["services"].(map[string]any)
	assert.Equal(t, "disabled", services["database"])
	assert.Equal(t, "disabled", services["cache"])
}

func TestHealthHandler_DatabaseDegraded(t *testing.T) {
	code, body := healthBody(t, healthHandler(&testStore{pingErr: errors.New("connection refused")}, nil))

	assert.Equal(t, http.StatusServiceUnavailable, code)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DEGRADED", errObj["code"])
	details := errObj["details"].(map[string]any)
	assert.Equal(t, "degraded", details["database"])
	assert.Equal(t, "disabled", details["cache"])
}

func TestHealthHandler_CacheDegraded(t *testing.T) {
	code, _ := healthBody(t, healthHandler(&testStore{}, &testCache{pingErr: errors.New("redis down")}))
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

// ─── router wiring tests ────────────────────────────────────────────────────

func TestNewRouter_UsesConfiguredOpenSearchDefaults(t *testing.T) {
	var seen []models.OpenSearchConnection
	router := newRouter(testConfig(), nil, nil, testInvokers("# Plan"), testClients(&seen))

	req := httptest.NewRequest(http.MethodPost, "/api/opensearch/test-connection", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, seen, 1)
	assert.Equal(t, models.OpenSearchConnection{
		Endpoint: "http://opensearch:9200",
		Username: "admin",
		Password: "secret",
	}, seen[0])
}

func TestNewRouter_RecordsRuns(t *testing.T) {
	var seen []models.OpenSearchConnection
	st := &testStore{}
	router := newRouter(testConfig(), st, &testCache{}, testInvokers("# Chaos Plan"), testClients(&seen))

	req := httptest.NewRequest(http.MethodPost, "/api/chaos/generate", strings.NewReader(`{"index_name":"app-logs"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "30", w.Header().Get("X-RateLimit-Limit"))

	require.Len(t, st.runs, 1)
	assert.Equal(t, "app-logs", st.runs[0].IndexName)
	assert.True(t, st.runs[0].Success)
}

func TestNewRouter_RunsDisabledWithoutDatabase(t *testing.T) {
	var seen []models.OpenSearchConnection
	router := newRouter(testConfig(), nil, nil, testInvokers("# Plan"), testClients(&seen))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chaos/runs", nil))

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

// ─── run() startup tests ────────────────────────────────────────────────────

func TestRun_FailsOnInvalidConfig(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "nope")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_FailsOnInvalidDatabaseURL(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "bedrock")
	t.Setenv("DATABASE_URL", "not-a-valid-url")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect database")
}

func TestRun_FailsOnInvalidRedisURL(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "bedrock")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "://bad")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create redis cache")
}

// ─── shutdown timeout constant test ─────────────────────────────────────────

func TestShutdownTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, shutdownTimeout)
}
