package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cymoe/Estimate-Wave-App-sub001/internal/store"
)

// pingStore wraps MemoryStore with a controllable Ping error.
type pingStore struct {
	*store.MemoryStore
	pingErr error
}

func (s *pingStore) Ping(_ context.Context) error { return s.pingErr }

type pingCache struct {
	pingErr error
}

func (c *pingCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *pingCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *pingCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *pingCache) Ping(_ context.Context) error                                     { return c.pingErr }
func (c *pingCache) SetJobStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (c *pingCache) GetJobStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (c *pingCache) SetJobProgress(_ context.Context, _ uuid.UUID, _, _ int, _ time.Duration) error {
	return nil
}
func (c *pingCache) GetJobProgress(_ context.Context, _ uuid.UUID) (int, int, bool, error) {
	return 0, 0, false, nil
}
func (c *pingCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 0, nil
}

func TestHealthHandler_AllHealthy(t *testing.T) {
	h := healthHandler(&pingStore{MemoryStore: store.NewMemoryStore()}, &pingCache{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
}

func TestHealthHandler_DatabaseDown(t *testing.T) {
	h := healthHandler(
		&pingStore{MemoryStore: store.NewMemoryStore(), pingErr: errors.New("down")},
		&pingCache{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DEGRADED", errObj["code"])
	details := errObj["details"].(map[string]any)
	assert.Equal(t, "degraded", details["database"])
	assert.Equal(t, "ok", details["cache"])
}

func TestHealthHandler_CacheDown(t *testing.T) {
	h := healthHandler(
		&pingStore{MemoryStore: store.NewMemoryStore()},
		&pingCache{pingErr: errors.New("down")})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
