package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Cymoe/Estimate-Wave-App-sub001/internal/api"
	mw "github.com/Cymoe/Estimate-Wave-App-sub001/internal/api/middleware"
	"github.com/Cymoe/Estimate-Wave-App-sub001/internal/store"
	"github.com/Cymoe/Estimate-Wave-App-sub001/pkg/models"
)

type stubCache struct{ counter int64 }

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *stubCache) Ping(_ context.Context) error                                     { return nil }
func (c *stubCache) SetJobStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (c *stubCache) GetJobStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (c *stubCache) SetJobProgress(_ context.Context, _ uuid.UUID, _, _ int, _ time.Duration) error {
	return nil
}
func (c *stubCache) GetJobProgress(_ context.Context, _ uuid.UUID) (int, int, bool, error) {
	return 0, 0, false, nil
}
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	c.counter++
	return c.counter, nil
}

const testRawKey = "pb_routertestkey1234"

func newTestRouter(t *testing.T, scopes []string) http.Handler {
	t.Helper()
	st := store.NewMemoryStore()
	org, err := st.GetDefaultOrganization(context.Background())
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(testRawKey), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, st.CreateAPIKey(context.Background(), &models.APIKey{
		ID:             uuid.New(),
		OrganizationID: org.ID,
		Name:           "router-test",
		KeyHash:        string(hash),
		KeyPrefix:      testRawKey[:8],
		Scopes:         scopes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}))

	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(st),
		RateLimit: mw.NewRateLimit(&stubCache{}, 100),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	})
}

func TestRouter_HealthIsPublic(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_MetricsIsPublic(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ProtectedRoutesRequireAuth(t *testing.T) {
	router := newTestRouter(t, nil)

	routes := []struct{ method, path string }{
		{"POST", "/api/v1/pricing/apply"},
		{"POST", "/api/v1/pricing/undo"},
		{"GET", "/api/v1/jobs"},
		{"GET", "/api/v1/jobs/" + uuid.NewString()},
		{"GET", "/api/v1/modes"},
		{"GET", "/api/v1/items"},
	}
	for _, rt := range routes {
		req := httptest.NewRequest(rt.method, rt.path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", rt.method, rt.path)
	}
}

func TestRouter_MissingHandlersReturn501(t *testing.T) {
	router := newTestRouter(t, []string{"pricing:write"})

	req := httptest.NewRequest("GET", "/api/v1/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+testRawKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRouter_AdminRoutesRequireScope(t *testing.T) {
	router := newTestRouter(t, []string{"pricing:write"})

	req := httptest.NewRequest("GET", "/api/v1/admin/keys", nil)
	req.Header.Set("Authorization", "Bearer "+testRawKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_AdminScopeAllowed(t *testing.T) {
	router := newTestRouter(t, []string{"admin"})

	req := httptest.NewRequest("GET", "/api/v1/admin/keys", nil)
	req.Header.Set("Authorization", "Bearer "+testRawKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Handler not wired in this test, so the scope check passing surfaces 501.
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}
