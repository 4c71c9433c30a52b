package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	mw "github.com/Cymoe/Estimate-Wave-App-sub001/internal/api/middleware"
	"github.com/Cymoe/Estimate-Wave-App-sub001/internal/store"
	"github.com/Cymoe/Estimate-Wave-App-sub001/pkg/models"
)

// --- stub cache for rate limiting ---

type stubCache struct {
	counter int64
	err     error
}

func (m *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (m *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (m *stubCache) Delete(_ context.Context, _ string) error                         { return nil }
func (m *stubCache) Ping(_ context.Context) error                                     { return nil }
func (m *stubCache) SetJobStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (m *stubCache) GetJobStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (m *stubCache) SetJobProgress(_ context.Context, _ uuid.UUID, _, _ int, _ time.Duration) error {
	return nil
}
func (m *stubCache) GetJobProgress(_ context.Context, _ uuid.UUID) (int, int, bool, error) {
	return 0, 0, false, nil
}
func (m *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	m.counter++
	return m.counter, m.err
}

// --- helpers ---

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

// seedKey stores a bcrypt-hashed API key and returns its record.
func seedKey(t *testing.T, st *store.MemoryStore, rawKey string, scopes []string) *models.APIKey {
	t.Helper()
	org, err := st.GetDefaultOrganization(context.Background())
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.MinCost)
	require.NoError(t, err)

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:             uuid.New(),
		OrganizationID: org.ID,
		Name:           "test",
		KeyHash:        string(hash),
		KeyPrefix:      rawKey[:8],
		Scopes:         scopes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, st.CreateAPIKey(context.Background(), key))
	return key
}

func errBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)
}

// --- Auth tests ---

func TestAuth_MissingAuthHeader(t *testing.T) {
	auth := mw.NewAuth(store.NewMemoryStore())
	handler := auth.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOKEN", errBody(t, w)["code"])
}

func TestAuth_InvalidBearerFormat(t *testing.T) {
	auth := mw.NewAuth(store.NewMemoryStore())
	handler := auth.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Basic abc123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_KeyTooShort(t *testing.T) {
	auth := mw.NewAuth(store.NewMemoryStore())
	handler := auth.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer short")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_UnknownKey(t *testing.T) {
	auth := mw.NewAuth(store.NewMemoryStore())
	handler := auth.Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer pb_test1234567890")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_WrongKey(t *testing.T) {
	st := store.NewMemoryStore()
	rawKey := "pb_test1234567890abcdef"
	seedKey(t, st, rawKey, []string{"pricing:write"})
	auth := mw.NewAuth(st)
	handler := auth.Authenticate(okHandler())

	// Same prefix, different secret.
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey[:8]+"_wrong_secret")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_ValidKeySetsOrganization(t *testing.T) {
	st := store.NewMemoryStore()
	rawKey := "pb_test1234567890abcdef"
	key := seedKey(t, st, rawKey, []string{"pricing:write", "admin"})
	auth := mw.NewAuth(st)

	var gotOrgID uuid.UUID
	var gotOK bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOrgID, gotOK = mw.GetOrganizationID(r)
		w.WriteHeader(http.StatusOK)
	})
	handler := auth.Authenticate(inner)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gotOK)
	assert.Equal(t, key.OrganizationID, gotOrgID)
}

func TestRequireScope_Denied(t *testing.T) {
	st := store.NewMemoryStore()
	rawKey := "pb_test1234567890abcdef"
	seedKey(t, st, rawKey, []string{"pricing:write"})
	auth := mw.NewAuth(st)

	handler := auth.Authenticate(auth.RequireScope("admin")(okHandler()))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", errBody(t, w)["code"])
}

func TestRequireScope_Allowed(t *testing.T) {
	st := store.NewMemoryStore()
	rawKey := "pb_test1234567890abcdef"
	seedKey(t, st, rawKey, []string{"admin"})
	auth := mw.NewAuth(st)

	handler := auth.Authenticate(auth.RequireScope("admin")(okHandler()))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// --- RateLimit tests ---

func requestWithPrefix(prefix string) *http.Request {
	req := httptest.NewRequest("GET", "/test", nil)
	return req.WithContext(mw.SetKeyPrefix(req.Context(), prefix))
}

func TestRateLimit_UnderLimit(t *testing.T) {
	rl := mw.NewRateLimit(&stubCache{}, 10)
	handler := rl.Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithPrefix("pb_test1"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_OverLimit(t *testing.T) {
	rl := mw.NewRateLimit(&stubCache{counter: 10}, 10)
	handler := rl.Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithPrefix("pb_test1"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestRateLimit_NoPrefixPassesThrough(t *testing.T) {
	rl := mw.NewRateLimit(&stubCache{}, 10)
	handler := rl.Limit(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_CacheErrorFailsOpen(t *testing.T) {
	rl := mw.NewRateLimit(&stubCache{err: assert.AnError}, 10)
	handler := rl.Limit(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithPrefix("pb_test1"))

	assert.Equal(t, http.StatusOK, w.Code)
}

// --- Recovery ---

func TestRecovery_CatchesPanic(t *testing.T) {
	handler := mw.Recovery(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}
