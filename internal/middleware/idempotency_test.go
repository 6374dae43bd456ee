package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/herbtrace-api/internal/models"
	appErrors "github.com/noah-isme/herbtrace-api/pkg/errors"
	"github.com/noah-isme/herbtrace-api/pkg/response"
)

type memoryResponseCache struct {
	mu       sync.Mutex
	entries  map[string][]byte
	ttls     []time.Duration
	locks    map[string]bool
	released []string
	getErr   error
}

func newMemoryResponseCache() *memoryResponseCache {
	return &memoryResponseCache{entries: map[string][]byte{}, locks: map[string]bool{}}
}

func (m *memoryResponseCache) Reserve(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return false, nil
	}
	m.locks[key] = true
	return true, nil
}

func (m *memoryResponseCache) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	m.released = append(m.released, key)
	return nil
}

func (m *memoryResponseCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return false, m.getErr
	}
	raw, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memoryResponseCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = raw
	m.ttls = append(m.ttls, ttl)
	return nil
}

func newIdempotentRouter(cache ResponseCache, calls *int, status int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if user := c.GetHeader("X-Test-User"); user != "" {
			c.Set(ContextUserKey, &models.JWTClaims{UserID: user, Role: models.RoleFarmer})
		}
		c.Next()
	})
	r.Use(Idempotency(cache, time.Hour, nil))
	handler := func(c *gin.Context) {
		*calls++
		if status >= http.StatusBadRequest {
			response.Error(c, appErrors.ErrValidation)
			return
		}
		response.JSON(c, status, gin.H{"call": *calls}, nil)
	}
	r.POST("/harvests", handler)
	r.GET("/harvests", handler)
	return r
}

func postHarvest(r *gin.Engine, key, user string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/harvests", nil)
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestIdempotencyReplaysFirstSuccess(t *testing.T) {
	cache := newMemoryResponseCache()
	calls := 0
	r := newIdempotentRouter(cache, &calls, http.StatusCreated)

	first := postHarvest(r, "abc", "farmer-1")
	second := postHarvest(r, "abc", "farmer-1")

	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, 1, calls)
	assert.Empty(t, first.Header().Get(ReplayHeader))
	assert.Equal(t, "true", second.Header().Get(ReplayHeader))

	body := decodeEnvelope(t, second)
	assert.EqualValues(t, 1, body["data"].(map[string]interface{})["call"])
	meta := body["meta"].(map[string]interface{})
	assert.Equal(t, true, meta["cache_hit"])
	assert.Equal(t, true, meta["idempotent_replay"])
	assert.Equal(t, []time.Duration{time.Hour}, cache.ttls)
}

func TestIdempotencyScopesKeysPerUser(t *testing.T) {
	calls := 0
	r := newIdempotentRouter(newMemoryResponseCache(), &calls, http.StatusCreated)

	postHarvest(r, "abc", "farmer-1")
	w := postHarvest(r, "abc", "farmer-2")

	assert.Equal(t, 2, calls)
	assert.Empty(t, w.Header().Get(ReplayHeader))
}

func TestIdempotencySkipsRequestsWithoutKey(t *testing.T) {
	cache := newMemoryResponseCache()
	calls := 0
	r := newIdempotentRouter(cache, &calls, http.StatusCreated)

	postHarvest(r, "", "farmer-1")
	postHarvest(r, "", "farmer-1")

	assert.Equal(t, 2, calls)
	assert.Empty(t, cache.entries)
}

func TestIdempotencyDoesNotStoreFailures(t *testing.T) {
	cache := newMemoryResponseCache()
	calls := 0
	r := newIdempotentRouter(cache, &calls, http.StatusBadRequest)

	postHarvest(r, "abc", "farmer-1")
	w := postHarvest(r, "abc", "farmer-1")

	assert.Equal(t, 2, calls)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, cache.entries)
}

func TestIdempotencyIgnoresReads(t *testing.T) {
	cache := newMemoryResponseCache()
	calls := 0
	r := newIdempotentRouter(cache, &calls, http.StatusOK)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/harvests", nil)
		req.Header.Set(IdempotencyHeader, "abc")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, 2, calls)
	assert.Empty(t, cache.entries)
}

func TestIdempotencyFallsThroughOnCacheError(t *testing.T) {
	cache := newMemoryResponseCache()
	cache.getErr = errors.New("redis down")
	calls := 0
	r := newIdempotentRouter(cache, &calls, http.StatusCreated)

	w := postHarvest(r, "abc", "farmer-1")

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotencyRejectsRetryWhileFirstRuns(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cache := newMemoryResponseCache()
	started := make(chan struct{})
	finish := make(chan struct{})
	calls := 0
	r := gin.New()
	r.Use(Idempotency(cache, time.Hour, nil))
	r.POST("/harvests", func(c *gin.Context) {
		calls++
		close(started)
		<-finish
		response.JSON(c, http.StatusCreated, gin.H{"call": calls}, nil)
	})

	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- postHarvest(r, "abc", "") }()
	<-started

	retry := postHarvest(r, "abc", "")
	assert.Equal(t, http.StatusConflict, retry.Code)
	assert.Equal(t, appErrors.ErrConflict.Code, decodeEnvelope(t, retry)["error"].(map[string]interface{})["code"])

	close(finish)
	first := <-done
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, 1, calls)

	replay := postHarvest(r, "abc", "")
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "true", replay.Header().Get(ReplayHeader))
	assert.Equal(t, 1, calls)
}

func TestIdempotencyReleasesKeyAfterFailure(t *testing.T) {
	cache := newMemoryResponseCache()
	calls := 0
	r := newIdempotentRouter(cache, &calls, http.StatusBadRequest)

	postHarvest(r, "abc", "farmer-1")
	w := postHarvest(r, "abc", "farmer-1")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 2, calls)
	assert.Empty(t, cache.locks)
	assert.Len(t, cache.released, 2)
}
