package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/herbtrace-api/pkg/middleware/requestid"
)

func TestMetaForCreatesBlockWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	assert.Empty(t, MetaFor(c).Map())
	MetaFor(c).SetCacheHit(true)

	assert.Equal(t, map[string]interface{}{"cache_hit": true}, MetaFor(c).Map())
}

func TestResponseMetaCarriesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestid.Middleware(), WithResponseMeta())
	r.GET("/lots", func(c *gin.Context) {
		MetaFor(c).SetCacheHit(false)
		c.JSON(http.StatusOK, MetaFor(c).Map())
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/lots", nil)
	req.Header.Set(requestid.HeaderKey, "req-42")
	r.ServeHTTP(w, req)

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	assert.Equal(t, "req-42", meta["request_id"])
	assert.Equal(t, false, meta["cache_hit"])
	assert.Contains(t, meta, "processing_time_ms")
	assert.NotContains(t, meta, "idempotent_replay")
}

func TestMarkReplayedImpliesCacheHit(t *testing.T) {
	meta := &ResponseMeta{}
	meta.MarkReplayed()

	assert.Equal(t, map[string]interface{}{"cache_hit": true, "idempotent_replay": true}, meta.Map())
}
