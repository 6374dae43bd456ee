package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/herbtrace-api/pkg/middleware/requestid"
)

const responseMetaKey = "herbtrace.response_meta"

// ResponseMeta collects the envelope meta block for one request.
type ResponseMeta struct {
	RequestID string
	CacheHit  *bool
	Replayed  bool
	started   time.Time
}

// WithResponseMeta starts the meta block before handlers run so processing time covers
// the whole chain after it.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, &ResponseMeta{RequestID: requestid.Value(c), started: time.Now()})
		c.Next()
	}
}

// MetaFor returns the request's meta block, creating one when WithResponseMeta is absent.
func MetaFor(c *gin.Context) *ResponseMeta {
	if v, ok := c.Get(responseMetaKey); ok {
		if meta, ok := v.(*ResponseMeta); ok {
			return meta
		}
	}
	meta := &ResponseMeta{RequestID: requestid.Value(c)}
	c.Set(responseMetaKey, meta)
	return meta
}

// SetCacheHit records whether the payload came from the read-through cache.
func (m *ResponseMeta) SetCacheHit(hit bool) {
	m.CacheHit = &hit
}

// MarkReplayed flags a response served from the idempotency store.
func (m *ResponseMeta) MarkReplayed() {
	m.Replayed = true
	m.SetCacheHit(true)
}

// Map renders the block for response.Envelope. Unset fields are left out.
func (m *ResponseMeta) Map() map[string]interface{} {
	out := map[string]interface{}{}
	if m.RequestID != "" {
		out["request_id"] = m.RequestID
	}
	if m.CacheHit != nil {
		out["cache_hit"] = *m.CacheHit
	}
	if m.Replayed {
		out["idempotent_replay"] = true
	}
	if !m.started.IsZero() {
		out["processing_time_ms"] = time.Since(m.started).Milliseconds()
	}
	return out
}
