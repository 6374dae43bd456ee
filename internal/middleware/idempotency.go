package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/herbtrace-api/pkg/errors"
	"github.com/noah-isme/herbtrace-api/pkg/response"
)

// IdempotencyHeader carries the client supplied key for safe retries.
const IdempotencyHeader = "Idempotency-Key"

// ReplayHeader marks responses served from the idempotency store.
const ReplayHeader = "Idempotent-Replay"

// inFlightTTL bounds how long a crashed request can hold its key.
const inFlightTTL = time.Minute

// ResponseCache stores replayable responses and the in-flight marker of each key.
type ResponseCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type storedResponse struct {
	Status   int             `json:"status"`
	Envelope json.RawMessage `json:"envelope"`
}

type bodyCapture struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyCapture) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyCapture) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the first successful response of a mutating request when the
// caller retries it with the same Idempotency-Key. A retry arriving while the first request
// still runs gets 409. Requests without a key pass through.
func Idempotency(cache ResponseCache, ttl time.Duration, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
		if cache == nil || key == "" || !isMutating(c.Request.Method) {
			c.Next()
			return
		}

		cacheKey := idempotencyKey(c, key)
		var stored storedResponse
		hit, err := cache.Get(c.Request.Context(), cacheKey, &stored)
		if err != nil {
			logger.Warn("idempotency lookup failed", zap.Error(err))
		}
		if hit && len(stored.Envelope) > 0 {
			var envelope response.Envelope
			if err := json.Unmarshal(stored.Envelope, &envelope); err == nil {
				meta := MetaFor(c)
				meta.MarkReplayed()
				if envelope.Meta == nil {
					envelope.Meta = map[string]interface{}{}
				}
				for k, v := range meta.Map() {
					envelope.Meta[k] = v
				}
				c.Header(ReplayHeader, "true")
				response.Write(c, stored.Status, envelope)
				c.Abort()
				return
			}
		}

		lockKey := cacheKey + ":lock"
		reserved, err := cache.Reserve(c.Request.Context(), lockKey, inFlightTTL)
		switch {
		case err != nil:
			logger.Warn("idempotency reserve failed", zap.Error(err))
		case !reserved:
			response.Error(c, appErrors.Clone(appErrors.ErrConflict, "a request with this idempotency key is still in progress"))
			c.Abort()
			return
		default:
			defer func() {
				if err := cache.Release(context.WithoutCancel(c.Request.Context()), lockKey); err != nil {
					logger.Warn("idempotency release failed", zap.Error(err))
				}
			}()
		}

		writer := &bodyCapture{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Next()

		status := writer.Status()
		if status < http.StatusOK || status >= http.StatusMultipleChoices || writer.body.Len() == 0 {
			return
		}
		record := storedResponse{Status: status, Envelope: json.RawMessage(writer.body.Bytes())}
		if err := cache.Set(c.Request.Context(), cacheKey, record, ttl); err != nil {
			logger.Warn("idempotency store failed", zap.Error(err))
		}
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func idempotencyKey(c *gin.Context, key string) string {
	user := ""
	if claims := Claims(c); claims != nil {
		user = claims.UserID
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{user, c.Request.Method, c.Request.URL.Path, key}, "|")))
	return "idempotency:" + hex.EncodeToString(sum[:])
}
