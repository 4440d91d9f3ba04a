package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/MarkoPoloResearchLab/eventledger/internal/store/rediscache"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerIdempotencyHit = "X-Idempotency-Hit"
	maxIdempotencyKeyLen = 128
)

// ResponseCache is the idempotent response store used by POST endpoints.
type ResponseCache interface {
	Reserve(ctx context.Context, key string) (*rediscache.CachedResponse, error)
	Save(ctx context.Context, key string, response rediscache.CachedResponse) error
	Release(ctx context.Context, key string) error
}

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (recorder *bodyRecorder) Write(data []byte) (int, error) {
	recorder.body.Write(data)
	return recorder.ResponseWriter.Write(data)
}

func (recorder *bodyRecorder) WriteString(data string) (int, error) {
	recorder.body.WriteString(data)
	return recorder.ResponseWriter.WriteString(data)
}

// idempotencyMiddleware replays the stored response of a repeated Idempotency-Key.
// Cache failures fall through to normal processing.
func idempotencyMiddleware(cache ResponseCache, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawKey := strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
		actor, authenticated := actorFrom(c)
		if cache == nil || rawKey == "" || !authenticated {
			c.Next()
			return
		}
		if len(rawKey) > maxIdempotencyKeyLen {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse("invalid_request", "idempotency key is too long"))
			return
		}
		key := rediscache.Key(actor.UserID.String(), c.Request.Method+" "+c.FullPath()+" "+rawKey)
		ctx := c.Request.Context()

		cached, err := cache.Reserve(ctx, key)
		switch {
		case errors.Is(err, rediscache.ErrInFlight):
			c.AbortWithStatusJSON(http.StatusConflict, errorResponse("request_in_flight", "a request with this idempotency key is in progress"))
			return
		case err != nil:
			logger.Warn("idempotency cache unavailable", zap.Error(err))
			c.Next()
			return
		case cached != nil:
			c.Header(headerIdempotencyHit, "true")
			c.Data(cached.StatusCode, "application/json; charset=utf-8", cached.Body)
			c.Abort()
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		ctx = context.WithoutCancel(ctx)
		status := recorder.Status()
		body := recorder.body.Bytes()
		if status >= http.StatusInternalServerError || !json.Valid(body) {
			if err := cache.Release(ctx, key); err != nil {
				logger.Warn("idempotency release failed", zap.Error(err))
			}
			return
		}
		if err := cache.Save(ctx, key, rediscache.CachedResponse{StatusCode: status, Body: append(json.RawMessage(nil), body...)}); err != nil {
			logger.Warn("idempotency save failed", zap.Error(err))
		}
	}
}
