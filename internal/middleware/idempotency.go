package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"booking/internal/logger"
	"booking/internal/redis"
)

const (
	idempotencyHeader    = "Idempotency-Key"
	idempotencyTTL       = 24 * time.Hour
	idempotencyInFlight  = "in_flight"
	inFlightReservation  = 30 * time.Second
	maxIdempotencyKeyLen = 255
)

// cachedResponse stores the response for idempotent requests.
type cachedResponse struct {
	State       string `json:"state,omitempty"`
	StatusCode  int    `json:"status_code"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type,omitempty"`
	RequestHash string `json:"request_hash"`
}

// responseWriter wraps gin.ResponseWriter to capture the response.
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// IdempotencyMiddleware replays the stored response when a mutating request is
// retried with the same Idempotency-Key. Keys are scoped to the method and
// path. A retry that arrives while the first request is still running gets
// 409, and a key reused with a different body gets 422. When Redis is
// unavailable requests proceed without idempotency.
func IdempotencyMiddleware(store redis.IdempotencyRecorder, logg *logger.Logger) gin.HandlerFunc {
	if logg == nil {
		logg = logger.Nop()
	}
	return func(c *gin.Context) {
		if store == nil {
			c.Next()
			return
		}
		if c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut && c.Request.Method != http.MethodPatch {
			c.Next()
			return
		}

		key := strings.TrimSpace(c.GetHeader(idempotencyHeader))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Idempotency-Key too long"})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		ctx := c.Request.Context()
		requestHash := hashBody(body)
		cacheKey := c.Request.Method + " " + c.Request.URL.Path + ":" + key
		ctx = logg.WithField(ctx, "idempotency_key", key)

		stored, err := store.Load(ctx, cacheKey)
		if err != nil && !errors.Is(err, goredis.Nil) {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "idempotency lookup failed; proceeding without replay")
			c.Next()
			return
		}
		if err == nil {
			replay(c, stored, requestHash)
			return
		}

		marker, _ := json.Marshal(cachedResponse{State: idempotencyInFlight, RequestHash: requestHash})
		reserved, err := store.Reserve(ctx, cacheKey, string(marker), inFlightReservation)
		if err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "idempotency reservation failed; proceeding without replay")
			c.Next()
			return
		}
		if !reserved {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request with this Idempotency-Key is in progress"})
			return
		}

		// Wrap response writer to capture response.
		w := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
		}
		c.Writer = w

		c.Next()

		if c.Writer.Status() >= http.StatusInternalServerError {
			if err := store.Discard(ctx, cacheKey); err != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "failed to discard idempotency reservation")
			}
			return
		}

		record, err := json.Marshal(cachedResponse{
			StatusCode:  c.Writer.Status(),
			Body:        w.body.Bytes(),
			ContentType: c.Writer.Header().Get("Content-Type"),
			RequestHash: requestHash,
		})
		if err != nil {
			logg.Error(ctx, "marshal idempotency record", err)
			return
		}
		if err := store.Save(ctx, cacheKey, string(record), idempotencyTTL); err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "failed to persist idempotency record")
		}
	}
}

func replay(c *gin.Context, stored, requestHash string) {
	var cached cachedResponse
	if err := json.Unmarshal([]byte(stored), &cached); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "corrupt idempotency record"})
		return
	}
	if cached.RequestHash != requestHash {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "Idempotency-Key reused with a different request body"})
		return
	}
	if cached.State == idempotencyInFlight {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request with this Idempotency-Key is in progress"})
		return
	}

	contentType := cached.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Header("Idempotent-Replayed", "true")
	c.Data(cached.StatusCode, contentType, cached.Body)
	c.Abort()
}

func hashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
