package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking/internal/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memoryRecorder struct {
	mu      sync.Mutex
	records map[string]string
	loadErr error
}

func newMemoryRecorder() *memoryRecorder {
	return &memoryRecorder{records: map[string]string{}}
}

func (m *memoryRecorder) Load(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return "", m.loadErr
	}
	v, ok := m.records[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryRecorder) Reserve(_ context.Context, key, marker string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key]; ok {
		return false, nil
	}
	m.records[key] = marker
	return true, nil
}

func (m *memoryRecorder) Save(_ context.Context, key, record string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = record
	return nil
}

func (m *memoryRecorder) Discard(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

func (m *memoryRecorder) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func idempotentRouter(store *memoryRecorder, status int, calls *int) *gin.Engine {
	router := gin.New()
	router.Use(IdempotencyMiddleware(store, logger.Nop()))
	router.POST("/v1/payments", func(c *gin.Context) {
		*calls++
		c.JSON(status, gin.H{"call": *calls})
	})
	return router
}

func post(router http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/payments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newMemoryRecorder()
	calls := 0
	router := idempotentRouter(store, http.StatusCreated, &calls)

	first := post(router, "key-1", `{"amount":"100"}`)
	require.Equal(t, http.StatusCreated, first.Code)

	second := post(router, "key-1", `{"amount":"100"}`)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 1, calls, "handler must run once")
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	store := newMemoryRecorder()
	calls := 0
	router := idempotentRouter(store, http.StatusCreated, &calls)

	post(router, "key-1", `{"amount":"100"}`)
	rec := post(router, "key-1", `{"amount":"200"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotencyInFlightConflict(t *testing.T) {
	store := newMemoryRecorder()
	calls := 0
	router := idempotentRouter(store, http.StatusCreated, &calls)

	body := `{"amount":"100"}`
	marker := `{"state":"in_flight","status_code":0,"body":null,"request_hash":"` + hashBody([]byte(body)) + `"}`
	store.records["POST /v1/payments:key-1"] = marker

	rec := post(router, "key-1", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, calls)
}

func TestIdempotencyDoesNotCacheServerErrors(t *testing.T) {
	store := newMemoryRecorder()
	calls := 0
	router := idempotentRouter(store, http.StatusInternalServerError, &calls)

	post(router, "key-1", `{}`)
	assert.Zero(t, store.len(), "reservation must be discarded")

	post(router, "key-1", `{}`)
	assert.Equal(t, 2, calls, "retry after a 5xx runs the handler again")
}

func TestIdempotencyPassThrough(t *testing.T) {
	store := newMemoryRecorder()
	calls := 0
	router := idempotentRouter(store, http.StatusCreated, &calls)

	post(router, "", `{}`)
	post(router, "", `{}`)
	assert.Equal(t, 2, calls, "requests without a key are not deduplicated")

	store.loadErr = errors.New("dial tcp: connection refused")
	post(router, "key-1", `{}`)
	post(router, "key-1", `{}`)
	assert.Equal(t, 4, calls, "redis failure must not block requests")

	rec := post(router, strings.Repeat("k", maxIdempotencyKeyLen+1), `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	router := gin.New()
	router.Use(CORSMiddleware([]string{"https://app.example.com"}))
	router.POST("/v1/payments", func(c *gin.Context) { c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodOptions, "/v1/payments", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), idempotencyHeader)

	req = httptest.NewRequest(http.MethodPost, "/v1/payments", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSAllowsAnyOriginWhenUnconfigured(t *testing.T) {
	router := gin.New()
	router.Use(CORSMiddleware(nil))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(logger.Nop()))
	var seen string
	router.GET("/health", func(c *gin.Context) {
		seen = GetRequestID(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	generated := rec.Header().Get(requestIDHeader)
	assert.NotEmpty(t, generated)
	assert.NotEqual(t, "req-123", generated)
	assert.Equal(t, generated, seen)
}
