package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"killrelay/internal/config"
)

func newRouter(t *testing.T, cfg RateLimitConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := gin.New()
	r.Use(RateLimitMiddleware(ctx, cfg))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func get(r http.Handler) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware(t *testing.T) {
	r := newRouter(t, RateLimitConfig{RPS: 0.001, Burst: 2, CleanupInterval: time.Minute, MaxAge: time.Minute})

	first := get(r)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "0.001", first.Header().Get("X-RateLimit-Limit"))

	assert.Equal(t, http.StatusOK, get(r).Code)

	limited := get(r)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))
	assert.Contains(t, limited.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestEvictRemovesIdleLimiters(t *testing.T) {
	store := &limiters{cfg: RateLimitConfig{RPS: 1, Burst: 1, MaxAge: time.Minute}, byKey: make(map[string]*Limiter)}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	store.get("a", now)
	store.get("b", now.Add(50*time.Second))
	require.Equal(t, 2, store.size())

	store.evict(now.Add(90 * time.Second))
	assert.Equal(t, 1, store.size())
}

func TestFromConfig(t *testing.T) {
	got := FromConfig(config.RateLimitConfig{RPS: 5, CleanupInterval: 30})
	assert.Equal(t, 5.0, got.RPS)
	assert.Equal(t, 20, got.Burst)
	assert.Equal(t, 30*time.Second, got.CleanupInterval)
	assert.Equal(t, 10*time.Minute, got.MaxAge)
}
