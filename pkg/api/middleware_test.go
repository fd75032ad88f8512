package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/modelmux/pkg/cache"
	"github.com/codeready-toolchain/modelmux/pkg/config"
	"github.com/codeready-toolchain/modelmux/pkg/ratelimit"
)

func ginContext(req *http.Request) *gin.Context {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = req
	return c
}

func TestClientIDPrecedence(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			"forwarded-for beats real-ip",
			map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2", "X-Real-IP": "10.0.0.9"},
			"10.0.0.1",
		},
		{
			"single forwarded-for entry",
			map[string]string{"X-Forwarded-For": " 10.0.0.3 "},
			"10.0.0.3",
		},
		{
			"real-ip fallback",
			map[string]string{"X-Real-IP": "10.0.0.9"},
			"10.0.0.9",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientID(ginContext(req)))
		})
	}
}

func TestClientIDPeerAddressFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:4321"
	assert.Equal(t, "192.168.1.5", clientID(ginContext(req)))
}

func newLimitedEngine(t *testing.T, maxRequests int) *gin.Engine {
	t.Helper()

	adapter := cache.NewMemory(time.Minute)
	t.Cleanup(adapter.Close)

	limiter := ratelimit.NewLimiter(adapter, &config.RateLimitConfig{
		MaxRequests: maxRequests,
		Window:      time.Minute,
	})

	engine := gin.New()
	engine.GET("/ping", rateLimitMiddleware(limiter), func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return engine
}

func get(engine *gin.Engine, client string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Real-IP", client)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitHeadersOnAllowedRequest(t *testing.T) {
	engine := newLimitedEngine(t, 5)

	rec := get(engine, "1.1.1.1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestRateLimitBlocksOverBudget(t *testing.T) {
	engine := newLimitedEngine(t, 2)

	require.Equal(t, http.StatusOK, get(engine, "1.1.1.1").Code)
	require.Equal(t, http.StatusOK, get(engine, "1.1.1.1").Code)

	rec := get(engine, "1.1.1.1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retryAfter, 1)

	var body RateLimitedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body.Error)
	assert.Equal(t, retryAfter, body.RetryAfter)
}

func TestRateLimitIsolatesClients(t *testing.T) {
	engine := newLimitedEngine(t, 1)

	require.Equal(t, http.StatusOK, get(engine, "1.1.1.1").Code)
	require.Equal(t, http.StatusTooManyRequests, get(engine, "1.1.1.1").Code)

	// A different caller still has its own budget.
	assert.Equal(t, http.StatusOK, get(engine, "2.2.2.2").Code)
}
