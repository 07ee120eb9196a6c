package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repovitals/reviver/internal/monitoring"
)

func fallbackLimiter(config Config) (*RateLimiter, *monitoring.Metrics) {
	metrics := monitoring.NewMetrics()
	client, _ := NewRedisClient("", "", 0) // no Redis, in-memory fallback
	return NewRateLimiter(client, config, metrics), metrics
}

func TestRedisClientDisabledWithoutAddress(t *testing.T) {
	client, err := NewRedisClient("", "", 0)
	require.NoError(t, err)
	assert.False(t, client.IsEnabled())
	assert.Error(t, client.HealthCheck(context.Background()))
	assert.NoError(t, client.Close())

	stats := client.GetPoolStats()
	assert.Equal(t, false, stats["enabled"])
}

func TestAllowIPFallbackExhaustsBurst(t *testing.T) {
	rl, metrics := fallbackLimiter(Config{IPLimitPerMin: 2, BurstMultiplier: 1})

	allowed := 0
	for i := 0; i < 20; i++ {
		result, err := rl.AllowIP(context.Background(), "203.0.113.7")
		require.NoError(t, err)
		if result.Allowed {
			allowed++
		} else {
			assert.Greater(t, result.RetryAfter.Seconds(), 0.0)
		}
	}

	// Burst floor is 5 tokens; refill at 2/min is negligible here.
	assert.GreaterOrEqual(t, allowed, 5)
	assert.LessOrEqual(t, allowed, 6)

	stats := metrics.GetStats()
	assert.Greater(t, stats["rate_limit_fallbacks"].(int64), int64(0))
}

func TestAllowIPIsolatesClients(t *testing.T) {
	rl, _ := fallbackLimiter(Config{IPLimitPerMin: 2, BurstMultiplier: 1})

	for i := 0; i < 10; i++ {
		rl.AllowIP(context.Background(), "198.51.100.1")
	}

	result, err := rl.AllowIP(context.Background(), "198.51.100.2")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestScopedLimitsAreIndependent(t *testing.T) {
	rl, _ := fallbackLimiter(Config{IPLimitPerMin: 2, AnalyzePerMin: 2, TrainPerHour: 2, BurstMultiplier: 1})

	for i := 0; i < 10; i++ {
		rl.AllowAnalyze(context.Background(), "203.0.113.9")
	}

	// Exhausting the analyze scope leaves the train scope untouched.
	result, err := rl.AllowTrain(context.Background(), "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestInvalidateIPResetsFallbackLimiter(t *testing.T) {
	rl, _ := fallbackLimiter(Config{IPLimitPerMin: 2, BurstMultiplier: 1})
	ip := "192.0.2.5"

	for i := 0; i < 10; i++ {
		rl.AllowIP(context.Background(), ip)
	}
	result, err := rl.AllowIP(context.Background(), ip)
	require.NoError(t, err)
	require.False(t, result.Allowed)

	require.NoError(t, rl.InvalidateIP(context.Background(), ip))

	result, err = rl.AllowIP(context.Background(), ip)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestInvalidateAllClearsFallbackLimiters(t *testing.T) {
	rl, _ := fallbackLimiter(DefaultConfig())

	rl.AllowIP(context.Background(), "192.0.2.1")
	rl.AllowAnalyze(context.Background(), "192.0.2.2")

	require.NoError(t, rl.InvalidateAll(context.Background()))
	assert.Equal(t, 0, rl.GetStats()["fallback_limiters"])
}

func TestInvalidationPatternsCarryLibraryPrefix(t *testing.T) {
	// The sliding-window counters live under the library's "rate:"
	// prefix; a bare "ratelimit:*" scan would delete nothing.
	assert.Equal(t, "rate:ratelimit:*:192.0.2.9", ipKeyPattern("192.0.2.9"))
	assert.Equal(t, "rate:ratelimit:*", allKeysPattern())
}

func TestGetStatsReportsFallbackMode(t *testing.T) {
	rl, _ := fallbackLimiter(DefaultConfig())
	rl.AllowIP(context.Background(), "192.0.2.1")

	stats := rl.GetStats()
	assert.Equal(t, false, stats["redis_enabled"])
	assert.Equal(t, 1, stats["fallback_limiters"])
}

func TestIPRateLimitMiddlewareBlocksWith429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl, metrics := fallbackLimiter(Config{IPLimitPerMin: 2, BurstMultiplier: 1})

	r := gin.New()
	r.Use(rl.IPRateLimitMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	var lastCode int
	blocked := 0
	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "203.0.113.50:1234"
		r.ServeHTTP(w, req)
		lastCode = w.Code
		if w.Code == http.StatusTooManyRequests {
			blocked++
			assert.NotEmpty(t, w.Header().Get("Retry-After"))
		}
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
	}

	assert.Equal(t, http.StatusTooManyRequests, lastCode)
	assert.Greater(t, blocked, 0)
	assert.Greater(t, metrics.GetStats()["rate_limit_blocks"].(int64), int64(0))
}

func TestRateLimitStatusHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl, _ := fallbackLimiter(DefaultConfig())

	r := gin.New()
	r.GET("/ratelimit/status", rl.HandleRateLimitStatus())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ratelimit/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ip_per_minute")
	assert.Contains(t, w.Body.String(), "train_per_hour")
}
