package cache

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repovitals/reviver/internal/monitoring"
)

func TestCacheSetAndGet(t *testing.T) {
	c := NewCache(time.Minute)

	c.Set("key", []byte("value"))

	data, found := c.Get("key")
	require.True(t, found)
	assert.Equal(t, []byte("value"), data)
}

func TestCacheMiss(t *testing.T) {
	c := NewCache(time.Minute)

	_, found := c.Get("absent")
	assert.False(t, found)
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(10 * time.Millisecond)

	c.Set("key", []byte("value"))
	time.Sleep(20 * time.Millisecond)

	_, found := c.Get("key")
	assert.False(t, found)
}

func TestCacheClearAndSize(t *testing.T) {
	c := NewCache(time.Minute)

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	assert.Equal(t, 2, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestCacheStats(t *testing.T) {
	c := NewCache(time.Minute)
	c.Set("a", []byte("1"))

	stats := c.Stats()
	assert.Equal(t, 1, stats["total_items"])
	assert.Equal(t, 0, stats["expired_items"])
	assert.Equal(t, float64(60), stats["ttl_seconds"])
}

func analyzeRouter(c *Cache, metrics *monitoring.Metrics, hits *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(c.Middleware(metrics))
	r.POST("/api/analyze", func(ctx *gin.Context) {
		*hits++
		ctx.JSON(http.StatusOK, gin.H{"repository": "org/repo"})
	})
	return r
}

func TestMiddlewareCachesAnalyzeResponses(t *testing.T) {
	c := NewCache(time.Minute)
	metrics := monitoring.NewMetrics()
	handlerHits := 0
	r := analyzeRouter(c, metrics, &handlerHits)

	body := `{"owner":"org","repo":"repo"}`

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewBufferString(body)))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewBufferString(body)))
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, 1, handlerHits)
	assert.Equal(t, first.Body.String(), second.Body.String())

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats["cache_hits"])
	assert.Equal(t, int64(1), stats["cache_misses"])
}

func TestMiddlewareDistinguishesRequestBodies(t *testing.T) {
	c := NewCache(time.Minute)
	metrics := monitoring.NewMetrics()
	handlerHits := 0
	r := analyzeRouter(c, metrics, &handlerHits)

	for _, body := range []string{`{"owner":"a","repo":"x"}`, `{"owner":"b","repo":"y"}`} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewBufferString(body)))
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 2, handlerHits)
}

func TestMiddlewareIgnoresOtherPaths(t *testing.T) {
	c := NewCache(time.Minute)
	metrics := monitoring.NewMetrics()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(c.Middleware(metrics))
	hits := 0
	r.GET("/health", func(ctx *gin.Context) {
		hits++
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 2, hits)
	assert.Equal(t, 0, c.Size())
}
