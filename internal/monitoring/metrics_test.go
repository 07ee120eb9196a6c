package monitoring

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCountersAndRates(t *testing.T) {
	m := NewMetrics()

	m.IncrementRequest()
	m.IncrementRequest()
	m.IncrementError()
	m.IncrementCacheHit()
	m.IncrementCacheHit()
	m.IncrementCacheHit()
	m.IncrementCacheMiss()
	m.IncrementAnalyses()
	m.IncrementTrainingRuns()
	m.IncrementPredictions()
	m.RecordRequestByStatus(200)
	m.RecordRequestByStatus(200)
	m.RecordRequestByStatus(500)

	stats := m.GetStats()
	assert.Equal(t, int64(2), stats["total_requests"])
	assert.Equal(t, int64(1), stats["error_count"])
	assert.Equal(t, float64(50), stats["error_rate_percent"])
	assert.Equal(t, float64(75), stats["cache_hit_rate_percent"])
	assert.Equal(t, int64(1), stats["analyses_run"])
	assert.Equal(t, int64(1), stats["training_runs"])
	assert.Equal(t, int64(1), stats["predictions_run"])

	distribution := stats["status_code_distribution"].(map[int]int64)
	assert.Equal(t, int64(2), distribution[200])
	assert.Equal(t, int64(1), distribution[500])
}

func TestMetricsZeroRequestsNoDivideByZero(t *testing.T) {
	stats := NewMetrics().GetStats()
	assert.Equal(t, float64(0), stats["error_rate_percent"])
	assert.Equal(t, float64(0), stats["cache_hit_rate_percent"])
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.IncrementRequest()
	m.IncrementRateLimitBlock()
	m.RecordRequestByStatus(200)

	m.Reset()

	stats := m.GetStats()
	assert.Equal(t, int64(0), stats["total_requests"])
	assert.Equal(t, int64(0), stats["rate_limit_blocks"])
	assert.Empty(t, stats["status_code_distribution"])
}

func TestMetricsConcurrentIncrements(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementRequest()
			m.RecordRequestByStatus(200)
		}()
	}
	wg.Wait()

	stats := m.GetStats()
	assert.Equal(t, int64(50), stats["total_requests"])
	assert.Equal(t, int64(50), stats["status_code_distribution"].(map[int]int64)[200])
}

func TestMonitoringMiddlewareRecordsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()
	logger := NewLogger()

	r := gin.New()
	r.Use(MonitoringMiddleware(m, logger))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	for _, path := range []string{"/ok", "/ok", "/fail"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	stats := m.GetStats()
	require.Equal(t, int64(3), stats["total_requests"])
	assert.Equal(t, int64(1), stats["error_count"])

	distribution := stats["status_code_distribution"].(map[int]int64)
	assert.Equal(t, int64(2), distribution[200])
	assert.Equal(t, int64(1), distribution[502])
}
