package monitoring

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds application counters. All increments are safe for
// concurrent use.
type Metrics struct {
	RequestCount   int64
	ErrorCount     int64
	CacheHits      int64
	CacheMisses    int64
	GitHubAPICalls int64
	AnalysesRun    int64
	TrainingRuns   int64
	PredictionsRun int64
	StartTime      time.Time

	RateLimitBlocks        int64
	RateLimitRedisErrors   int64
	RateLimitFallbackCount int64

	RequestCountByStatus map[int]int64
	statusMutex          sync.RWMutex
}

// NewMetrics creates a metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:            time.Now(),
		RequestCountByStatus: make(map[int]int64),
	}
}

func (m *Metrics) IncrementRequest()             { atomic.AddInt64(&m.RequestCount, 1) }
func (m *Metrics) IncrementError()               { atomic.AddInt64(&m.ErrorCount, 1) }
func (m *Metrics) IncrementCacheHit()            { atomic.AddInt64(&m.CacheHits, 1) }
func (m *Metrics) IncrementCacheMiss()           { atomic.AddInt64(&m.CacheMisses, 1) }
func (m *Metrics) IncrementGitHubCalls()         { atomic.AddInt64(&m.GitHubAPICalls, 1) }
func (m *Metrics) IncrementAnalyses()            { atomic.AddInt64(&m.AnalysesRun, 1) }
func (m *Metrics) IncrementTrainingRuns()        { atomic.AddInt64(&m.TrainingRuns, 1) }
func (m *Metrics) IncrementPredictions()         { atomic.AddInt64(&m.PredictionsRun, 1) }
func (m *Metrics) IncrementRateLimitBlock()      { atomic.AddInt64(&m.RateLimitBlocks, 1) }
func (m *Metrics) IncrementRateLimitRedisError() { atomic.AddInt64(&m.RateLimitRedisErrors, 1) }
func (m *Metrics) IncrementRateLimitFallback()   { atomic.AddInt64(&m.RateLimitFallbackCount, 1) }

// RecordRequestByStatus records request count by HTTP status code.
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.statusMutex.Lock()
	defer m.statusMutex.Unlock()
	m.RequestCountByStatus[statusCode]++
}

// GetStats returns a snapshot of all counters.
func (m *Metrics) GetStats() map[string]interface{} {
	requests := atomic.LoadInt64(&m.RequestCount)
	errors := atomic.LoadInt64(&m.ErrorCount)
	cacheHits := atomic.LoadInt64(&m.CacheHits)
	cacheMisses := atomic.LoadInt64(&m.CacheMisses)

	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(errors) / float64(requests) * 100
	}
	cacheHitRate := float64(0)
	if total := cacheHits + cacheMisses; total > 0 {
		cacheHitRate = float64(cacheHits) / float64(total) * 100
	}

	m.statusMutex.RLock()
	statusDistribution := make(map[int]int64, len(m.RequestCountByStatus))
	for code, count := range m.RequestCountByStatus {
		statusDistribution[code] = count
	}
	m.statusMutex.RUnlock()

	return map[string]interface{}{
		"uptime_seconds":           time.Since(m.StartTime).Seconds(),
		"total_requests":           requests,
		"error_count":              errors,
		"error_rate_percent":       errorRate,
		"cache_hits":               cacheHits,
		"cache_misses":             cacheMisses,
		"cache_hit_rate_percent":   cacheHitRate,
		"github_api_calls":         atomic.LoadInt64(&m.GitHubAPICalls),
		"analyses_run":             atomic.LoadInt64(&m.AnalysesRun),
		"training_runs":            atomic.LoadInt64(&m.TrainingRuns),
		"predictions_run":          atomic.LoadInt64(&m.PredictionsRun),
		"rate_limit_blocks":        atomic.LoadInt64(&m.RateLimitBlocks),
		"rate_limit_redis_errors":  atomic.LoadInt64(&m.RateLimitRedisErrors),
		"rate_limit_fallbacks":     atomic.LoadInt64(&m.RateLimitFallbackCount),
		"status_code_distribution": statusDistribution,
		"start_time":               m.StartTime.Format(time.RFC3339),
	}
}

// Reset zeroes all counters. Useful in tests.
func (m *Metrics) Reset() {
	atomic.StoreInt64(&m.RequestCount, 0)
	atomic.StoreInt64(&m.ErrorCount, 0)
	atomic.StoreInt64(&m.CacheHits, 0)
	atomic.StoreInt64(&m.CacheMisses, 0)
	atomic.StoreInt64(&m.GitHubAPICalls, 0)
	atomic.StoreInt64(&m.AnalysesRun, 0)
	atomic.StoreInt64(&m.TrainingRuns, 0)
	atomic.StoreInt64(&m.PredictionsRun, 0)
	atomic.StoreInt64(&m.RateLimitBlocks, 0)
	atomic.StoreInt64(&m.RateLimitRedisErrors, 0)
	atomic.StoreInt64(&m.RateLimitFallbackCount, 0)

	m.statusMutex.Lock()
	m.RequestCountByStatus = make(map[int]int64)
	m.statusMutex.Unlock()

	m.StartTime = time.Now()
}
