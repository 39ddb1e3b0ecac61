package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/scorecard-api/internal/models"
)

// Skip reasons reported by the normalizer.
const (
	SkipMissingStudentID  = "missing_student_id"
	SkipInvalidTestNumber = "invalid_test_number"
	SkipMalformedRow      = "malformed_row"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	cacheLatency     prometheus.Observer
	cacheWrite       prometheus.Observer
	cacheHitRatio    prometheus.Gauge
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	dbQueryDuration  *prometheus.HistogramVec
	pipelineDuration *prometheus.HistogramVec
	recordsSkipped   *prometheus.CounterVec
	unknownCodes     prometheus.Counter
	integrityWarns   prometheus.Counter
	staleLoads       prometheus.Counter

	cacheHitCount         uint64
	cacheMissCount        uint64
	requestCount          uint64
	requestDurationTotal  uint64
	dbQueryCount          uint64
	dbQueryDurationTotal  uint64
	pipelineCount         uint64
	pipelineDurationTotal uint64
	skippedMissingID      uint64
	skippedInvalidTest    uint64
	skippedMalformed      uint64
	unknownCodeCount      uint64
	integrityWarnCount    uint64
	staleLoadCount        uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "snapshot_cache_latency_seconds",
		Help:    "Latency for raw snapshot cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "snapshot_cache_write_seconds",
		Help:    "Latency for raw snapshot cache writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "snapshot_cache_hit_ratio",
		Help: "Ratio of snapshot cache hits to total lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snapshot_cache_hits_total",
		Help: "Total snapshot cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snapshot_cache_misses_total",
		Help: "Total snapshot cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	pipelineDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "performance_pipeline_duration_seconds",
		Help:    "Time spent deriving dashboard metrics from a raw snapshot",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
	}, []string{"operation"})

	recordsSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "performance_records_skipped_total",
		Help: "Raw records dropped during normalisation, by reason",
	}, []string{"reason"})

	unknownCodes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "performance_swot_unknown_codes_total",
		Help: "SWOT metric codes missing from the vocabulary",
	})

	integrityWarns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "performance_integrity_warnings_total",
		Help: "Duplicate (student, test) records tolerated by the pipeline",
	})

	staleLoads := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "performance_stale_loads_total",
		Help: "Snapshot loads discarded because a newer request superseded them",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		dbQueryDuration, pipelineDuration, recordsSkipped, unknownCodes, integrityWarns, staleLoads, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		cacheLatency:     cacheLatency,
		cacheWrite:       cacheWrite,
		cacheHitRatio:    cacheHitRatio,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		dbQueryDuration:  dbQueryDuration,
		pipelineDuration: pipelineDuration,
		recordsSkipped:   recordsSkipped,
		unknownCodes:     unknownCodes,
		integrityWarns:   integrityWarns,
		staleLoads:       staleLoads,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
	atomic.AddUint64(&m.dbQueryCount, 1)
	atomic.AddUint64(&m.dbQueryDurationTotal, uint64(duration.Nanoseconds()))
}

// ObservePipeline records one pipeline run and the diagnostics it produced.
func (m *MetricsService) ObservePipeline(operation string, duration time.Duration, diag models.Diagnostics) {
	if m == nil {
		return
	}
	m.pipelineDuration.WithLabelValues(operation).Observe(duration.Seconds())
	atomic.AddUint64(&m.pipelineCount, 1)
	atomic.AddUint64(&m.pipelineDurationTotal, uint64(duration.Nanoseconds()))

	if diag.MissingStudentID > 0 {
		m.recordsSkipped.WithLabelValues(SkipMissingStudentID).Add(float64(diag.MissingStudentID))
		atomic.AddUint64(&m.skippedMissingID, uint64(diag.MissingStudentID))
	}
	if diag.InvalidTestNumber > 0 {
		m.recordsSkipped.WithLabelValues(SkipInvalidTestNumber).Add(float64(diag.InvalidTestNumber))
		atomic.AddUint64(&m.skippedInvalidTest, uint64(diag.InvalidTestNumber))
	}
	if diag.MalformedRows > 0 {
		m.recordsSkipped.WithLabelValues(SkipMalformedRow).Add(float64(diag.MalformedRows))
		atomic.AddUint64(&m.skippedMalformed, uint64(diag.MalformedRows))
	}
	if n := len(diag.UnknownMetricCodes); n > 0 {
		m.unknownCodes.Add(float64(n))
		atomic.AddUint64(&m.unknownCodeCount, uint64(n))
	}
	if n := len(diag.IntegrityWarnings); n > 0 {
		m.integrityWarns.Add(float64(n))
		atomic.AddUint64(&m.integrityWarnCount, uint64(n))
	}
}

// RecordStaleLoad counts a snapshot load discarded by the stale guard.
func (m *MetricsService) RecordStaleLoad() {
	if m == nil {
		return
	}
	m.staleLoads.Inc()
	atomic.AddUint64(&m.staleLoadCount, 1)
}

// Snapshot returns aggregated metrics suitable for the system endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	dbCount := atomic.LoadUint64(&m.dbQueryCount)
	dbDuration := atomic.LoadUint64(&m.dbQueryDurationTotal)
	runs := atomic.LoadUint64(&m.pipelineCount)
	runDuration := atomic.LoadUint64(&m.pipelineDurationTotal)

	skipped := map[string]uint64{
		SkipMissingStudentID:  atomic.LoadUint64(&m.skippedMissingID),
		SkipInvalidTestNumber: atomic.LoadUint64(&m.skippedInvalidTest),
		SkipMalformedRow:      atomic.LoadUint64(&m.skippedMalformed),
	}

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: averageMillis(reqDuration, requests),
		DBQueryCount:             dbCount,
		AverageDBQueryDurationMs: averageMillis(dbDuration, dbCount),
		PipelineRuns:             runs,
		AveragePipelineMs:        averageMillis(runDuration, runs),
		RecordsSkipped:           skipped,
		UnknownSwotCodes:         atomic.LoadUint64(&m.unknownCodeCount),
		IntegrityWarnings:        atomic.LoadUint64(&m.integrityWarnCount),
		StaleLoads:               atomic.LoadUint64(&m.staleLoadCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}

func averageMillis(totalNanos, count uint64) float64 {
	if count == 0 {
		return 0
	}
	return float64(totalNanos) / float64(count) / float64(time.Millisecond)
}
