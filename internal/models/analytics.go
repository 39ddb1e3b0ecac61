package models

import "time"

// SystemMetrics is a JSON-friendly snapshot of the service instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64           `json:"cache_hit_ratio"`
	CacheHits                uint64            `json:"cache_hits"`
	CacheMisses              uint64            `json:"cache_misses"`
	RequestsTotal            uint64            `json:"requests_total"`
	AverageRequestDurationMs float64           `json:"average_request_duration_ms"`
	DBQueryCount             uint64            `json:"db_query_count"`
	AverageDBQueryDurationMs float64           `json:"average_db_query_duration_ms"`
	PipelineRuns             uint64            `json:"pipeline_runs"`
	AveragePipelineMs        float64           `json:"average_pipeline_ms"`
	RecordsSkipped           map[string]uint64 `json:"records_skipped"`
	UnknownSwotCodes         uint64            `json:"unknown_swot_codes"`
	IntegrityWarnings        uint64            `json:"integrity_warnings"`
	StaleLoads               uint64            `json:"stale_loads"`
	Goroutines               int               `json:"goroutines"`
	GeneratedAt              time.Time         `json:"generated_at"`
}
