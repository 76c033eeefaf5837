package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_cache_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_cache_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)
)

// Cache tier metrics
var (
	// CacheLookupsTotal counts lookups per tier ("memory", "disk", "bytes",
	// "blob") and result ("hit", "miss").
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_lookups_total",
			Help: "Cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_cache_entries",
			Help: "Entries currently held per store",
		},
		[]string{"store"}, // "pool_metadata", "pool_descriptors", "vault_descriptors"
	)

	VaultManifestWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_vault_manifest_writes_total",
			Help: "Manifest publishes by status",
		},
		[]string{"status"},
	)

	CoalescedRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_cache_coalesced_thumbnail_requests_total",
			Help: "Thumbnail byte requests that shared an in-flight generation",
		},
	)
)

// Thumbnail generation metrics
var (
	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_thumbnail_generations_total",
			Help: "Total number of thumbnail generations",
		},
		[]string{"status"}, // "success", "error"
	)

	ThumbnailGenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_cache_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
)

// Image pipeline metrics
var (
	PipelineRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_pipeline_requests_total",
			Help: "Image requests by the source that satisfied them",
		},
		[]string{"source"}, // "memory", "disk", "render", "joined", "failed", "canceled"
	)

	PipelineInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_pipeline_in_flight",
			Help: "Native render requests currently in flight",
		},
	)

	PipelineMemoryBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_pipeline_memory_bytes",
			Help: "Decoded bytes held by the image pipeline memory cache",
		},
	)

	DiskCacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_image_disk_cache_size_bytes",
			Help: "Size of the image disk cache after the last trim",
		},
	)

	DiskCacheEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_cache_image_disk_cache_evictions_total",
			Help: "Files removed by image disk cache trims",
		},
	)
)

// Prefetch metrics
var (
	PrefetchPlansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_prefetch_plans_total",
			Help: "Prefetch plans by intent",
		},
		[]string{"intent"},
	)

	PrefetchAssetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_prefetch_assets_total",
			Help: "Assets selected for warming by priority",
		},
		[]string{"priority"},
	)

	PrefetchSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_cache_prefetch_skipped_total",
			Help: "Low-priority warm batches skipped under memory pressure",
		},
	)
)

// Analysis queue metrics
var (
	AnalysisScheduledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_analysis_scheduled_total",
			Help: "Analysis tasks accepted into the queue by kind",
		},
		[]string{"kind"},
	)

	AnalysisDrainedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_cache_analysis_drained_total",
			Help: "Analysis tasks drained by the worker",
		},
	)

	AnalysisPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_analysis_pending",
			Help: "Analysis tasks waiting to be drained",
		},
	)

	AnalysisErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_analysis_errors_total",
			Help: "Analysis batch failures by stage",
		},
		[]string{"stage"}, // "analyze", "save"
	)
)

// Indexer metrics
var (
	IndexerRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_cache_indexer_runs_total",
			Help: "Total number of library scans",
		},
	)

	IndexerLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_indexer_last_run_duration_seconds",
			Help: "Duration of the last library scan in seconds",
		},
	)

	IndexerAssetsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_cache_indexer_assets_processed_total",
			Help: "Total number of assets processed by the indexer",
		},
	)

	IndexerErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_cache_indexer_errors_total",
			Help: "Total number of indexer errors",
		},
	)

	IndexerIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_indexer_running",
			Help: "Whether a scan is currently running (1 = running, 0 = idle)",
		},
	)
)

// Library metrics
var (
	LibraryAssetsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_library_assets_total",
			Help: "Assets recorded in the metadata store",
		},
	)

	LibraryAnalysisResultsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_library_analysis_results_total",
			Help: "Analysis results recorded in the metadata store",
		},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_cache_memory_paused",
			Help: "Whether background work is paused for memory (1 = paused)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_cache_memory_gc_pauses_total",
			Help: "Forced garbage collections triggered by memory pressure",
		},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_cache_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration by volume and operation",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_filesystem_operation_errors_total",
			Help: "Filesystem operation errors by volume and operation",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_filesystem_retry_attempts_total",
			Help: "Retries of stale NFS file handles",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_filesystem_retry_success_total",
			Help: "Operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_filesystem_retry_failures_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_cache_filesystem_retry_duration_seconds",
			Help:    "Total time spent in retried operations",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_cache_filesystem_stale_errors_total",
			Help: "ESTALE errors observed",
		},
		[]string{"operation", "volume"},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_cache_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
