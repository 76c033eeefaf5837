package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
func InitializeMetrics() {
	for _, tier := range []string{"memory", "disk", "bytes", "blob"} {
		CacheLookupsTotal.WithLabelValues(tier, "hit")
		CacheLookupsTotal.WithLabelValues(tier, "miss")
	}

	for _, store := range []string{"pool_metadata", "pool_descriptors", "vault_descriptors"} {
		CacheEntries.WithLabelValues(store)
	}

	VaultManifestWritesTotal.WithLabelValues("success")
	VaultManifestWritesTotal.WithLabelValues("error")
	ThumbnailGenerationsTotal.WithLabelValues("success")
	ThumbnailGenerationsTotal.WithLabelValues("error")

	for _, source := range []string{"memory", "disk", "render", "joined", "failed", "canceled"} {
		PipelineRequestsTotal.WithLabelValues(source)
	}

	for _, intent := range []string{"sequential", "grouped", "ranked", "bucketed", "pending", "dashboard"} {
		PrefetchPlansTotal.WithLabelValues(intent)
	}
	for _, priority := range []string{"high", "normal", "low"} {
		PrefetchAssetsTotal.WithLabelValues(priority)
	}

	for _, kind := range []string{"similarity", "blur", "document", "metadata"} {
		AnalysisScheduledTotal.WithLabelValues(kind)
	}
	AnalysisErrorsTotal.WithLabelValues("analyze")
	AnalysisErrorsTotal.WithLabelValues("save")

	volumes := []string{"library", "vault", "images", "database", "unknown"}
	for _, vol := range volumes {
		for _, op := range []string{"read", "write", "stat", "readdir"} {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
		}
		for _, op := range []string{"stat", "read", "readdir"} {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	for _, op := range []string{"initialize_schema", "upsert_assets", "delete_assets", "get_assets", "save_analysis", "get_analysis", "get_setting", "set_setting", "stats", "vacuum"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
