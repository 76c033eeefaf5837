// Package metrics provides Prometheus instrumentation for the media cache.
//
// All metrics are prefixed with "media_cache_" and registered with the default
// registry through promauto, so importing the package is enough to expose them
// on /metrics.
//
// # Metric Categories
//
//   - Cache tiers: lookups by tier and result, entries per store, manifest
//     publishes, coalesced thumbnail requests
//   - Thumbnail generation: count by status and duration
//   - Image pipeline: requests by source, in-flight renders, memory-cache bytes,
//     disk-cache size and evictions
//   - Prefetch: plans by intent, assets by priority, batches skipped under
//     memory pressure
//   - Analysis: tasks scheduled, drained and pending, batch failures
//   - Indexer, database, memory and filesystem health
//
// [InitializeMetrics] pre-creates label combinations so dashboards see zero
// values before the first event. [Collector] polls store sizes on an interval.
// [NewFilesystemObserver] bridges the filesystem package's observer hook.
package metrics
