// Package startup loads configuration and writes the startup and shutdown
// log sections of the media-cache host.
//
// # Configuration
//
// [LoadConfig] reads environment variables, then overlays the YAML file
// named by MEDIA_CACHE_CONFIG when it is set. File values win.
//
//   - LIBRARY_DIR: media library root (default: /media)
//   - CACHE_DIR: root for the thumbnail vault and image cache (default: /cache)
//   - DATABASE_DIR: SQLite directory (default: /database)
//   - PORT: HTTP port (default: 8080)
//   - SCAN_INTERVAL: periodic library rescan (default: 30m)
//   - ANALYSIS_INTERVAL: analysis drain period (default: 1s)
//   - IMAGE_CACHE_BUDGET: on-disk image cache budget, e.g. 2GiB (default: 1GiB)
//   - PIPELINE_MEMORY_BUDGET: decoded image memory budget (default: 128MiB)
//   - THUMBNAIL_MEMORY_ENTRIES: thumbnail byte cache entries (default: 512)
//   - THUMBNAIL_SIZE: thumbnail edge in pixels (default: 256)
//   - DISPLAY_SCALE: pixel scale applied to image requests (default: 1)
//   - METRICS_ENABLED: serve /metrics (default: true)
//   - LOG_HEALTH_CHECKS: log health check requests (default: true)
//   - LOG_LEVEL: debug, info, warn or error (default: info)
//
// The YAML keys are the lower-case variable names, e.g.:
//
//	library_dir: /photos
//	scan_interval: 10m
//	image_cache_budget: 4GiB
//
// Derived paths: <cache>/vault, <cache>/images and <database>/media.db.
//
// # Build Information
//
// Version, Commit and BuildTime are injected via -ldflags and exposed through
// [GetBuildInfo].
package startup
