// Package main provides the media-cache command.
//
// media-cache sits between a media library on disk and a gallery client. It
// answers thumbnail, metadata and full image requests from a stack of caches
// and keeps those caches warm ahead of the user.
//
// # Commands
//
//   - serve: index the library, start background services, serve HTTP
//   - warm: scan once and render every thumbnail into the vault
//   - clear: wipe the thumbnail vault and the image disk cache
//   - version: print build information
//
// # Application Lifecycle
//
// serve initializes in this order:
//
//  1. Memory Configuration: GOMEMLIMIT from environment or cgroup limits
//  2. Configuration Loading: environment variables, then the optional YAML overlay
//  3. Media Tools: libvips (optional) and FFmpeg for video frames
//  4. Database Initialization: SQLite store of assets, analysis results and settings
//  5. Cache Stack:
//     - Memory pool of tagged metadata and thumbnail descriptors
//     - Disk vault of descriptors and thumbnail JPEGs
//     - Coordinator with a bounded in-memory thumbnail byte cache
//     - Image pipeline with a byte-budgeted disk cache
//     - Prefetch manager throttled by the memory monitor
//  6. Background Services: analysis worker, indexer, metrics collector
//  7. HTTP Server: routes, logging, compression and metrics middleware
//
// # Graceful Shutdown
//
// On SIGINT or SIGTERM the HTTP server drains (30s timeout), then the
// indexer and analysis worker stop, outstanding image requests are
// cancelled, pending disk cache writes are flushed and the database closes.
//
// # Build Requirements
//
// CGO is required for SQLite and libvips. Without libvips the pure Go
// decoders are used.
//
//	go build -o media-cache ./cmd/media-cache
//
// # Related Packages
//
//   - [media-cache/internal/cache]: memory pool, disk vault and coordinator
//   - [media-cache/internal/pipeline]: image pipeline and disk cache
//   - [media-cache/internal/prefetch]: intent-driven prefetching
//   - [media-cache/internal/analysis]: metadata analysis scheduler and worker
//   - [media-cache/internal/indexer]: library scanning and change watching
//   - [media-cache/internal/handlers]: HTTP request handlers
//   - [media-cache/internal/startup]: configuration and startup logging
package main
