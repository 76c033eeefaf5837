// Package handlers provides the HTTP surface of the media-cache host.
//
// It includes handlers for:
//   - Thumbnails served through the cache coordinator
//   - Full images served through the image pipeline
//   - Metadata and descriptor lookups
//   - Prefetch planning and its event log
//   - Cache release, clearing and re-indexing
//   - Health, version and metrics endpoints
package handlers
