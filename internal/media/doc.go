// Package media defines the asset model shared by the cache tiers and the
// library collaborator they consume.
//
// The Library interface is the boundary to the native media layer: it
// resolves asset ids to handles, renders pixels at a target size, and runs
// its own caching manager for prefetch batches. FileLibrary is the
// filesystem-backed implementation used by the host command:
//   - Images: libvips decode-time shrinking when available, imaging otherwise
//   - Videos: frame extraction using FFmpeg
//
// DerivePalette computes the display palette stored in AssetMetadata.
package media
