// Package cache implements the two thumbnail tiers and the coordinator that
// resolves lookups across them.
//
// Lookups always go memory, then disk, then generation:
//
//	MemoryPool   volatile, tag-scoped metadata and descriptors
//	DiskVault    durable descriptor manifest plus thumbnail blobs
//	Generator    renders bytes on a full miss (see package thumbnail)
//
// Coordinator writes generated bytes back through both tiers. Concurrent
// ThumbnailData calls for the same asset and size share one generation.
//
// Releasing a tag removes every asset stored under it, even when another
// live tag also holds the asset. There is no per-asset reference count.
package cache
