package cache

import "time"

// Tag groups pool entries for bulk release, e.g. one screen's visible window.
type Tag string

// Source records which tier produced a descriptor.
type Source string

const (
	// SourceMemory marks descriptors served from the MemoryPool.
	SourceMemory Source = "memory"
	// SourceDisk marks descriptors served from the DiskVault.
	SourceDisk Source = "disk"
)

// ThumbnailDescriptor is a lightweight paint hint for an asset, not an image.
type ThumbnailDescriptor struct {
	AssetID        string    `json:"assetId"`
	PaletteSummary string    `json:"paletteSummary"`
	Source         Source    `json:"source"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
