package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"media-cache/internal/filesystem"
	"media-cache/internal/logging"
	"media-cache/internal/media"
	"media-cache/internal/metrics"

	"golang.org/x/crypto/blake2b"
)

const (
	manifestName = "thumbnails.json"
	blobDirName  = "blobs"
)

var vaultLog = logging.For("DiskVault")

// MetadataSource is the durable asset database the vault defers to for
// metadata. The vault itself only owns descriptors and blobs.
type MetadataSource interface {
	Metadata(ctx context.Context, ids []string) ([]media.AssetMetadata, error)
}

// manifestEntry is the on-disk form of a descriptor. Timestamps are written
// as RFC 3339 UTC strings so the file stays diffable.
type manifestEntry struct {
	AssetID        string `json:"assetId"`
	PaletteSummary string `json:"paletteSummary"`
	Source         Source `json:"source"`
	UpdatedAt      string `json:"updatedAt"`
}

// DiskVault is the durable tier: a descriptor manifest plus one blob file
// per asset, named by a BLAKE2b digest of the asset id.
type DiskVault struct {
	dir      string
	manifest string
	blobs    string
	source   MetadataSource
	retry    filesystem.RetryConfig
	now      func() time.Time

	mu          sync.Mutex
	descriptors map[string]ThumbnailDescriptor
}

// OpenDiskVault creates dir if needed and loads its manifest. A missing or
// undecodable manifest loads as an empty vault.
func OpenDiskVault(dir string, source MetadataSource) (*DiskVault, error) {
	v := &DiskVault{
		dir:         dir,
		manifest:    filepath.Join(dir, manifestName),
		blobs:       filepath.Join(dir, blobDirName),
		source:      source,
		retry:       filesystem.DefaultRetryConfig(),
		now:         time.Now,
		descriptors: make(map[string]ThumbnailDescriptor),
	}

	if err := os.MkdirAll(v.blobs, 0o755); err != nil {
		return nil, fmt.Errorf("create vault directory: %w", err)
	}

	v.load()
	vaultLog.Debug("opened %s with %d descriptors", dir, len(v.descriptors))
	return v, nil
}

func (v *DiskVault) load() {
	data, err := filesystem.ReadFileWithRetry(v.manifest, v.retry)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			vaultLog.Warn("failed to read manifest: %v", err)
		}
		return
	}

	var entries map[string]manifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		vaultLog.Warn("manifest is corrupt, starting empty: %v", err)
		return
	}

	for id, e := range entries {
		updated, err := time.Parse(time.RFC3339, e.UpdatedAt)
		if err != nil {
			updated = time.Time{}
		}
		v.descriptors[id] = ThumbnailDescriptor{
			AssetID:        id,
			PaletteSummary: e.PaletteSummary,
			Source:         e.Source,
			UpdatedAt:      updated,
		}
	}
	v.report()
}

// persist rewrites the whole manifest. Must be called with mu held.
// Keys come out sorted because encoding/json sorts map keys.
func (v *DiskVault) persist() {
	entries := make(map[string]manifestEntry, len(v.descriptors))
	for id, d := range v.descriptors {
		entries[id] = manifestEntry{
			AssetID:        d.AssetID,
			PaletteSummary: d.PaletteSummary,
			Source:         d.Source,
			UpdatedAt:      d.UpdatedAt.UTC().Format(time.RFC3339),
		}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err == nil {
		err = filesystem.WriteFileAtomic(v.manifest, data, 0o644)
	}
	if err != nil {
		metrics.VaultManifestWritesTotal.WithLabelValues("error").Inc()
		vaultLog.Warn("failed to persist manifest: %v", err)
		return
	}
	metrics.VaultManifestWritesTotal.WithLabelValues("success").Inc()
	v.report()
}

// BootstrapIfNeeded seeds descriptors for assets the vault has never seen and
// returns how many were added. Existing descriptors are left alone.
func (v *DiskVault) BootstrapIfNeeded(assets []media.AssetMetadata) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now().UTC()
	added := 0
	for _, a := range assets {
		if _, ok := v.descriptors[a.ID]; ok {
			continue
		}
		v.descriptors[a.ID] = ThumbnailDescriptor{
			AssetID:        a.ID,
			PaletteSummary: a.PaletteSummary(),
			Source:         SourceDisk,
			UpdatedAt:      now,
		}
		added++
	}
	if added > 0 {
		v.persist()
		vaultLog.Info("bootstrapped %d descriptors", added)
	}
	return added
}

// Metadata delegates to the durable source. Failures are logged and read as
// misses.
func (v *DiskVault) Metadata(ctx context.Context, ids []string) []media.AssetMetadata {
	if v.source == nil || len(ids) == 0 {
		return nil
	}
	found, err := v.source.Metadata(ctx, ids)
	if err != nil {
		vaultLog.Warn("metadata lookup for %d ids failed: %v", len(ids), err)
		return nil
	}
	return found
}

// Thumbnails returns the known descriptors for ids with Source set to disk.
func (v *DiskVault) Thumbnails(ids []string) []ThumbnailDescriptor {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]ThumbnailDescriptor, 0, len(ids))
	for _, id := range ids {
		if d, ok := v.descriptors[id]; ok {
			d.Source = SourceDisk
			out = append(out, d)
		}
	}
	return out
}

// Store upserts descriptors and persists the manifest once for the batch.
func (v *DiskVault) Store(descriptors []ThumbnailDescriptor) {
	if len(descriptors) == 0 {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for _, d := range descriptors {
		if d.UpdatedAt.IsZero() {
			d.UpdatedAt = v.now()
		}
		d.UpdatedAt = d.UpdatedAt.UTC()
		v.descriptors[d.AssetID] = d
	}
	v.persist()
}

// BlobName returns the blob filename for an asset id: the hex BLAKE2b-256
// digest of the id.
func BlobName(assetID string) string {
	sum := blake2b.Sum256([]byte(assetID))
	return hex.EncodeToString(sum[:])
}

func (v *DiskVault) blobPath(assetID string) string {
	return filepath.Join(v.blobs, BlobName(assetID))
}

// StoreThumbnailData writes the encoded thumbnail for assetID.
func (v *DiskVault) StoreThumbnailData(data []byte, assetID string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := os.MkdirAll(v.blobs, 0o755); err != nil {
		vaultLog.Warn("failed to create blob directory: %v", err)
		return
	}
	if err := filesystem.WriteFileAtomic(v.blobPath(assetID), data, 0o644); err != nil {
		vaultLog.Warn("failed to write blob for %s: %v", assetID, err)
	}
}

// ThumbnailData reads the blob for assetID. Any read failure is a miss.
func (v *DiskVault) ThumbnailData(assetID string) ([]byte, bool) {
	data, err := filesystem.ReadFileWithRetry(v.blobPath(assetID), v.retry)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			vaultLog.Debug("blob read for %s failed: %v", assetID, err)
		}
		return nil, false
	}
	return data, true
}

// Clear deletes the manifest and all blobs, then persists an empty manifest.
func (v *DiskVault) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := os.Remove(v.manifest); err != nil && !errors.Is(err, os.ErrNotExist) {
		vaultLog.Warn("failed to remove manifest: %v", err)
	}
	if err := os.RemoveAll(v.blobs); err != nil {
		vaultLog.Warn("failed to remove blobs: %v", err)
	}
	if err := os.MkdirAll(v.blobs, 0o755); err != nil {
		vaultLog.Warn("failed to recreate blob directory: %v", err)
	}

	v.descriptors = make(map[string]ThumbnailDescriptor)
	v.persist()
	vaultLog.Info("cleared")
}

// Len returns the number of descriptors.
func (v *DiskVault) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.descriptors)
}

func (v *DiskVault) report() {
	metrics.CacheEntries.WithLabelValues("vault_descriptors").Set(float64(len(v.descriptors)))
}
