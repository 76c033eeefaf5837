package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"media-cache/internal/filesystem"
	"media-cache/internal/logging"
	"media-cache/internal/metrics"

	"github.com/disintegration/imaging"
)

var diskLog = logging.For("ImageDiskCache")

// DiskCache is a byte-budgeted directory of encoded images, one file per
// key. The directory listing is the only index; eviction is by oldest
// modification time.
type DiskCache struct {
	dir    string
	budget int64
	retry  filesystem.RetryConfig

	// mu serializes writes, trims and clears so a trim never sees a
	// half-published file.
	mu     sync.Mutex
	writes sync.WaitGroup
}

// NewDiskCache creates dir if needed.
func NewDiskCache(dir string, budget int64) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image cache directory: %w", err)
	}
	return &DiskCache{
		dir:    dir,
		budget: budget,
		retry:  filesystem.DefaultRetryConfig(),
	}, nil
}

// Dir returns the cache root.
func (d *DiskCache) Dir() string {
	return d.dir
}

func (d *DiskCache) path(key string) (string, bool) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", false
	}
	return filepath.Join(d.dir, key), true
}

// Data returns the raw bytes stored under key.
func (d *DiskCache) Data(key string) ([]byte, bool) {
	path, ok := d.path(key)
	if !ok {
		return nil, false
	}
	data, err := filesystem.ReadFileWithRetry(path, d.retry)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Image decodes the entry stored under key. Undecodable entries are misses.
func (d *DiskCache) Image(key string) (image.Image, bool) {
	data, ok := d.Data(key)
	if !ok {
		return nil, false
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		diskLog.Debug("entry %s does not decode: %v", key, err)
		return nil, false
	}
	return img, true
}

// Store JPEG-encodes img and writes it in the background, then trims.
func (d *DiskCache) Store(img image.Image, key string) {
	d.writes.Add(1)
	go func() {
		defer d.writes.Done()

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
			diskLog.Warn("encode %s failed: %v", key, err)
			return
		}
		d.write(buf.Bytes(), key)
	}()
}

// StoreData writes already-encoded bytes in the background, then trims.
func (d *DiskCache) StoreData(data []byte, key string) {
	d.writes.Add(1)
	go func() {
		defer d.writes.Done()
		d.write(data, key)
	}()
}

func (d *DiskCache) write(data []byte, key string) {
	path, ok := d.path(key)
	if !ok {
		diskLog.Warn("rejecting invalid key %q", key)
		return
	}

	d.mu.Lock()
	err := filesystem.WriteFileAtomic(path, data, 0o644)
	d.mu.Unlock()
	if err != nil {
		diskLog.Warn("write %s failed: %v", key, err)
		return
	}
	d.Trim()
}

// Flush waits for pending background writes.
func (d *DiskCache) Flush() {
	d.writes.Wait()
}

type diskEntry struct {
	path    string
	size    int64
	modTime time.Time
}

// list returns the files under the root. ok is false when the directory
// cannot be read.
func (d *DiskCache) list() ([]diskEntry, bool) {
	dirEntries, err := filesystem.ReadDirWithRetry(d.dir, d.retry)
	if err != nil {
		diskLog.Debug("listing failed, skipping: %v", err)
		return nil, false
	}

	entries := make([]diskEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, diskEntry{
			path:    filepath.Join(d.dir, de.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}
	return entries, true
}

// Trim deletes the oldest files until total size is within budget.
func (d *DiskCache) Trim() {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, ok := d.list()
	if !ok {
		return
	}

	var total int64
	for _, e := range entries {
		total += e.size
	}
	if total > d.budget {
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].modTime.Equal(entries[j].modTime) {
				return entries[i].path < entries[j].path
			}
			return entries[i].modTime.Before(entries[j].modTime)
		})

		for _, e := range entries {
			if total <= d.budget {
				break
			}
			if err := os.Remove(e.path); err != nil {
				diskLog.Debug("evict %s failed: %v", filepath.Base(e.path), err)
				continue
			}
			total -= e.size
			metrics.DiskCacheEvictionsTotal.Inc()
		}
		diskLog.Debug("trimmed to %d bytes (budget %d)", total, d.budget)
	}
	metrics.DiskCacheSizeBytes.Set(float64(total))
}

// Usage returns the current total size of cached files.
func (d *DiskCache) Usage() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, _ := d.list()
	var total int64
	for _, e := range entries {
		total += e.size
	}
	return total
}

// Clear removes and recreates the cache directory.
func (d *DiskCache) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.RemoveAll(d.dir); err != nil {
		diskLog.Warn("clear failed: %v", err)
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		diskLog.Warn("recreate failed: %v", err)
	}
	metrics.DiskCacheSizeBytes.Set(0)
}
