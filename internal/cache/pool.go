package cache

import (
	"sync"
	"time"

	"media-cache/internal/media"
	"media-cache/internal/metrics"
)

// MemoryPool is the volatile tier. It has no eviction policy of its own;
// entries leave only through Release or Clear.
type MemoryPool struct {
	mu          sync.Mutex
	metadata    map[string]media.AssetMetadata
	descriptors map[string]ThumbnailDescriptor
	tags        map[Tag]map[string]struct{}
	now         func() time.Time
}

// NewMemoryPool creates an empty pool.
func NewMemoryPool() *MemoryPool {
	return &MemoryPool{
		metadata:    make(map[string]media.AssetMetadata),
		descriptors: make(map[string]ThumbnailDescriptor),
		tags:        make(map[Tag]map[string]struct{}),
		now:         time.Now,
	}
}

// Store overwrites metadata for each asset and creates a descriptor for ids
// that have none yet. Every id is recorded under tag.
func (p *MemoryPool) Store(assets []media.AssetMetadata, tag Tag) {
	p.mu.Lock()
	defer p.mu.Unlock()

	members, ok := p.tags[tag]
	if !ok {
		members = make(map[string]struct{}, len(assets))
		p.tags[tag] = members
	}

	now := p.now().UTC()
	for _, a := range assets {
		p.metadata[a.ID] = a
		if _, exists := p.descriptors[a.ID]; !exists {
			p.descriptors[a.ID] = ThumbnailDescriptor{
				AssetID:        a.ID,
				PaletteSummary: a.PaletteSummary(),
				Source:         SourceMemory,
				UpdatedAt:      now,
			}
		}
		members[a.ID] = struct{}{}
	}
	p.report()
}

// Metadata returns the entries present for ids, in request order.
func (p *MemoryPool) Metadata(ids []string) []media.AssetMetadata {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]media.AssetMetadata, 0, len(ids))
	for _, id := range ids {
		if m, ok := p.metadata[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Thumbnails returns the descriptors present for ids, in request order.
func (p *MemoryPool) Thumbnails(ids []string) []ThumbnailDescriptor {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]ThumbnailDescriptor, 0, len(ids))
	for _, id := range ids {
		if d, ok := p.descriptors[id]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Release removes every id ever stored under tag, regardless of other tags
// that still reference it, and forgets the tag.
func (p *MemoryPool) Release(tag Tag) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id := range p.tags[tag] {
		delete(p.metadata, id)
		delete(p.descriptors, id)
	}
	delete(p.tags, tag)
	p.report()
}

// Clear drops everything.
func (p *MemoryPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metadata = make(map[string]media.AssetMetadata)
	p.descriptors = make(map[string]ThumbnailDescriptor)
	p.tags = make(map[Tag]map[string]struct{})
	p.report()
}

// Len returns the number of metadata and descriptor entries.
func (p *MemoryPool) Len() (metadata, descriptors int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.metadata), len(p.descriptors)
}

// report must be called with mu held.
func (p *MemoryPool) report() {
	metrics.CacheEntries.WithLabelValues("pool_metadata").Set(float64(len(p.metadata)))
	metrics.CacheEntries.WithLabelValues("pool_descriptors").Set(float64(len(p.descriptors)))
}
