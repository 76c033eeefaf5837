package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"media-cache/internal/logging"
	"media-cache/internal/media"
	"media-cache/internal/metrics"
	"media-cache/internal/workers"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var coordLog = logging.For("CacheCoordinator")

// Generator renders encoded thumbnail bytes. It reports false when the asset
// cannot be rendered.
type Generator interface {
	MakeThumbnail(ctx context.Context, asset media.Asset, size media.Size) ([]byte, bool)
}

// DefaultByteCacheEntries bounds the memory-resident thumbnail byte cache.
const DefaultByteCacheEntries = 512

// Coordinator resolves lookups across MemoryPool, DiskVault and the
// Generator, and writes generated results back through both tiers.
type Coordinator struct {
	pool      *MemoryPool
	vault     *DiskVault
	generator Generator

	bytes     *lru.Cache[string, []byte]
	flights   singleflight.Group
	warmLimit int

	bootstrapped sync.Once
}

// NewCoordinator wires the tiers together. byteEntries <= 0 selects
// DefaultByteCacheEntries.
func NewCoordinator(pool *MemoryPool, vault *DiskVault, generator Generator, byteEntries int) (*Coordinator, error) {
	if byteEntries <= 0 {
		byteEntries = DefaultByteCacheEntries
	}
	bytes, err := lru.New[string, []byte](byteEntries)
	if err != nil {
		return nil, fmt.Errorf("create thumbnail byte cache: %w", err)
	}
	return &Coordinator{
		pool:      pool,
		vault:     vault,
		generator: generator,
		bytes:     bytes,
		warmLimit: workers.ForThumbnails(0),
	}, nil
}

// Pool returns the memory tier.
func (c *Coordinator) Pool() *MemoryPool { return c.pool }

// Vault returns the disk tier.
func (c *Coordinator) Vault() *DiskVault { return c.vault }

// Bootstrap seeds the vault with descriptors for the library. Only the first
// call has any effect.
func (c *Coordinator) Bootstrap(assets []media.AssetMetadata) {
	c.bootstrapped.Do(func() {
		c.vault.BootstrapIfNeeded(assets)
	})
}

// Hydrate stores assets in the pool under tag and mirrors their descriptors
// into the vault.
func (c *Coordinator) Hydrate(assets []media.AssetMetadata, tag Tag) {
	if len(assets) == 0 {
		return
	}
	c.pool.Store(assets, tag)

	ids := make([]string, len(assets))
	for i, a := range assets {
		ids[i] = a.ID
	}
	c.vault.Store(c.pool.Thumbnails(ids))
}

// Metadata checks the pool, then asks the vault for whatever is missing.
// Ids unknown to both are omitted.
func (c *Coordinator) Metadata(ctx context.Context, ids []string) []media.AssetMetadata {
	found := c.pool.Metadata(ids)
	recordLookups("memory", len(found), len(ids))

	have := make([]string, len(found))
	for i, m := range found {
		have[i] = m.ID
	}
	missing := missingIDs(ids, have)
	if len(missing) == 0 {
		return found
	}

	fromDisk := c.vault.Metadata(ctx, missing)
	recordLookups("disk", len(fromDisk), len(missing))
	return append(found, fromDisk...)
}

// Thumbnails checks the pool, then the vault. Ids unknown to both are omitted.
func (c *Coordinator) Thumbnails(ids []string) []ThumbnailDescriptor {
	found := c.pool.Thumbnails(ids)
	recordLookups("memory", len(found), len(ids))

	have := make([]string, len(found))
	for i, d := range found {
		have[i] = d.AssetID
	}
	missing := missingIDs(ids, have)
	if len(missing) == 0 {
		return found
	}

	fromDisk := c.vault.Thumbnails(missing)
	recordLookups("disk", len(fromDisk), len(missing))
	return append(found, fromDisk...)
}

// ThumbnailData returns encoded thumbnail bytes for asset, trying the byte
// cache, then the blob store, then the generator. Generated bytes are written
// to both tiers. Concurrent calls for the same asset and size share a single
// generation.
func (c *Coordinator) ThumbnailData(ctx context.Context, asset media.Asset, size media.Size) ([]byte, bool) {
	if data, ok := c.bytes.Get(asset.ID); ok {
		metrics.CacheLookupsTotal.WithLabelValues("bytes", "hit").Inc()
		return data, true
	}
	metrics.CacheLookupsTotal.WithLabelValues("bytes", "miss").Inc()

	if data, ok := c.vault.ThumbnailData(asset.ID); ok {
		metrics.CacheLookupsTotal.WithLabelValues("blob", "hit").Inc()
		c.bytes.Add(asset.ID, data)
		return data, true
	}
	metrics.CacheLookupsTotal.WithLabelValues("blob", "miss").Inc()

	key := asset.ID + "@" + size.String()
	// One caller giving up must not fail the others sharing the flight.
	genCtx := context.WithoutCancel(ctx)
	v, _, shared := c.flights.Do(key, func() (interface{}, error) {
		return c.generate(genCtx, asset, size), nil
	})
	if shared {
		metrics.CoalescedRequestsTotal.Inc()
	}

	data, _ := v.([]byte)
	return data, data != nil
}

func (c *Coordinator) generate(ctx context.Context, asset media.Asset, size media.Size) []byte {
	start := time.Now()
	data, ok := c.generator.MakeThumbnail(ctx, asset, size)
	metrics.ThumbnailGenerationDuration.Observe(time.Since(start).Seconds())

	if !ok || len(data) == 0 {
		metrics.ThumbnailGenerationsTotal.WithLabelValues("error").Inc()
		coordLog.Debug("generation failed for %s at %s", asset.ID, size)
		return nil
	}
	metrics.ThumbnailGenerationsTotal.WithLabelValues("success").Inc()

	c.bytes.Add(asset.ID, data)
	c.vault.StoreThumbnailData(data, asset.ID)
	return data
}

// WarmThumbnails loads thumbnail bytes for every asset, bounded by the mixed
// worker count. It returns when the batch is done or ctx is cancelled;
// individual failures are ignored.
func (c *Coordinator) WarmThumbnails(ctx context.Context, assets []media.Asset, size media.Size) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.warmLimit)

	for _, asset := range assets {
		asset := asset
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			c.ThumbnailData(gctx, asset, size)
			return nil
		})
	}
	_ = g.Wait()
}

// Release drops the tag's cohort from the pool.
func (c *Coordinator) Release(tag Tag) {
	c.pool.Release(tag)
}

// ClearAll empties the pool, the byte cache and the vault.
func (c *Coordinator) ClearAll() {
	c.pool.Clear()
	c.bytes.Purge()
	c.vault.Clear()
	coordLog.Info("all tiers cleared")
}

func recordLookups(tier string, hits, total int) {
	metrics.CacheLookupsTotal.WithLabelValues(tier, "hit").Add(float64(hits))
	metrics.CacheLookupsTotal.WithLabelValues(tier, "miss").Add(float64(total - hits))
}

// missingIDs returns the ids not in have, preserving request order.
func missingIDs(ids, have []string) []string {
	if len(have) == len(ids) {
		return nil
	}
	seen := make(map[string]struct{}, len(have))
	for _, id := range have {
		seen[id] = struct{}{}
	}

	missing := make([]string, 0, len(ids)-len(have))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
