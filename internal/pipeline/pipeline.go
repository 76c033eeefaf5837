// Package pipeline serves full decoded images to the UI. Requests are keyed
// by asset, pixel-scaled size and content mode; a key has at most one native
// render in flight, and duplicate requests join it. Results are layered over
// a cost-bounded memory LRU and a byte-budgeted DiskCache.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"sync"

	"media-cache/internal/logging"
	"media-cache/internal/media"
	"media-cache/internal/metrics"
	"media-cache/internal/workers"

	"github.com/cespare/xxhash/v2"
)

var log = logging.For("ImagePipeline")

// DefaultMemoryBudget is the decoded-image budget of the memory tier.
const DefaultMemoryBudget int64 = 128 << 20

// Source says where a Result came from.
type Source string

// Result sources.
const (
	SourceMemory Source = "memory"
	SourceDisk   Source = "disk"
	SourceRender Source = "render"
)

// Result is delivered to a request's completion. Image is nil when the
// render failed.
type Result struct {
	Image  image.Image
	Source Source
}

// Completion receives the outcome of a request. It runs on a pipeline
// goroutine unless the request was a memory hit.
type Completion func(Result)

// Config tunes a Pipeline.
type Config struct {
	// Scale is the display scale applied to requested sizes (default 1).
	Scale float64
	// MemoryBudget bounds decoded images held in memory, in bytes.
	MemoryBudget int64
	// MaxRenders bounds concurrent native renders (default workers.ForDecode).
	MaxRenders int
}

// Pipeline deduplicates image requests against the media library.
type Pipeline struct {
	library media.Library
	disk    *DiskCache
	memory  *memoryCache
	scale   float64
	renders chan struct{}

	mu      sync.Mutex
	flights map[string]*flight
	running sync.WaitGroup
}

type flight struct {
	cancel  context.CancelFunc
	waiters map[*Token]Completion
}

// Token identifies one caller's interest in a request.
type Token struct {
	p   *Pipeline
	key string
}

// New creates a pipeline over library and disk.
func New(library media.Library, disk *DiskCache, cfg Config) *Pipeline {
	if cfg.Scale <= 0 {
		cfg.Scale = 1
	}
	if cfg.MemoryBudget <= 0 {
		cfg.MemoryBudget = DefaultMemoryBudget
	}
	if cfg.MaxRenders <= 0 {
		cfg.MaxRenders = workers.ForDecode(0)
	}
	return &Pipeline{
		library: library,
		disk:    disk,
		memory:  newMemoryCache(cfg.MemoryBudget),
		scale:   cfg.Scale,
		renders: make(chan struct{}, cfg.MaxRenders),
		flights: make(map[string]*flight),
	}
}

// Key is the cache key for an already-scaled size: hex xxhash64 of
// "id|W|H|mode".
func Key(assetID string, size media.Size, mode media.ContentMode) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(fmt.Sprintf("%s|%d|%d|%s", assetID, size.Width, size.Height, mode)))
}

// RequestImage resolves asset at size. Memory hits complete before
// RequestImage returns; anything else completes from a background render
// or disk read shared with concurrent identical requests.
func (p *Pipeline) RequestImage(asset media.Asset, size media.Size, mode media.ContentMode, completion Completion) *Token {
	scaled := size.Scaled(p.scale)
	key := Key(asset.ID, scaled, mode)
	token := &Token{p: p, key: key}

	if img, ok := p.memory.Get(key); ok {
		metrics.PipelineRequestsTotal.WithLabelValues(string(SourceMemory)).Inc()
		completion(Result{Image: img, Source: SourceMemory})
		return token
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if f, ok := p.flights[key]; ok {
		f.waiters[token] = completion
		metrics.PipelineRequestsTotal.WithLabelValues("joined").Inc()
		return token
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &flight{cancel: cancel, waiters: map[*Token]Completion{token: completion}}
	p.flights[key] = f
	metrics.PipelineInFlight.Set(float64(len(p.flights)))

	p.running.Add(1)
	go p.run(ctx, f, key, asset, scaled, mode)
	return token
}

func (p *Pipeline) run(ctx context.Context, f *flight, key string, asset media.Asset, size media.Size, mode media.ContentMode) {
	defer p.running.Done()
	defer f.cancel()

	result := p.load(ctx, key, asset, size, mode)

	p.mu.Lock()
	if p.flights[key] == f {
		delete(p.flights, key)
	}
	waiters := f.waiters
	f.waiters = nil
	metrics.PipelineInFlight.Set(float64(len(p.flights)))
	p.mu.Unlock()

	if len(waiters) == 0 {
		metrics.PipelineRequestsTotal.WithLabelValues("canceled").Inc()
		return
	}
	for _, completion := range waiters {
		completion(result)
	}
}

func (p *Pipeline) load(ctx context.Context, key string, asset media.Asset, size media.Size, mode media.ContentMode) Result {
	if img, ok := p.disk.Image(key); ok {
		p.memory.Add(key, img)
		p.reportMemory()
		metrics.PipelineRequestsTotal.WithLabelValues(string(SourceDisk)).Inc()
		return Result{Image: img, Source: SourceDisk}
	}

	select {
	case p.renders <- struct{}{}:
	case <-ctx.Done():
		return Result{Source: SourceRender}
	}
	// Both cases may be ready at once; a cancelled flight never renders.
	if ctx.Err() != nil {
		<-p.renders
		return Result{Source: SourceRender}
	}
	img, err := p.library.Render(ctx, asset, size, mode)
	<-p.renders
	if err != nil || img == nil {
		if ctx.Err() == nil {
			log.Debug("render failed for %s at %s: %v", asset.ID, size, err)
			metrics.PipelineRequestsTotal.WithLabelValues("failed").Inc()
		}
		return Result{Source: SourceRender}
	}

	p.memory.Add(key, img)
	p.reportMemory()
	p.disk.Store(img, key)
	metrics.PipelineRequestsTotal.WithLabelValues(string(SourceRender)).Inc()
	return Result{Image: img, Source: SourceRender}
}

func (p *Pipeline) reportMemory() {
	metrics.PipelineMemoryBytes.Set(float64(p.memory.Bytes()))
}

// Cancel detaches this token from its request. The native render is
// cancelled once no tokens remain. Cancelling a completed or cache-served
// request does nothing.
func (t *Token) Cancel() {
	p := t.p
	p.mu.Lock()
	defer p.mu.Unlock()

	f, ok := p.flights[t.key]
	if !ok {
		return
	}
	if _, waiting := f.waiters[t]; !waiting {
		return
	}
	delete(f.waiters, t)
	if len(f.waiters) == 0 {
		f.cancel()
		delete(p.flights, t.key)
		metrics.PipelineInFlight.Set(float64(len(p.flights)))
	}
}

// CancelAll cancels every tracked request without invoking completions.
func (p *Pipeline) CancelAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, f := range p.flights {
		f.waiters = nil
		f.cancel()
		delete(p.flights, key)
	}
	metrics.PipelineInFlight.Set(0)
}

// InFlight returns the number of keys with a pending request.
func (p *Pipeline) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.flights)
}

// Wait blocks until every started request goroutine has returned.
func (p *Pipeline) Wait() {
	p.running.Wait()
}

// Prefetch hands the batch to the library's own caching manager.
func (p *Pipeline) Prefetch(assets []media.Asset, size media.Size, mode media.ContentMode) {
	p.library.StartCaching(assets, size.Scaled(p.scale), mode)
}

// StopPrefetching releases a batch from the library's caching manager.
func (p *Pipeline) StopPrefetching(assets []media.Asset, size media.Size, mode media.ContentMode) {
	p.library.StopCaching(assets, size.Scaled(p.scale), mode)
}

// Purge drops the memory tier.
func (p *Pipeline) Purge() {
	p.memory.Purge()
	p.reportMemory()
}
