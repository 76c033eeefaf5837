package handlers

import (
	"time"

	"media-cache/internal/cache"
	"media-cache/internal/indexer"
	"media-cache/internal/logging"
	"media-cache/internal/media"
	"media-cache/internal/pipeline"
	"media-cache/internal/prefetch"
)

var log = logging.For("Handlers")

// DefaultImageTimeout bounds how long an image request waits on the pipeline.
const DefaultImageTimeout = 30 * time.Second

// IndexStatus is the part of the indexer the handlers report on.
type IndexStatus interface {
	IsReady() bool
	IsIndexing() bool
	TriggerIndex()
	GetHealthStatus() indexer.HealthStatus
}

// Config wires the handlers to the cache stack. Indexer may be nil.
type Config struct {
	Library       media.Library
	Coordinator   *cache.Coordinator
	Pipeline      *pipeline.Pipeline
	ImageCache    *pipeline.DiskCache
	Prefetcher    *prefetch.Manager
	Indexer       IndexStatus
	ThumbnailSize int
	ImageTimeout  time.Duration
}

// Handlers serves the HTTP API.
type Handlers struct {
	library      media.Library
	coordinator  *cache.Coordinator
	pipeline     *pipeline.Pipeline
	imageCache   *pipeline.DiskCache
	prefetcher   *prefetch.Manager
	indexer      IndexStatus
	thumbSize    media.Size
	imageTimeout time.Duration
	startTime    time.Time
}

// New creates the handlers.
func New(config Config) *Handlers {
	edge := config.ThumbnailSize
	if edge <= 0 {
		edge = 256
	}
	timeout := config.ImageTimeout
	if timeout <= 0 {
		timeout = DefaultImageTimeout
	}
	return &Handlers{
		library:      config.Library,
		coordinator:  config.Coordinator,
		pipeline:     config.Pipeline,
		imageCache:   config.ImageCache,
		prefetcher:   config.Prefetcher,
		indexer:      config.Indexer,
		thumbSize:    media.Size{Width: edge, Height: edge},
		imageTimeout: timeout,
		startTime:    time.Now(),
	}
}
