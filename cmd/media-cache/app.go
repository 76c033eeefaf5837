package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"media-cache/internal/analysis"
	"media-cache/internal/cache"
	"media-cache/internal/database"
	"media-cache/internal/filesystem"
	"media-cache/internal/handlers"
	"media-cache/internal/indexer"
	"media-cache/internal/logging"
	"media-cache/internal/media"
	"media-cache/internal/memory"
	"media-cache/internal/metrics"
	"media-cache/internal/pipeline"
	"media-cache/internal/prefetch"
	"media-cache/internal/startup"
	"media-cache/internal/thumbnail"
)

const (
	// libraryRenderEntries bounds the library's own pre-render cache.
	libraryRenderEntries = 256
	// statsInterval is how often the collector refreshes store gauges.
	statsInterval = time.Minute
)

// app owns every long-lived component of the host.
type app struct {
	config *startup.Config

	db        *database.Database
	library   *media.FileLibrary
	monitor   *memory.Monitor
	coord     *cache.Coordinator
	pipeline  *pipeline.Pipeline
	images    *pipeline.DiskCache
	prefetch  *prefetch.Manager
	scheduler *analysis.Scheduler
	worker    *analysis.Worker
	indexer   *indexer.Indexer
	collector *metrics.Collector

	done     chan struct{}
	wg       sync.WaitGroup
	started  bool
	stopOnce sync.Once
}

// newApp opens the stores and wires the cache stack. Nothing runs in the
// background until start.
func newApp(ctx context.Context, config *startup.Config) (*app, error) {
	filesystem.SetObserver(metrics.NewFilesystemObserver())
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"library":  config.LibraryDir,
		"vault":    config.VaultDir,
		"images":   config.ImageCacheDir,
		"database": config.DatabaseDir,
	}))

	dbStart := time.Now()
	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart))

	a := &app{config: config, db: db, done: make(chan struct{})}
	if err := a.wire(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	config := a.config

	library, err := media.NewFileLibrary(config.LibraryDir, libraryRenderEntries)
	if err != nil {
		return err
	}
	a.library = library

	a.monitor = memory.NewMonitor(memory.DefaultConfig())

	vault, err := cache.OpenDiskVault(config.VaultDir, a.db)
	if err != nil {
		return err
	}
	a.coord, err = cache.NewCoordinator(cache.NewMemoryPool(), vault, thumbnail.NewBridge(library), config.ThumbnailMemoryEntries)
	if err != nil {
		return err
	}

	a.images, err = pipeline.NewDiskCache(config.ImageCacheDir, config.ImageCacheBudget)
	if err != nil {
		return err
	}
	a.pipeline = pipeline.New(library, a.images, pipeline.Config{
		Scale:        config.DisplayScale,
		MemoryBudget: config.PipelineMemoryBudget,
	})

	a.prefetch = prefetch.NewManager(a.coord, a.monitor)

	a.scheduler = analysis.NewScheduler()
	a.worker = analysis.NewWorker(a.scheduler, analysis.NewLibraryAnalyzer(library), a.db, analysis.WorkerConfig{
		Interval: config.AnalysisInterval,
		Pauser:   a.monitor,
	})

	a.indexer = indexer.New(a.db, library, a.coord, a.scheduler, indexer.Config{
		Interval: config.ScanInterval,
		Root:     library.Root(),
	})

	a.collector = metrics.NewCollector(metrics.StatsProviderFunc(a.stats), statsInterval)

	startup.LogCacheInit(config, vault.Len(), a.images.Usage())
	return nil
}

// handlers builds the HTTP handlers over the wired stack.
func (a *app) handlers() *handlers.Handlers {
	return handlers.New(handlers.Config{
		Library:       a.library,
		Coordinator:   a.coord,
		Pipeline:      a.pipeline,
		ImageCache:    a.images,
		Prefetcher:    a.prefetch,
		Indexer:       a.indexer,
		ThumbnailSize: a.config.ThumbnailSize,
	})
}

// start launches the background services.
func (a *app) start() error {
	a.started = true
	a.monitor.Start()
	a.collector.Start()

	updates := a.worker.Subscribe()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.refreshDescriptors(updates)
	}()
	a.worker.Start()

	startup.LogIndexerInit(a.config.ScanInterval)
	if err := a.indexer.Start(); err != nil {
		return fmt.Errorf("failed to start indexer: %w", err)
	}
	startup.LogIndexerStarted()
	return nil
}

// refreshDescriptors pushes palettes derived by metadata analysis into the
// vault so descriptors stay in step with the store.
func (a *app) refreshDescriptors(updates <-chan analysis.Update) {
	for {
		select {
		case <-a.done:
			return
		case u := <-updates:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			meta, err := a.db.Metadata(ctx, u.AssetIDs)
			cancel()
			if err != nil {
				logging.Warn("descriptor refresh for %d assets failed: %v", len(u.AssetIDs), err)
				continue
			}

			now := time.Now()
			descriptors := make([]cache.ThumbnailDescriptor, 0, len(meta))
			for _, m := range meta {
				descriptors = append(descriptors, cache.ThumbnailDescriptor{
					AssetID:        m.ID,
					PaletteSummary: m.PaletteSummary(),
					Source:         cache.SourceDisk,
					UpdatedAt:      now,
				})
			}
			a.coord.Vault().Store(descriptors)
		}
	}
}

func (a *app) stats() metrics.Stats {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := metrics.Stats{
		VaultDescriptors: a.coord.Vault().Len(),
		ImageCacheBytes:  a.images.Usage(),
		AnalysisPending:  a.scheduler.Pending(),
	}
	s.PoolMetadata, s.PoolDescriptors = a.coord.Pool().Len()

	assets, results, err := a.db.Stats(ctx)
	if err != nil {
		logging.Debug("store stats unavailable: %v", err)
		return s
	}
	s.Assets, s.AnalysisResults = assets, results
	return s
}

// stop shuts every component down in dependency order. It is safe to call
// more than once.
func (a *app) stop() {
	a.stopOnce.Do(func() {
		if a.started {
			startup.LogShutdownStep("Stopping indexer")
			a.indexer.Stop()
			startup.LogShutdownStepComplete("Indexer stopped")

			startup.LogShutdownStep("Stopping analysis worker")
			a.worker.Stop()
			close(a.done)
			a.wg.Wait()
			startup.LogShutdownStepComplete("Analysis worker stopped")

			a.collector.Stop()
			a.monitor.Stop()
		}

		startup.LogShutdownStep("Draining caches")
		a.prefetch.Close()
		a.pipeline.CancelAll()
		a.pipeline.Wait()
		a.library.WaitCaching()
		a.images.Flush()
		startup.LogShutdownStepComplete("Caches drained")

		startup.LogShutdownStep("Closing database")
		if err := a.db.Close(); err != nil {
			logging.Warn("database close error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Database closed")
		}
	})
}
