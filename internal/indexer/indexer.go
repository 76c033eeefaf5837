package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"media-cache/internal/analysis"
	"media-cache/internal/database"
	"media-cache/internal/logging"
	"media-cache/internal/media"
	"media-cache/internal/metrics"
)

const (
	// Number of assets to upsert per transaction
	batchSize = 500

	// Delay between batches to let readers in
	batchDelay = 10 * time.Millisecond

	// DefaultInterval is the periodic rescan interval.
	DefaultInterval = 30 * time.Minute

	// DefaultDebounce is how long filesystem events are collected before a rescan.
	DefaultDebounce = 2 * time.Second
)

var log = logging.For("Indexer")

// Scanner lists the assets of a library.
type Scanner interface {
	Scan(ctx context.Context) ([]media.Asset, error)
}

// Bootstrapper seeds the disk vault from the metadata store.
type Bootstrapper interface {
	Bootstrap(assets []media.AssetMetadata)
}

// Config controls scan scheduling.
type Config struct {
	// Interval between periodic rescans; 0 disables them.
	Interval time.Duration
	// Root is watched with fsnotify when non-empty.
	Root string
	// Debounce collapses bursts of filesystem events.
	Debounce time.Duration
}

// Indexer keeps the database in step with the library.
type Indexer struct {
	db        *database.Database
	library   Scanner
	coord     Bootstrapper
	scheduler *analysis.Scheduler
	config    Config

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	wgMu    sync.Mutex
	stopped bool

	indexMu           sync.Mutex
	isIndexing        bool
	lastIndexTime     time.Time
	lastIndexed       int
	initialComplete   bool
	initialIndexError error
	startTime         time.Time

	bootstrapOnce sync.Once
	stopOnce      sync.Once
}

// HealthStatus contains health check information.
type HealthStatus struct {
	Ready             bool      `json:"ready"`
	Indexing          bool      `json:"indexing"`
	StartTime         time.Time `json:"startTime"`
	Uptime            string    `json:"uptime"`
	LastIndexed       time.Time `json:"lastIndexed,omitempty"`
	AssetsIndexed     int       `json:"assetsIndexed"`
	InitialIndexError string    `json:"initialIndexError,omitempty"`
}

// New creates an Indexer. coord and scheduler may be nil.
func New(db *database.Database, library Scanner, coord Bootstrapper, scheduler *analysis.Scheduler, config Config) *Indexer {
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Indexer{
		db:        db,
		library:   library,
		coord:     coord,
		scheduler: scheduler,
		config:    config,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Start runs the initial scan in the background and begins periodic and
// change-driven rescans.
func (idx *Indexer) Start() error {
	var w *watcher
	if idx.config.Root != "" {
		var err error
		w, err = newWatcher(idx.config.Root, idx.config.Debounce)
		if err != nil {
			// Periodic rescans still cover changes.
			log.Warn("file watching disabled: %v", err)
			w = nil
		}
	}

	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		log.Info("starting initial index in background...")
		if err := idx.Index(idx.ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("initial index error: %v", err)
			idx.indexMu.Lock()
			idx.initialIndexError = err
			idx.indexMu.Unlock()
		}
	}()

	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		idx.loop(w)
	}()

	return nil
}

func (idx *Indexer) loop(w *watcher) {
	var changes <-chan struct{}
	if w != nil {
		defer w.Close()
		changes = w.Events()
	}

	var tick <-chan time.Time
	if idx.config.Interval > 0 {
		ticker := time.NewTicker(idx.config.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			log.Debug("periodic re-index triggered")
			idx.reindex("periodic")
		case <-changes:
			log.Info("file changes detected, triggering re-index")
			idx.reindex("change detection")
		case <-idx.ctx.Done():
			return
		}
	}
}

func (idx *Indexer) reindex(reason string) {
	if err := idx.Index(idx.ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("re-index after %s failed: %v", reason, err)
	}
}

// Stop cancels any running scan and waits for background goroutines.
func (idx *Indexer) Stop() {
	idx.stopOnce.Do(func() {
		idx.wgMu.Lock()
		idx.stopped = true
		idx.wgMu.Unlock()

		idx.cancel()
		idx.wg.Wait()
	})
}

// Index performs a full scan. It returns nil without scanning when another
// scan is already running.
func (idx *Indexer) Index(ctx context.Context) error {
	if !idx.tryStartIndexing() {
		log.Info("index already in progress, skipping...")
		return nil
	}
	defer idx.finishIndexing()

	metrics.IndexerIsRunning.Set(1)
	defer metrics.IndexerIsRunning.Set(0)
	metrics.IndexerRunsTotal.Inc()

	startTime := time.Now()
	log.Info("starting library scan...")

	assets, err := idx.library.Scan(ctx)
	if err != nil {
		metrics.IndexerErrors.Inc()
		return err
	}

	changed, err := idx.upsertBatches(ctx, assets)
	if err != nil {
		metrics.IndexerErrors.Inc()
		return err
	}

	// Every asset this scan saw has seen_at >= startTime.
	if removed, err := idx.db.DeleteMissingAssets(ctx, startTime); err != nil {
		log.Error("error cleaning up missing assets: %v", err)
		metrics.IndexerErrors.Inc()
	} else if removed > 0 {
		log.Info("removed %d missing assets from index", removed)
	}

	idx.bootstrapOnce.Do(idx.bootstrap)

	if idx.scheduler != nil && len(changed) > 0 {
		queued := idx.scheduler.Schedule(analysis.KindMetadata, changed)
		log.Debug("queued metadata analysis for %d assets", queued)
	}

	if err := idx.db.SetLastScan(ctx, time.Now()); err != nil {
		log.Warn("failed to record scan time: %v", err)
	}
	if _, _, err := idx.db.Stats(ctx); err != nil {
		log.Debug("stats refresh failed: %v", err)
	}

	duration := time.Since(startTime)
	idx.indexMu.Lock()
	idx.lastIndexTime = time.Now()
	idx.lastIndexed = len(assets)
	idx.indexMu.Unlock()

	metrics.IndexerLastRunDuration.Set(duration.Seconds())
	metrics.IndexerAssetsProcessed.Add(float64(len(assets)))

	log.Info("index complete: %d assets (%d new or changed) in %v", len(assets), len(changed), duration)
	return nil
}

func (idx *Indexer) upsertBatches(ctx context.Context, assets []media.Asset) ([]string, error) {
	var changed []string
	total := len(assets)

	for i := 0; i < total; i += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(i+batchSize, total)
		batch := make([]media.AssetMetadata, 0, end-i)
		for _, a := range assets[i:end] {
			batch = append(batch, a.AssetMetadata)
		}

		ids, err := idx.db.UpsertAssets(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
		changed = append(changed, ids...)

		if end < total {
			time.Sleep(batchDelay)
		}
		if end%5000 == 0 || end == total {
			log.Debug("database insert progress: %d/%d assets", end, total)
		}
	}

	return changed, nil
}

// bootstrap seeds the vault from the store, which carries derived palettes
// the fresh scan does not.
func (idx *Indexer) bootstrap() {
	if idx.coord == nil {
		return
	}
	all, err := idx.db.AllAssets(idx.ctx)
	if err != nil {
		log.Warn("vault bootstrap skipped: %v", err)
		return
	}
	idx.coord.Bootstrap(all)
}

func (idx *Indexer) tryStartIndexing() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	if idx.isIndexing {
		return false
	}
	idx.isIndexing = true
	return true
}

func (idx *Indexer) finishIndexing() {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	idx.isIndexing = false
	idx.initialComplete = true
}

// IsReady reports whether the first scan has finished.
func (idx *Indexer) IsReady() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.initialComplete
}

// IsIndexing returns whether a scan is currently in progress.
func (idx *Indexer) IsIndexing() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.isIndexing
}

// LastIndexTime returns the time of the last completed scan.
func (idx *Indexer) LastIndexTime() time.Time {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.lastIndexTime
}

// TriggerIndex starts a scan in the background. It does nothing once the
// indexer is stopped.
func (idx *Indexer) TriggerIndex() {
	idx.wgMu.Lock()
	defer idx.wgMu.Unlock()

	if idx.stopped {
		log.Debug("ignoring index trigger after stop")
		return
	}
	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		idx.reindex("manual trigger")
	}()
}

// GetHealthStatus returns detailed health information.
func (idx *Indexer) GetHealthStatus() HealthStatus {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	status := HealthStatus{
		Ready:         idx.initialComplete,
		Indexing:      idx.isIndexing,
		StartTime:     idx.startTime,
		Uptime:        time.Since(idx.startTime).Truncate(time.Second).String(),
		LastIndexed:   idx.lastIndexTime,
		AssetsIndexed: idx.lastIndexed,
	}
	if idx.initialIndexError != nil {
		status.InitialIndexError = idx.initialIndexError.Error()
	}
	return status
}
