package analysis

import (
	"context"
	"sync"
	"time"

	"media-cache/internal/logging"
	"media-cache/internal/metrics"
)

var log = logging.For("AnalysisWorker")

const (
	// DefaultInterval is the drain period.
	DefaultInterval = time.Second
	// DefaultBatchSize is the number of tasks drained per tick.
	DefaultBatchSize = 50
)

// Pauser blocks while the process is under memory pressure. It returns
// false when waiting was abandoned or ctx ended. *memory.Monitor satisfies it.
type Pauser interface {
	WaitIfPaused(ctx context.Context) bool
}

// WorkerConfig tunes a Worker. Zero values select the defaults.
type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Pauser    Pauser
}

// Worker periodically drains a Scheduler.
type Worker struct {
	scheduler *Scheduler
	analyzer  Analyzer
	store     ResultStore
	config    WorkerConfig

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	subMu       sync.Mutex
	subscribers []chan Update
}

// NewWorker creates a stopped worker.
func NewWorker(scheduler *Scheduler, analyzer Analyzer, store ResultStore, config WorkerConfig) *Worker {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	return &Worker{
		scheduler: scheduler,
		analyzer:  analyzer,
		store:     store,
		config:    config,
	}
}

// Start launches the drain loop. Calling Start on a running worker does
// nothing.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	go w.loop(ctx, w.done)
	log.Info("started (interval %v, batch %d)", w.config.Interval, w.config.BatchSize)
}

// Stop ends the loop and waits for the current batch. Calling Stop on a
// stopped worker does nothing.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
	log.Info("stopped")
}

// Running reports whether the loop is active.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		w.mu.Lock()
		if w.done == done {
			w.running = false
		}
		w.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.config.Pauser != nil && !w.config.Pauser.WaitIfPaused(ctx) {
				return
			}
			w.RunOnce(ctx)
		}
	}
}

// RunOnce drains and processes a single batch and returns its size.
func (w *Worker) RunOnce(ctx context.Context) int {
	tasks := w.scheduler.Drain(w.config.BatchSize)
	if len(tasks) == 0 {
		return 0
	}

	results, err := w.analyzer.Analyze(ctx, tasks)
	if err != nil {
		metrics.AnalysisErrorsTotal.WithLabelValues("analyze").Inc()
		log.Warn("analyze batch of %d failed: %v", len(tasks), err)
		return len(tasks)
	}

	if len(results) > 0 {
		if err := w.store.SaveAnalysis(ctx, results); err != nil {
			metrics.AnalysisErrorsTotal.WithLabelValues("save").Inc()
			log.Warn("saving %d results failed: %v", len(results), err)
			return len(tasks)
		}
	}

	w.notify(Update{Tasks: tasks, AssetIDs: uniqueAssetIDs(tasks)})
	log.Debug("processed %d tasks, %d results", len(tasks), len(results))
	return len(tasks)
}

// Subscribe returns a channel that receives an Update per processed batch.
// Updates are dropped for subscribers whose buffer is full.
func (w *Worker) Subscribe() <-chan Update {
	ch := make(chan Update, 16)
	w.subMu.Lock()
	w.subscribers = append(w.subscribers, ch)
	w.subMu.Unlock()
	return ch
}

func (w *Worker) notify(u Update) {
	w.subMu.Lock()
	defer w.subMu.Unlock()

	for _, ch := range w.subscribers {
		select {
		case ch <- u:
		default:
			log.Debug("subscriber buffer full, dropping update")
		}
	}
}

func uniqueAssetIDs(tasks []Task) []string {
	seen := make(map[string]struct{}, len(tasks))
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if _, ok := seen[t.AssetID]; ok {
			continue
		}
		seen[t.AssetID] = struct{}{}
		ids = append(ids, t.AssetID)
	}
	return ids
}
