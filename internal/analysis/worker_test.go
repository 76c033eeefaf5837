package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type echoAnalyzer struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (a *echoAnalyzer) Analyze(_ context.Context, tasks []Task) ([]Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	out := make([]Result, len(tasks))
	for i, task := range tasks {
		out[i] = Result{TaskID: task.ID, Kind: task.Kind, AssetID: task.AssetID, Score: 0.5}
	}
	return out, nil
}

type memoryStore struct {
	mu      sync.Mutex
	err     error
	results []Result
}

func (s *memoryStore) SaveAnalysis(_ context.Context, results []Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.results = append(s.results, results...)
	return nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

func TestRunOnceProcessesBatch(t *testing.T) {
	s := NewScheduler()
	store := &memoryStore{}
	w := NewWorker(s, &echoAnalyzer{}, store, WorkerConfig{BatchSize: 2})
	updates := w.Subscribe()

	s.Schedule(KindMetadata, []string{"a", "b", "c"})
	s.Schedule(KindBlur, []string{"a"})

	if n := w.RunOnce(context.Background()); n != 2 {
		t.Fatalf("RunOnce processed %d, want 2", n)
	}
	if store.count() != 2 {
		t.Errorf("stored %d results, want 2", store.count())
	}
	if s.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", s.Pending())
	}

	select {
	case u := <-updates:
		if len(u.Tasks) != 2 || len(u.AssetIDs) != 2 || u.AssetIDs[0] != "a" || u.AssetIDs[1] != "b" {
			t.Errorf("update = %+v", u)
		}
	default:
		t.Fatal("subscriber was not notified")
	}

	w.RunOnce(context.Background())
	u := <-updates
	if len(u.AssetIDs) != 2 {
		t.Errorf("asset ids = %v, want [c a]", u.AssetIDs)
	}
}

func TestRunOnceAnalyzerError(t *testing.T) {
	s := NewScheduler()
	store := &memoryStore{}
	w := NewWorker(s, &echoAnalyzer{err: errors.New("model missing")}, store, WorkerConfig{})
	updates := w.Subscribe()

	s.Schedule(KindSimilarity, []string{"x"})
	w.RunOnce(context.Background())

	if store.count() != 0 {
		t.Error("nothing should be saved when analysis fails")
	}
	select {
	case u := <-updates:
		t.Errorf("unexpected update %+v", u)
	default:
	}
}

func TestRunOnceSaveError(t *testing.T) {
	s := NewScheduler()
	w := NewWorker(s, &echoAnalyzer{}, &memoryStore{err: errors.New("disk full")}, WorkerConfig{})
	updates := w.Subscribe()

	s.Schedule(KindSimilarity, []string{"x"})
	w.RunOnce(context.Background())

	select {
	case u := <-updates:
		t.Errorf("unexpected update after save failure: %+v", u)
	default:
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	s := NewScheduler()
	w := NewWorker(s, &echoAnalyzer{}, &memoryStore{}, WorkerConfig{BatchSize: 1})
	w.Subscribe() // never read

	for i := 0; i < 40; i++ {
		s.Schedule(KindMetadata, []string{string(rune('a' + i%26)) + string(rune('0'+i/26))})
	}

	done := make(chan struct{})
	go func() {
		for w.RunOnce(context.Background()) > 0 {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunOnce blocked on a full subscriber")
	}
}

func TestWorkerStartStopIdempotent(t *testing.T) {
	s := NewScheduler()
	store := &memoryStore{}
	w := NewWorker(s, &echoAnalyzer{}, store, WorkerConfig{Interval: 10 * time.Millisecond})

	w.Stop() // stopping a stopped worker is a no-op
	w.Start()
	w.Start()
	if !w.Running() {
		t.Fatal("worker should be running")
	}

	s.Schedule(KindMetadata, []string{"a", "b"})
	deadline := time.Now().Add(2 * time.Second)
	for store.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("loop did not drain scheduled tasks")
		}
		time.Sleep(5 * time.Millisecond)
	}

	w.Stop()
	w.Stop()
	if w.Running() {
		t.Error("worker should be stopped")
	}

	// Restart after stop works.
	w.Start()
	s.Schedule(KindMetadata, []string{"c"})
	deadline = time.Now().Add(2 * time.Second)
	for store.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("restarted loop did not drain")
		}
		time.Sleep(5 * time.Millisecond)
	}
	w.Stop()
}

type stoppedPauser struct{}

func (stoppedPauser) WaitIfPaused(context.Context) bool { return false }

// heldPauser stays paused until released, like a monitor under sustained
// memory pressure.
type heldPauser struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *heldPauser) WaitIfPaused(ctx context.Context) bool {
	p.once.Do(func() { close(p.entered) })
	select {
	case <-p.release:
		return true
	case <-ctx.Done():
		return false
	}
}

func TestWorkerStopWhilePaused(t *testing.T) {
	pauser := &heldPauser{entered: make(chan struct{}), release: make(chan struct{})}
	defer close(pauser.release)

	s := NewScheduler()
	store := &memoryStore{}
	w := NewWorker(s, &echoAnalyzer{}, store, WorkerConfig{Interval: 5 * time.Millisecond, Pauser: pauser})
	s.Schedule(KindMetadata, []string{"a"})
	w.Start()

	select {
	case <-pauser.entered:
	case <-time.After(time.Second):
		t.Fatal("worker never reached the pause")
	}

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked while the worker was paused")
	}
	if store.count() != 0 {
		t.Error("paused worker should not process tasks")
	}
}

func TestWorkerExitsWhenPauserAbandons(t *testing.T) {
	s := NewScheduler()
	store := &memoryStore{}
	w := NewWorker(s, &echoAnalyzer{}, store, WorkerConfig{Interval: 5 * time.Millisecond, Pauser: stoppedPauser{}})
	s.Schedule(KindMetadata, []string{"a"})

	w.Start()
	deadline := time.Now().Add(time.Second)
	for w.Running() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if w.Running() {
		t.Fatal("Running() still true after the loop exited on its own")
	}
	if store.count() != 0 {
		t.Error("loop should exit without processing when the pauser gives up")
	}

	// A worker whose loop ended can be started again.
	w.Start()
	if !w.Running() {
		t.Error("Start after a self-terminated loop should run again")
	}
	w.Stop()
}
