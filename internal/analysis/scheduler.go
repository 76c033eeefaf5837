package analysis

import (
	"sort"
	"sync"
	"time"

	"media-cache/internal/metrics"

	"github.com/google/uuid"
)

type taskKey struct {
	kind    Kind
	assetID string
}

type pendingTask struct {
	task Task
	seq  uint64
}

// Scheduler is a deduplicating queue of analysis tasks.
type Scheduler struct {
	mu      sync.Mutex
	pending map[taskKey]pendingTask
	seq     uint64
	now     func() time.Time
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		pending: make(map[taskKey]pendingTask),
		now:     time.Now,
	}
}

// Schedule queues kind for each asset id not already pending for that kind
// and returns how many tasks were added.
func (s *Scheduler) Schedule(kind Kind, assetIDs []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	added := 0
	for _, id := range assetIDs {
		key := taskKey{kind: kind, assetID: id}
		if _, ok := s.pending[key]; ok {
			continue
		}
		s.seq++
		s.pending[key] = pendingTask{
			task: Task{
				ID:          uuid.NewString(),
				Kind:        kind,
				AssetID:     id,
				ScheduledAt: now,
			},
			seq: s.seq,
		}
		added++
	}

	metrics.AnalysisScheduledTotal.WithLabelValues(string(kind)).Add(float64(added))
	metrics.AnalysisPending.Set(float64(len(s.pending)))
	return added
}

// Drain removes and returns up to limit tasks, oldest first. Tasks scheduled
// at the same instant keep their scheduling order.
func (s *Scheduler) Drain(limit int) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || len(s.pending) == 0 {
		return nil
	}

	all := make([]pendingTask, 0, len(s.pending))
	for _, p := range s.pending {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].task.ScheduledAt.Equal(all[j].task.ScheduledAt) {
			return all[i].task.ScheduledAt.Before(all[j].task.ScheduledAt)
		}
		return all[i].seq < all[j].seq
	})

	if limit > len(all) {
		limit = len(all)
	}
	tasks := make([]Task, limit)
	for i, p := range all[:limit] {
		tasks[i] = p.task
		delete(s.pending, taskKey{kind: p.task.Kind, assetID: p.task.AssetID})
	}

	metrics.AnalysisDrainedTotal.Add(float64(len(tasks)))
	metrics.AnalysisPending.Set(float64(len(s.pending)))
	return tasks
}

// Pending returns the number of queued tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
