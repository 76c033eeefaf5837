// Package prefetch decides which assets to warm ahead of need for a given
// usage intent and hands the plan to the cache coordinator.
package prefetch

import (
	"context"
	"fmt"
	"sync"

	"media-cache/internal/cache"
	"media-cache/internal/logging"
	"media-cache/internal/media"
	"media-cache/internal/metrics"
)

// EventLogSize is the number of diagnostic lines kept.
const EventLogSize = 50

var log = logging.For("PrefetchManager")

// IntentKind is the usage pattern driving a prefetch.
type IntentKind string

// Intent kinds.
const (
	Sequential IntentKind = "sequential"
	Grouped    IntentKind = "grouped"
	Ranked     IntentKind = "ranked"
	Bucketed   IntentKind = "bucketed"
	Pending    IntentKind = "pending"
	Dashboard  IntentKind = "dashboard"
)

// Valid reports whether k is a known intent kind.
func (k IntentKind) Valid() bool {
	switch k {
	case Sequential, Grouped, Ranked, Bucketed, Pending, Dashboard:
		return true
	}
	return false
}

// Intent describes how the caller is about to use the candidates. Similar
// only applies to Grouped.
type Intent struct {
	Kind    IntentKind `json:"kind"`
	Similar bool       `json:"similar,omitempty"`
}

func (i Intent) String() string {
	if i.Kind != Grouped {
		return string(i.Kind)
	}
	if i.Similar {
		return "grouped(similar)"
	}
	return "grouped(other)"
}

// Priority is advisory; low-priority warming is dropped under memory
// pressure.
type Priority string

// Priorities.
const (
	High   Priority = "high"
	Normal Priority = "normal"
	Low    Priority = "low"
)

// Plan is the outcome of selection for one Prefetch call.
type Plan struct {
	Intent   Intent
	Assets   []media.Asset
	Priority Priority
	Size     media.Size
	Tag      cache.Tag
}

type rule struct {
	limit    int // -1 = all, 0 = none
	priority Priority
	edge     int
}

func ruleFor(intent Intent) rule {
	switch intent.Kind {
	case Sequential:
		return rule{3, High, 600}
	case Grouped:
		if intent.Similar {
			return rule{-1, Normal, 420}
		}
		return rule{4, Normal, 420}
	case Ranked:
		return rule{8, Normal, 320}
	case Bucketed:
		return rule{5, Low, 260}
	case Pending:
		return rule{6, Normal, 320}
	default:
		return rule{0, Low, 200}
	}
}

// Select applies the selection table. Input order is preserved.
func Select(intent Intent, assets []media.Asset) Plan {
	r := ruleFor(intent)

	n := len(assets)
	if r.limit >= 0 && r.limit < n {
		n = r.limit
	}

	return Plan{
		Intent:   intent,
		Assets:   append([]media.Asset(nil), assets[:n]...),
		Priority: r.priority,
		Size:     media.Size{Width: r.edge, Height: r.edge},
		Tag:      cache.Tag("prefetch:" + intent.String()),
	}
}

// Coordinator is the subset of cache.Coordinator the manager drives.
type Coordinator interface {
	Hydrate(assets []media.AssetMetadata, tag cache.Tag)
	WarmThumbnails(ctx context.Context, assets []media.Asset, size media.Size)
}

// Throttler reports memory pressure. *memory.Monitor satisfies it.
type Throttler interface {
	ShouldThrottle() bool
}

// Manager plans prefetches and keeps a rolling event log.
type Manager struct {
	coordinator Coordinator
	throttle    Throttler

	ctx     context.Context
	cancel  context.CancelFunc
	warmMu  sync.Mutex
	closed  bool
	warming sync.WaitGroup

	mu     sync.Mutex
	events []string
}

// NewManager creates a manager. throttle may be nil.
func NewManager(coordinator Coordinator, throttle Throttler) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		coordinator: coordinator,
		throttle:    throttle,
		ctx:         ctx,
		cancel:      cancel,
		events:      make([]string, 0, EventLogSize),
	}
}

// Prefetch selects from assets, hydrates the selection synchronously and
// warms its thumbnails in the background.
func (m *Manager) Prefetch(intent Intent, assets []media.Asset) Plan {
	plan := Select(intent, assets)
	metrics.PrefetchPlansTotal.WithLabelValues(string(intent.Kind)).Inc()

	skipped := false
	if len(plan.Assets) > 0 {
		metrics.PrefetchAssetsTotal.WithLabelValues(string(plan.Priority)).Add(float64(len(plan.Assets)))

		meta := make([]media.AssetMetadata, len(plan.Assets))
		for i, a := range plan.Assets {
			meta[i] = a.AssetMetadata
		}
		m.coordinator.Hydrate(meta, plan.Tag)

		if plan.Priority == Low && m.throttle != nil && m.throttle.ShouldThrottle() {
			skipped = true
			metrics.PrefetchSkippedTotal.Inc()
		} else if !m.warm(plan) {
			skipped = true
		}
	}

	line := fmt.Sprintf("prefetch %s: count=%d tag=%s priority=%s size=%s",
		intent, len(plan.Assets), plan.Tag, plan.Priority, plan.Size)
	if skipped {
		line += " warm=skipped"
	}
	m.record(line)
	log.Debug("%s", line)

	return plan
}

// warm starts background warming for plan. It reports false once the
// manager is closed.
func (m *Manager) warm(plan Plan) bool {
	m.warmMu.Lock()
	defer m.warmMu.Unlock()

	if m.closed {
		return false
	}
	m.warming.Add(1)
	go func() {
		defer m.warming.Done()
		m.coordinator.WarmThumbnails(m.ctx, plan.Assets, plan.Size)
	}()
	return true
}

func (m *Manager) record(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.events) == EventLogSize {
		copy(m.events, m.events[1:])
		m.events = m.events[:EventLogSize-1]
	}
	m.events = append(m.events, line)
}

// Events returns a copy of the event log, oldest first.
func (m *Manager) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

// Wait blocks until background warming has finished.
func (m *Manager) Wait() {
	m.warming.Wait()
}

// Close cancels in-progress warming and waits for it to stop. Later
// prefetches still hydrate but no longer warm.
func (m *Manager) Close() {
	m.warmMu.Lock()
	m.closed = true
	m.warmMu.Unlock()

	m.cancel()
	m.warming.Wait()
}
