package prefetch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"media-cache/internal/cache"
	"media-cache/internal/media"
)

type recordingCoordinator struct {
	mu       sync.Mutex
	hydrated [][]media.AssetMetadata
	tags     []cache.Tag
	warmed   [][]media.Asset
	sizes    []media.Size
}

func (r *recordingCoordinator) Hydrate(assets []media.AssetMetadata, tag cache.Tag) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hydrated = append(r.hydrated, assets)
	r.tags = append(r.tags, tag)
}

func (r *recordingCoordinator) WarmThumbnails(_ context.Context, assets []media.Asset, size media.Size) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warmed = append(r.warmed, assets)
	r.sizes = append(r.sizes, size)
}

type fixedThrottle bool

func (f fixedThrottle) ShouldThrottle() bool { return bool(f) }

func candidates(n int) []media.Asset {
	out := make([]media.Asset, n)
	for i := range out {
		out[i] = media.Asset{AssetMetadata: media.AssetMetadata{ID: fmt.Sprintf("c%02d", i)}}
	}
	return out
}

func TestSelectTable(t *testing.T) {
	tests := []struct {
		intent   Intent
		want     int
		priority Priority
		edge     int
	}{
		{Intent{Kind: Sequential}, 3, High, 600},
		{Intent{Kind: Grouped, Similar: true}, 20, Normal, 420},
		{Intent{Kind: Grouped}, 4, Normal, 420},
		{Intent{Kind: Ranked}, 8, Normal, 320},
		{Intent{Kind: Bucketed}, 5, Low, 260},
		{Intent{Kind: Pending}, 6, Normal, 320},
		{Intent{Kind: Dashboard}, 0, Low, 200},
	}

	for _, tt := range tests {
		t.Run(tt.intent.String(), func(t *testing.T) {
			plan := Select(tt.intent, candidates(20))
			if len(plan.Assets) != tt.want {
				t.Errorf("selected %d, want %d", len(plan.Assets), tt.want)
			}
			if plan.Priority != tt.priority {
				t.Errorf("priority = %s, want %s", plan.Priority, tt.priority)
			}
			if plan.Size != (media.Size{Width: tt.edge, Height: tt.edge}) {
				t.Errorf("size = %s, want %dx%d", plan.Size, tt.edge, tt.edge)
			}
			for i, a := range plan.Assets {
				if a.ID != fmt.Sprintf("c%02d", i) {
					t.Errorf("position %d = %s, input order not preserved", i, a.ID)
				}
			}
		})
	}
}

func TestSelectFewerCandidatesThanLimit(t *testing.T) {
	plan := Select(Intent{Kind: Ranked}, candidates(2))
	if len(plan.Assets) != 2 {
		t.Errorf("selected %d, want all 2", len(plan.Assets))
	}
}

func TestPrefetchRankedScenario(t *testing.T) {
	coord := &recordingCoordinator{}
	m := NewManager(coord, nil)
	defer m.Close()

	plan := m.Prefetch(Intent{Kind: Ranked}, candidates(20))
	m.Wait()

	if len(plan.Assets) != 8 || plan.Assets[0].ID != "c00" || plan.Assets[7].ID != "c07" {
		t.Fatalf("plan assets = %v, want the first 8", plan.Assets)
	}
	if plan.Priority != Normal || plan.Size != (media.Size{Width: 320, Height: 320}) {
		t.Errorf("plan = %s %s, want normal 320x320", plan.Priority, plan.Size)
	}
	if len(coord.hydrated) != 1 || len(coord.hydrated[0]) != 8 || coord.tags[0] != "prefetch:ranked" {
		t.Errorf("hydrate calls = %v tags = %v", coord.hydrated, coord.tags)
	}
	if len(coord.warmed) != 1 || len(coord.warmed[0]) != 8 || coord.sizes[0] != plan.Size {
		t.Errorf("warm calls = %d", len(coord.warmed))
	}

	events := m.Events()
	last := events[len(events)-1]
	if !strings.Contains(last, "count=8") {
		t.Errorf("last event %q should mention count=8", last)
	}
	if want := "prefetch ranked: count=8 tag=prefetch:ranked priority=normal size=320x320"; last != want {
		t.Errorf("last event = %q, want %q", last, want)
	}
}

func TestPrefetchDashboardIsNoop(t *testing.T) {
	coord := &recordingCoordinator{}
	m := NewManager(coord, nil)
	defer m.Close()

	plan := m.Prefetch(Intent{Kind: Dashboard}, candidates(10))
	m.Wait()

	if len(plan.Assets) != 0 || len(coord.hydrated) != 0 || len(coord.warmed) != 0 {
		t.Errorf("dashboard should not touch the coordinator: %+v", coord)
	}
	if events := m.Events(); len(events) != 1 || !strings.Contains(events[0], "count=0") {
		t.Errorf("events = %v, want one count=0 line", events)
	}
}

func TestPrefetchSkipsLowPriorityWarmUnderPressure(t *testing.T) {
	coord := &recordingCoordinator{}
	m := NewManager(coord, fixedThrottle(true))
	defer m.Close()

	m.Prefetch(Intent{Kind: Bucketed}, candidates(10))
	m.Prefetch(Intent{Kind: Sequential}, candidates(10))
	m.Wait()

	if len(coord.hydrated) != 2 {
		t.Errorf("hydrate should still run for both plans, got %d", len(coord.hydrated))
	}
	if len(coord.warmed) != 1 || len(coord.warmed[0]) != 3 {
		t.Errorf("only the high-priority plan should warm, got %d warm calls", len(coord.warmed))
	}
	if events := m.Events(); !strings.HasSuffix(events[0], "warm=skipped") {
		t.Errorf("first event %q should note the skipped warm", events[0])
	}
}

func TestEventLogCapped(t *testing.T) {
	m := NewManager(&recordingCoordinator{}, nil)
	defer m.Close()

	for i := 1; i <= EventLogSize+5; i++ {
		m.Prefetch(Intent{Kind: Pending}, candidates(i))
	}
	m.Wait()

	events := m.Events()
	if len(events) != EventLogSize {
		t.Fatalf("event log has %d entries, want %d", len(events), EventLogSize)
	}
	// The first five calls (counts 1..5) were dropped; counts cap at 6.
	if !strings.Contains(events[0], "count=6") {
		t.Errorf("oldest surviving event = %q", events[0])
	}

	events[0] = "mutated"
	if m.Events()[0] == "mutated" {
		t.Error("Events must return a copy")
	}
}

func TestIntentString(t *testing.T) {
	if (Intent{Kind: Grouped, Similar: true}).String() != "grouped(similar)" {
		t.Error("grouped similar label")
	}
	if (Intent{Kind: Grouped}).String() != "grouped(other)" {
		t.Error("grouped other label")
	}
	if (Intent{Kind: Ranked, Similar: true}).String() != "ranked" {
		t.Error("Similar should only affect grouped")
	}
}

func TestIntentKindValid(t *testing.T) {
	for _, k := range []IntentKind{Sequential, Grouped, Ranked, Bucketed, Pending, Dashboard} {
		if !k.Valid() {
			t.Errorf("%s should be valid", k)
		}
	}
	for _, k := range []IntentKind{"", "random", "SEQUENTIAL"} {
		if k.Valid() {
			t.Errorf("%q should be invalid", k)
		}
	}
}

func TestPrefetchAfterCloseHydratesWithoutWarming(t *testing.T) {
	coord := &recordingCoordinator{}
	m := NewManager(coord, nil)
	m.Close()
	m.Close()

	plan := m.Prefetch(Intent{Kind: Sequential}, candidates(5))
	m.Wait()

	if len(plan.Assets) != 3 {
		t.Fatalf("plan has %d assets, want 3", len(plan.Assets))
	}
	coord.mu.Lock()
	defer coord.mu.Unlock()
	if len(coord.hydrated) != 1 {
		t.Errorf("hydrate calls = %d, want 1", len(coord.hydrated))
	}
	if len(coord.warmed) != 0 {
		t.Errorf("warm calls after Close = %d, want 0", len(coord.warmed))
	}

	events := m.Events()
	if len(events) != 1 || !strings.HasSuffix(events[0], "warm=skipped") {
		t.Errorf("events = %q, want one entry ending in warm=skipped", events)
	}
}

func TestPrefetchConcurrentWithClose(t *testing.T) {
	coord := &recordingCoordinator{}
	m := NewManager(coord, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Prefetch(Intent{Kind: Ranked}, candidates(10))
		}()
	}
	m.Close()
	wg.Wait()
	m.Wait()

	coord.mu.Lock()
	defer coord.mu.Unlock()
	if len(coord.hydrated) != 8 {
		t.Errorf("hydrate calls = %d, want 8", len(coord.hydrated))
	}
}
