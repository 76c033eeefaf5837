package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"media-cache/internal/media"

	"github.com/disintegration/imaging"
)

type fakeLibrary struct {
	mu       sync.Mutex
	renders  int
	sizes    []media.Size
	fail     bool
	gate     chan struct{}
	canceled chan struct{}
	started  chan struct{}
	caching  []media.Size
	stopped  []media.Size
}

func (f *fakeLibrary) Resolve(ids []string) []media.Asset { return nil }

func (f *fakeLibrary) Render(ctx context.Context, _ media.Asset, size media.Size, _ media.ContentMode) (image.Image, error) {
	f.mu.Lock()
	f.renders++
	f.sizes = append(f.sizes, size)
	gate := f.gate
	f.mu.Unlock()

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			if f.canceled != nil {
				close(f.canceled)
			}
			return nil, ctx.Err()
		}
	}
	if f.fail {
		return nil, errors.New("render failed")
	}
	return imaging.New(size.Width, size.Height, color.NRGBA{B: 255, A: 255}), nil
}

func (f *fakeLibrary) StartCaching(_ []media.Asset, size media.Size, _ media.ContentMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.caching = append(f.caching, size)
}

func (f *fakeLibrary) StopCaching(_ []media.Asset, size media.Size, _ media.ContentMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, size)
}

func (f *fakeLibrary) renderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renders
}

func newPipeline(t *testing.T, lib media.Library, dir string, scale float64) *Pipeline {
	t.Helper()
	disk, err := NewDiskCache(dir, 64<<20)
	if err != nil {
		t.Fatal(err)
	}
	return New(lib, disk, Config{Scale: scale, MemoryBudget: 16 << 20})
}

var testAsset = media.Asset{AssetMetadata: media.AssetMetadata{ID: "photo-1"}}

// collect returns a completion that forwards results to a channel.
func collect() (Completion, chan Result) {
	ch := make(chan Result, 4)
	return func(r Result) { ch <- r }, ch
}

func waitResult(t *testing.T, ch chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("completion not invoked")
		return Result{}
	}
}

func TestKeyIncludesScaledSizeAndMode(t *testing.T) {
	a := Key("x", media.Size{Width: 100, Height: 100}, media.ContentModeFit)
	if len(a) != 16 {
		t.Errorf("key %q should be 16 hex chars", a)
	}
	if a != Key("x", media.Size{Width: 100, Height: 100}, media.ContentModeFit) {
		t.Error("key must be deterministic")
	}
	for _, other := range []string{
		Key("y", media.Size{Width: 100, Height: 100}, media.ContentModeFit),
		Key("x", media.Size{Width: 200, Height: 100}, media.ContentModeFit),
		Key("x", media.Size{Width: 100, Height: 100}, media.ContentModeFill),
	} {
		if other == a {
			t.Errorf("distinct inputs produced the same key %q", a)
		}
	}
}

func TestRequestImageDeduplicates(t *testing.T) {
	lib := &fakeLibrary{gate: make(chan struct{})}
	p := newPipeline(t, lib, t.TempDir(), 1)
	size := media.Size{Width: 40, Height: 30}

	done1, ch1 := collect()
	done2, ch2 := collect()
	p.RequestImage(testAsset, size, media.ContentModeFit, done1)
	p.RequestImage(testAsset, size, media.ContentModeFit, done2)

	if p.InFlight() != 1 {
		t.Errorf("InFlight() = %d, want 1", p.InFlight())
	}
	close(lib.gate)

	r1, r2 := waitResult(t, ch1), waitResult(t, ch2)
	if r1.Image == nil || r1.Image != r2.Image {
		t.Error("both callers should receive the same rendered image")
	}
	if lib.renderCount() != 1 {
		t.Errorf("renders = %d, want 1", lib.renderCount())
	}
	p.Wait()

	done3, ch3 := collect()
	p.RequestImage(testAsset, size, media.ContentModeFit, done3)
	if r := waitResult(t, ch3); r.Source != SourceMemory {
		t.Errorf("third request source = %s, want memory", r.Source)
	}
	if lib.renderCount() != 1 {
		t.Errorf("memory hit should not render, renders = %d", lib.renderCount())
	}
}

func TestRequestImageDiskTier(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "images")
	first := newPipeline(t, &fakeLibrary{}, dir, 1)
	done, ch := collect()
	first.RequestImage(testAsset, media.Size{Width: 20, Height: 20}, media.ContentModeFill, done)
	if r := waitResult(t, ch); r.Source != SourceRender {
		t.Fatalf("first source = %s, want render", r.Source)
	}
	first.Wait()
	first.disk.Flush()

	lib := &fakeLibrary{}
	second := newPipeline(t, lib, dir, 1)
	done, ch = collect()
	second.RequestImage(testAsset, media.Size{Width: 20, Height: 20}, media.ContentModeFill, done)
	r := waitResult(t, ch)
	if r.Source != SourceDisk || r.Image == nil {
		t.Errorf("restart source = %s, want disk", r.Source)
	}
	if lib.renderCount() != 0 {
		t.Errorf("disk hit should not render, renders = %d", lib.renderCount())
	}
}

func TestRequestImageAppliesScale(t *testing.T) {
	lib := &fakeLibrary{}
	p := newPipeline(t, lib, t.TempDir(), 2)
	done, ch := collect()

	p.RequestImage(testAsset, media.Size{Width: 50, Height: 25}, media.ContentModeFit, done)
	r := waitResult(t, ch)

	if b := r.Image.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Errorf("rendered %dx%d, want 100x50", b.Dx(), b.Dy())
	}
}

func TestRequestImageFailure(t *testing.T) {
	p := newPipeline(t, &fakeLibrary{fail: true}, t.TempDir(), 1)
	done, ch := collect()

	p.RequestImage(testAsset, media.Size{Width: 10, Height: 10}, media.ContentModeFit, done)
	if r := waitResult(t, ch); r.Image != nil {
		t.Error("failed render should deliver a nil image")
	}
}

func TestCancelOneOfTwoWaiters(t *testing.T) {
	lib := &fakeLibrary{gate: make(chan struct{})}
	p := newPipeline(t, lib, t.TempDir(), 1)
	size := media.Size{Width: 10, Height: 10}

	cancelled := make(chan Result, 1)
	token := p.RequestImage(testAsset, size, media.ContentModeFit, func(r Result) { cancelled <- r })
	done, ch := collect()
	p.RequestImage(testAsset, size, media.ContentModeFit, done)

	token.Cancel()
	close(lib.gate)

	if r := waitResult(t, ch); r.Image == nil {
		t.Error("remaining waiter should still get the image")
	}
	p.Wait()
	select {
	case <-cancelled:
		t.Error("cancelled token must not be completed")
	default:
	}
}

func waitStarted(t *testing.T, lib *fakeLibrary) {
	t.Helper()
	select {
	case <-lib.started:
	case <-time.After(2 * time.Second):
		t.Fatal("native render never started")
	}
}

func TestCancelLastWaiterCancelsRender(t *testing.T) {
	lib := &fakeLibrary{gate: make(chan struct{}), canceled: make(chan struct{}), started: make(chan struct{}, 4)}
	p := newPipeline(t, lib, t.TempDir(), 1)

	called := make(chan Result, 1)
	token := p.RequestImage(testAsset, media.Size{Width: 10, Height: 10}, media.ContentModeFit, func(r Result) { called <- r })
	waitStarted(t, lib)
	token.Cancel()
	token.Cancel()

	select {
	case <-lib.canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("native render was not cancelled")
	}
	p.Wait()

	if p.InFlight() != 0 {
		t.Errorf("InFlight() = %d after cancel", p.InFlight())
	}
	select {
	case <-called:
		t.Error("completion invoked after cancel")
	default:
	}
}

func TestCancelWhileQueuedNeverRenders(t *testing.T) {
	lib := &fakeLibrary{gate: make(chan struct{}), started: make(chan struct{}, 4)}
	disk, err := NewDiskCache(t.TempDir(), 64<<20)
	if err != nil {
		t.Fatal(err)
	}
	p := New(lib, disk, Config{MaxRenders: 1})
	size := media.Size{Width: 8, Height: 8}

	first, firstCh := collect()
	p.RequestImage(media.Asset{AssetMetadata: media.AssetMetadata{ID: "holder"}}, size, media.ContentModeFit, first)
	waitStarted(t, lib)

	queued := p.RequestImage(media.Asset{AssetMetadata: media.AssetMetadata{ID: "queued"}}, size, media.ContentModeFit, func(Result) {
		t.Error("completion for a cancelled queued request")
	})
	queued.Cancel()

	close(lib.gate)
	waitResult(t, firstCh)
	p.Wait()
	disk.Flush()

	if got := lib.renderCount(); got != 1 {
		t.Errorf("renders = %d, want 1: a request cancelled while queued must not render", got)
	}
}

func TestCancelAfterCompletionIsNoop(t *testing.T) {
	lib := &fakeLibrary{}
	p := newPipeline(t, lib, t.TempDir(), 1)
	done, ch := collect()

	token := p.RequestImage(testAsset, media.Size{Width: 10, Height: 10}, media.ContentModeFit, done)
	waitResult(t, ch)
	p.Wait()

	token.Cancel()

	next, nextCh := collect()
	p.RequestImage(testAsset, media.Size{Width: 10, Height: 10}, media.ContentModeFit, next)
	if r := waitResult(t, nextCh); r.Source != SourceMemory {
		t.Errorf("cancel after completion should not disturb caches, source = %s", r.Source)
	}
}

func TestCancelAll(t *testing.T) {
	lib := &fakeLibrary{gate: make(chan struct{})}
	p := newPipeline(t, lib, t.TempDir(), 1)

	for _, id := range []string{"a", "b", "c"} {
		id := id
		asset := media.Asset{AssetMetadata: media.AssetMetadata{ID: id}}
		p.RequestImage(asset, media.Size{Width: 10, Height: 10}, media.ContentModeFit, func(Result) {
			t.Errorf("completion for %s after CancelAll", id)
		})
	}
	if p.InFlight() != 3 {
		t.Fatalf("InFlight() = %d, want 3", p.InFlight())
	}

	p.CancelAll()
	p.Wait()

	if p.InFlight() != 0 {
		t.Errorf("InFlight() after CancelAll = %d", p.InFlight())
	}
}

func TestRendersBounded(t *testing.T) {
	lib := &fakeLibrary{gate: make(chan struct{})}
	disk, err := NewDiskCache(t.TempDir(), 64<<20)
	if err != nil {
		t.Fatal(err)
	}
	p := New(lib, disk, Config{MaxRenders: 1})

	var chans []chan Result
	for _, id := range []string{"a", "b"} {
		done, ch := collect()
		chans = append(chans, ch)
		p.RequestImage(media.Asset{AssetMetadata: media.AssetMetadata{ID: id}}, media.Size{Width: 8, Height: 8}, media.ContentModeFit, done)
	}

	time.Sleep(50 * time.Millisecond)
	if got := lib.renderCount(); got != 1 {
		t.Errorf("concurrent renders = %d, want 1", got)
	}

	close(lib.gate)
	for _, ch := range chans {
		if r := waitResult(t, ch); r.Image == nil {
			t.Error("render after the slot freed should succeed")
		}
	}
	p.Wait()
	disk.Flush()
}

func TestPrefetchDelegatesToLibrary(t *testing.T) {
	lib := &fakeLibrary{}
	p := newPipeline(t, lib, t.TempDir(), 3)
	batch := []media.Asset{testAsset}

	p.Prefetch(batch, media.Size{Width: 100, Height: 100}, media.ContentModeFill)
	p.StopPrefetching(batch, media.Size{Width: 100, Height: 100}, media.ContentModeFill)

	want := media.Size{Width: 300, Height: 300}
	if len(lib.caching) != 1 || lib.caching[0] != want {
		t.Errorf("StartCaching sizes = %v, want [%v]", lib.caching, want)
	}
	if len(lib.stopped) != 1 || lib.stopped[0] != want {
		t.Errorf("StopCaching sizes = %v, want [%v]", lib.stopped, want)
	}
}
