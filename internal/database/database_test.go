package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"media-cache/internal/analysis"
	"media-cache/internal/media"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := New(context.Background(), filepath.Join(t.TempDir(), "media.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func asset(id string, w, h int) media.AssetMetadata {
	return media.AssetMetadata{
		ID:         id,
		Width:      w,
		Height:     h,
		ByteSize:   int64(w * h),
		CapturedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Kind:       media.KindImage,
	}
}

func TestRecordQuery(t *testing.T) {
	// Must not panic for either status.
	recordQuery("get_assets", time.Now(), nil)
	recordQuery("get_assets", time.Now(), errors.New("boom"))
}

func TestNewCreatesSchemaAndReopens(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "media.db")
	ctx := context.Background()

	d, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := d.UpsertAssets(ctx, []media.AssetMetadata{asset("a.jpg", 10, 10)}); err != nil {
		t.Fatalf("UpsertAssets() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	d, err = New(ctx, dbPath)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer d.Close()

	if d.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", d.Path(), dbPath)
	}
	got, err := d.Metadata(ctx, []string{"a.jpg"})
	if err != nil || len(got) != 1 {
		t.Fatalf("Metadata() = %v, %v; want one record after reopen", got, err)
	}
}

func TestNewMissingDirectory(t *testing.T) {
	_, err := New(context.Background(), filepath.Join(t.TempDir(), "missing", "media.db"))
	if err == nil {
		t.Fatal("New() should fail when the parent directory does not exist")
	}
}

func TestUpsertAssetsReportsChanges(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	changed, err := d.UpsertAssets(ctx, []media.AssetMetadata{asset("a.jpg", 10, 10), asset("b.jpg", 20, 20)})
	if err != nil {
		t.Fatalf("UpsertAssets() error = %v", err)
	}
	if len(changed) != 2 {
		t.Fatalf("first upsert changed = %v, want both ids", changed)
	}

	changed, err = d.UpsertAssets(ctx, []media.AssetMetadata{asset("a.jpg", 10, 10), asset("b.jpg", 30, 20)})
	if err != nil {
		t.Fatalf("UpsertAssets() error = %v", err)
	}
	if len(changed) != 1 || changed[0] != "b.jpg" {
		t.Errorf("second upsert changed = %v, want [b.jpg]", changed)
	}

	got, err := d.Metadata(ctx, []string{"b.jpg"})
	if err != nil || len(got) != 1 {
		t.Fatalf("Metadata() = %v, %v", got, err)
	}
	if got[0].Width != 30 {
		t.Errorf("Width = %d, want 30", got[0].Width)
	}

	if changed, err := d.UpsertAssets(ctx, nil); err != nil || changed != nil {
		t.Errorf("UpsertAssets(nil) = %v, %v; want nil, nil", changed, err)
	}
}

func TestUpsertAssetsPalettePreservation(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	withPalette := asset("a.jpg", 10, 10)
	withPalette.Palette = []string{"#112233", "#445566"}
	if _, err := d.UpsertAssets(ctx, []media.AssetMetadata{withPalette}); err != nil {
		t.Fatalf("UpsertAssets() error = %v", err)
	}

	// Same content, no palette: stored palette is kept.
	if _, err := d.UpsertAssets(ctx, []media.AssetMetadata{asset("a.jpg", 10, 10)}); err != nil {
		t.Fatalf("UpsertAssets() error = %v", err)
	}
	got, _ := d.Metadata(ctx, []string{"a.jpg"})
	if len(got) != 1 || got[0].PaletteSummary() != "#112233" {
		t.Fatalf("palette after unchanged upsert = %v, want preserved", got)
	}

	// Content changed, no palette: stale palette is cleared.
	if _, err := d.UpsertAssets(ctx, []media.AssetMetadata{asset("a.jpg", 12, 10)}); err != nil {
		t.Fatalf("UpsertAssets() error = %v", err)
	}
	got, _ = d.Metadata(ctx, []string{"a.jpg"})
	if len(got) != 1 || len(got[0].Palette) != 0 {
		t.Errorf("palette after content change = %v, want cleared", got[0].Palette)
	}
}

func TestMetadataOrderAndMissing(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	if _, err := d.UpsertAssets(ctx, []media.AssetMetadata{
		asset("a.jpg", 1, 1), asset("b.jpg", 2, 2), asset("c.jpg", 3, 3),
	}); err != nil {
		t.Fatalf("UpsertAssets() error = %v", err)
	}

	got, err := d.Metadata(ctx, []string{"c.jpg", "missing", "a.jpg", "c.jpg"})
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "c.jpg" || got[1].ID != "a.jpg" {
		t.Fatalf("Metadata() ids = %v, want [c.jpg a.jpg]", got)
	}
	if !got[0].CapturedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("CapturedAt = %v, want round-tripped value", got[0].CapturedAt)
	}
	if got[0].Kind != media.KindImage {
		t.Errorf("Kind = %q, want image", got[0].Kind)
	}

	none, err := d.Metadata(ctx, nil)
	if err != nil || none != nil {
		t.Errorf("Metadata(nil) = %v, %v", none, err)
	}
}

func TestMetadataChunksLargeRequests(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	const n = maxQueryParams*2 + 7
	assets := make([]media.AssetMetadata, n)
	ids := make([]string, n)
	for i := range assets {
		ids[i] = fmt.Sprintf("dir/img-%04d.jpg", i)
		assets[i] = asset(ids[i], i+1, 1)
	}
	if _, err := d.UpsertAssets(ctx, assets); err != nil {
		t.Fatalf("UpsertAssets() error = %v", err)
	}

	got, err := d.Metadata(ctx, ids)
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	if len(got) != n {
		t.Fatalf("Metadata() returned %d records, want %d", len(got), n)
	}

	all, err := d.AllAssets(ctx)
	if err != nil || len(all) != n {
		t.Fatalf("AllAssets() = %d records, %v; want %d", len(all), err, n)
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("AllAssets() not ordered by id at %d", i)
		}
	}
}

func TestDeleteMissingAssets(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return t0 }
	if _, err := d.UpsertAssets(ctx, []media.AssetMetadata{asset("old.jpg", 1, 1), asset("kept.jpg", 1, 1)}); err != nil {
		t.Fatal(err)
	}
	if err := d.SaveAnalysis(ctx, []analysis.Result{
		{TaskID: "t-old", Kind: analysis.KindBlur, AssetID: "old.jpg", CompletedAt: t0},
	}); err != nil {
		t.Fatal(err)
	}

	t1 := t0.Add(time.Hour)
	d.now = func() time.Time { return t1 }
	if _, err := d.UpsertAssets(ctx, []media.AssetMetadata{asset("kept.jpg", 1, 1)}); err != nil {
		t.Fatal(err)
	}

	removed, err := d.DeleteMissingAssets(ctx, t1)
	if err != nil {
		t.Fatalf("DeleteMissingAssets() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	assets, results, err := d.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if assets != 1 || results != 0 {
		t.Errorf("Stats() = %d assets, %d results; want 1, 0", assets, results)
	}
}

func TestSaveAnalysis(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	if _, err := d.UpsertAssets(ctx, []media.AssetMetadata{asset("a.jpg", 10, 10)}); err != nil {
		t.Fatal(err)
	}

	enriched := asset("a.jpg", 10, 10)
	enriched.Palette = []string{"#abcdef"}
	done := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	err := d.SaveAnalysis(ctx, []analysis.Result{
		{TaskID: "t1", Kind: analysis.KindMetadata, AssetID: "a.jpg", Metadata: &enriched, CompletedAt: done},
		{TaskID: "t2", Kind: analysis.KindSimilarity, AssetID: "a.jpg", Score: 0.75, Group: "g1", CompletedAt: done.Add(time.Second)},
	})
	if err != nil {
		t.Fatalf("SaveAnalysis() error = %v", err)
	}

	got, _ := d.Metadata(ctx, []string{"a.jpg"})
	if len(got) != 1 || got[0].PaletteSummary() != "#abcdef" {
		t.Fatalf("metadata after analysis = %v, want palette applied", got)
	}

	results, err := d.AnalysisResults(ctx, "a.jpg")
	if err != nil {
		t.Fatalf("AnalysisResults() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("AnalysisResults() = %d results, want 2", len(results))
	}
	if results[0].TaskID != "t1" || results[1].Group != "g1" || results[1].Score != 0.75 {
		t.Errorf("AnalysisResults() = %+v", results)
	}
	if !results[0].CompletedAt.Equal(done) {
		t.Errorf("CompletedAt = %v, want %v", results[0].CompletedAt, done)
	}

	// Re-saving the same task id replaces it.
	if err := d.SaveAnalysis(ctx, []analysis.Result{
		{TaskID: "t2", Kind: analysis.KindSimilarity, AssetID: "a.jpg", Score: 0.5, CompletedAt: done},
	}); err != nil {
		t.Fatal(err)
	}
	_, count, _ := d.Stats(ctx)
	if count != 2 {
		t.Errorf("result count = %d, want 2", count)
	}

	if err := d.SaveAnalysis(ctx, nil); err != nil {
		t.Errorf("SaveAnalysis(nil) error = %v", err)
	}
}

func TestLastScan(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	got, err := d.LastScan(ctx)
	if err != nil || !got.IsZero() {
		t.Fatalf("LastScan() on fresh db = %v, %v; want zero", got, err)
	}

	when := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	if err := d.SetLastScan(ctx, when); err != nil {
		t.Fatalf("SetLastScan() error = %v", err)
	}
	got, err = d.LastScan(ctx)
	if err != nil || !got.Equal(when) {
		t.Errorf("LastScan() = %v, %v; want %v", got, err, when)
	}

	if err := d.SetLastScan(ctx, time.Time{}); err != nil {
		t.Fatal(err)
	}
	if got, _ := d.LastScan(ctx); !got.IsZero() {
		t.Errorf("LastScan() after clear = %v, want zero", got)
	}
}

func TestVacuum(t *testing.T) {
	d := openTestDB(t)
	if err := d.Vacuum(context.Background()); err != nil {
		t.Errorf("Vacuum() error = %v", err)
	}
}
