package analysis

import (
	"context"
	"time"

	"media-cache/internal/media"
)

// SampleSize is the render size used to derive palettes.
var SampleSize = media.Size{Width: 64, Height: 64}

// LibraryAnalyzer handles metadata tasks by sampling the asset through the
// media library. Other kinds are skipped.
type LibraryAnalyzer struct {
	library media.Library
	now     func() time.Time
}

// NewLibraryAnalyzer creates an analyzer over library.
func NewLibraryAnalyzer(library media.Library) *LibraryAnalyzer {
	return &LibraryAnalyzer{library: library, now: time.Now}
}

// Analyze returns one result per metadata task whose asset resolves and
// renders. Failures for individual assets are skipped.
func (a *LibraryAnalyzer) Analyze(ctx context.Context, tasks []Task) ([]Result, error) {
	var ids []string
	for _, t := range tasks {
		if t.Kind == KindMetadata {
			ids = append(ids, t.AssetID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	assets := make(map[string]media.Asset, len(ids))
	for _, asset := range a.library.Resolve(ids) {
		assets[asset.ID] = asset
	}

	var results []Result
	for _, t := range tasks {
		if t.Kind != KindMetadata {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
		asset, ok := assets[t.AssetID]
		if !ok {
			continue
		}

		sample, err := a.library.Render(ctx, asset, SampleSize, media.ContentModeFit)
		if err != nil {
			log.Debug("sampling %s failed: %v", asset.ID, err)
			continue
		}

		meta := asset.AssetMetadata
		meta.Palette = media.DerivePalette(sample)
		results = append(results, Result{
			TaskID:      t.ID,
			Kind:        t.Kind,
			AssetID:     t.AssetID,
			Metadata:    &meta,
			CompletedAt: a.now().UTC(),
		})
	}
	return results, nil
}
