// Package thumbnail adapts the media renderer into encoded thumbnail bytes
// for the cache coordinator.
package thumbnail

import (
	"bytes"
	"context"

	"media-cache/internal/logging"
	"media-cache/internal/media"

	"github.com/disintegration/imaging"
)

// JPEGQuality is the encoder quality for thumbnail blobs.
const JPEGQuality = 85

var log = logging.For("ThumbnailBridge")

// Bridge renders a thumbnail through the media collaborator and encodes it.
// It keeps no state and does no caching; callers dedupe and cache.
type Bridge struct {
	renderer media.Renderer
}

// NewBridge creates a bridge over renderer.
func NewBridge(renderer media.Renderer) *Bridge {
	return &Bridge{renderer: renderer}
}

// MakeThumbnail renders asset cropped to size and returns JPEG bytes. It
// reports false when the asset cannot be rendered or encoded.
func (b *Bridge) MakeThumbnail(ctx context.Context, asset media.Asset, size media.Size) ([]byte, bool) {
	img, err := b.renderer.Render(ctx, asset, size, media.ContentModeFill)
	if err != nil || img == nil {
		log.Debug("render failed for %s at %s: %v", asset.ID, size, err)
		return nil, false
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		log.Warn("encode failed for %s: %v", asset.ID, err)
		return nil, false
	}
	return buf.Bytes(), true
}
