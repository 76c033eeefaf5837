package media

import (
	"context"
	"image"
)

// Renderer produces pixels for an asset at a target size.
type Renderer interface {
	Render(ctx context.Context, asset Asset, size Size, mode ContentMode) (image.Image, error)
}

// Library is the native media-library access layer consumed by the caches.
type Library interface {
	Renderer

	// Resolve returns handles for the ids it knows; unknown ids are omitted.
	Resolve(ids []string) []Asset

	// StartCaching asks the library to pre-render a batch in its own cache.
	StartCaching(assets []Asset, size Size, mode ContentMode)

	// StopCaching drops a batch from the library's own cache.
	StopCaching(assets []Asset, size Size, mode ContentMode)
}
