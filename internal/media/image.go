package media

import (
	"fmt"
	"image"
	"os"

	"media-cache/internal/logging"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP format support
)

const (
	// MaxImageDimension is the maximum width or height decoded at full size.
	// Larger sources are downscaled before the target resize.
	MaxImageDimension = 4096

	// MaxImagePixels bounds width*height (~20MP, ~80MB in RGBA).
	MaxImagePixels = 20_000_000
)

// loadImageConstrained decodes path, downscaling sources that exceed the
// dimension or pixel limits so a single huge file cannot exhaust memory.
func loadImageConstrained(path string, maxDimension, maxPixels int) (image.Image, error) {
	width, height, err := imageDimensions(path)
	if err != nil {
		logging.Debug("Could not read dimensions for %s: %v", path, err)
		return imaging.Open(path, imaging.AutoOrientation(true))
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	if width <= maxDimension && height <= maxDimension && width*height <= maxPixels {
		return img, nil
	}

	targetWidth, targetHeight := width, height
	if width > maxDimension || height > maxDimension {
		if width > height {
			targetWidth = maxDimension
			targetHeight = height * maxDimension / width
		} else {
			targetHeight = maxDimension
			targetWidth = width * maxDimension / height
		}
	}
	if pixels := targetWidth * targetHeight; pixels > maxPixels {
		scale := float64(maxPixels) / float64(pixels)
		targetWidth = int(float64(targetWidth) * scale)
		targetHeight = int(float64(targetHeight) * scale)
	}

	logging.Info("Constraining large image %s from %dx%d to %dx%d", path, width, height, targetWidth, targetHeight)
	return imaging.Resize(img, targetWidth, targetHeight, imaging.Lanczos), nil
}

// imageDimensions reads the header only.
func imageDimensions(path string) (int, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	config, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, err
	}
	return config.Width, config.Height, nil
}

// resize applies mode to fit img into size.
func resize(img image.Image, size Size, mode ContentMode) image.Image {
	if mode == ContentModeFill {
		return imaging.Fill(img, size.Width, size.Height, imaging.Center, imaging.Lanczos)
	}
	return imaging.Fit(img, size.Width, size.Height, imaging.Lanczos)
}
