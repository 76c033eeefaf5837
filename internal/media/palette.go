package media

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// PaletteSize is the number of colours DerivePalette returns at most.
const PaletteSize = 5

// DerivePalette returns up to PaletteSize "#rrggbb" colours for img. The
// first entry is the average colour; the rest are the distinct colours of a
// 2x2 box-filtered reduction in reading order.
func DerivePalette(img image.Image) []string {
	if img == nil || img.Bounds().Empty() {
		return nil
	}

	average := imaging.Resize(img, 1, 1, imaging.Box)
	palette := []string{hexColor(average.NRGBAAt(0, 0))}
	seen := map[string]bool{palette[0]: true}

	quadrants := imaging.Resize(img, 2, 2, imaging.Box)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			c := hexColor(quadrants.NRGBAAt(x, y))
			if seen[c] {
				continue
			}
			seen[c] = true
			palette = append(palette, c)
		}
	}

	if len(palette) > PaletteSize {
		palette = palette[:PaletteSize]
	}
	return palette
}

func hexColor(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
