package media

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Kind represents the media kind of an asset.
type Kind string

const (
	// KindImage is a still image.
	KindImage Kind = "image"
	// KindVideo is a video; thumbnails come from a decoded frame.
	KindVideo Kind = "video"
	// KindOther is anything the library cannot render.
	KindOther Kind = "other"
)

// AssetMetadata is the immutable description of one asset. It is replaced
// wholesale on re-fetch, never patched field by field.
type AssetMetadata struct {
	ID         string    `json:"id"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	ByteSize   int64     `json:"byteSize"`
	CapturedAt time.Time `json:"capturedAt"`
	Kind       Kind      `json:"kind"`
	Palette    []string  `json:"palette,omitempty"`
}

// PaletteSummary returns the dominant palette colour, or "" when the palette
// has not been derived yet.
func (m AssetMetadata) PaletteSummary() string {
	if len(m.Palette) == 0 {
		return ""
	}
	return m.Palette[0]
}

// Asset pairs metadata with the resolved native handle. For FileLibrary the
// handle is the absolute file path.
type Asset struct {
	AssetMetadata
	Path string `json:"-"`
}

// Size is a target size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// String formats the size as "WxH".
func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Scaled multiplies both dimensions by the display scale factor.
func (s Size) Scaled(scale float64) Size {
	if scale <= 0 {
		scale = 1
	}
	return Size{
		Width:  int(float64(s.Width)*scale + 0.5),
		Height: int(float64(s.Height)*scale + 0.5),
	}
}

// IsZero reports whether either dimension is unset.
func (s Size) IsZero() bool {
	return s.Width <= 0 || s.Height <= 0
}

// ContentMode controls how a render is fitted into its target size.
type ContentMode string

const (
	// ContentModeFit scales the image to fit inside the target size.
	ContentModeFit ContentMode = "fit"
	// ContentModeFill scales and center-crops the image to cover the target size.
	ContentModeFill ContentMode = "fill"
)

// ParseContentMode maps a name to a ContentMode, defaulting to fit.
func ParseContentMode(name string) ContentMode {
	if strings.EqualFold(name, string(ContentModeFill)) {
		return ContentModeFill
	}
	return ContentModeFit
}

// ImageExtensions maps file extensions to whether they are supported image formats.
var ImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".webp": true, ".tiff": true, ".tif": true,
	".heic": true, ".heif": true,
}

// VideoExtensions maps file extensions to whether they are supported video formats.
var VideoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true,
	".wmv": true, ".flv": true, ".webm": true, ".m4v": true,
	".mpeg": true, ".mpg": true, ".3gp": true, ".ts": true,
}

// KindForPath classifies a file by its extension.
func KindForPath(path string) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ImageExtensions[ext]:
		return KindImage
	case VideoExtensions[ext]:
		return KindVideo
	default:
		return KindOther
	}
}
