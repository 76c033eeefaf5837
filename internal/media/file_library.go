package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"media-cache/internal/filesystem"
	"media-cache/internal/logging"
	"media-cache/internal/workers"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

// ErrUnsupported is returned when an asset kind cannot be rendered.
var ErrUnsupported = errors.New("unsupported media kind")

var libLog = logging.For("FileLibrary")

// FileLibrary is a Library over a directory tree. Asset ids are paths
// relative to the root using forward slashes.
type FileLibrary struct {
	root  string
	retry filesystem.RetryConfig

	mu     sync.RWMutex
	assets map[string]Asset

	// renders holds images pre-rendered by StartCaching.
	renders *lru.Cache[string, image.Image]
	caching sync.WaitGroup
}

// NewFileLibrary creates a library rooted at root. cacheEntries bounds the
// caching manager used by StartCaching.
func NewFileLibrary(root string, cacheEntries int) (*FileLibrary, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve library root: %w", err)
	}
	if cacheEntries <= 0 {
		cacheEntries = 256
	}
	renders, err := lru.New[string, image.Image](cacheEntries)
	if err != nil {
		return nil, fmt.Errorf("create render cache: %w", err)
	}

	return &FileLibrary{
		root:    abs,
		retry:   filesystem.DefaultRetryConfig(),
		assets:  make(map[string]Asset),
		renders: renders,
	}, nil
}

// Root returns the absolute library root.
func (l *FileLibrary) Root() string {
	return l.root
}

// Scan walks the library, replaces the known asset set and returns it sorted
// by id. Unreadable entries are skipped.
func (l *FileLibrary) Scan(ctx context.Context) ([]Asset, error) {
	var paths []string

	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			libLog.Debug("skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != l.root {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || KindForPath(path) == KindOther {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", l.root, err)
	}

	// Header reads dominate on network mounts, so describe in parallel.
	described := make([]*Asset, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers.ForDiskIO(0))
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			asset, err := l.describe(path)
			if err != nil {
				libLog.Debug("skipping %s: %v", path, err)
				return nil
			}
			described[i] = &asset
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", l.root, err)
	}

	found := make([]Asset, 0, len(described))
	for _, a := range described {
		if a != nil {
			found = append(found, *a)
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })

	l.mu.Lock()
	l.assets = make(map[string]Asset, len(found))
	for _, a := range found {
		l.assets[a.ID] = a
	}
	l.mu.Unlock()

	return found, nil
}

// describe builds an Asset from the file header and stat info. The palette
// is left empty; the metadata analysis task derives it later.
func (l *FileLibrary) describe(path string) (Asset, error) {
	info, err := filesystem.StatWithRetry(path, l.retry)
	if err != nil {
		return Asset{}, err
	}

	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		return Asset{}, err
	}

	asset := Asset{
		AssetMetadata: AssetMetadata{
			ID:         filepath.ToSlash(rel),
			ByteSize:   info.Size(),
			CapturedAt: info.ModTime().UTC(),
			Kind:       KindForPath(path),
		},
		Path: path,
	}

	if asset.Kind == KindImage {
		if w, h, err := imageDimensions(path); err == nil {
			asset.Width, asset.Height = w, h
		}
	}
	return asset, nil
}

// pathFor maps an id to a path inside the root, rejecting escapes.
func (l *FileLibrary) pathFor(id string) (string, bool) {
	clean := filepath.Clean(filepath.FromSlash(id))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", false
	}
	return filepath.Join(l.root, clean), true
}

// Resolve returns handles for known ids. Ids not seen by the last scan are
// looked up on disk so freshly added files resolve before the next scan.
func (l *FileLibrary) Resolve(ids []string) []Asset {
	out := make([]Asset, 0, len(ids))
	for _, id := range ids {
		l.mu.RLock()
		asset, ok := l.assets[id]
		l.mu.RUnlock()
		if ok {
			out = append(out, asset)
			continue
		}

		path, ok := l.pathFor(id)
		if !ok || KindForPath(path) == KindOther {
			continue
		}
		asset, err := l.describe(path)
		if err != nil {
			continue
		}

		l.mu.Lock()
		l.assets[asset.ID] = asset
		l.mu.Unlock()
		out = append(out, asset)
	}
	return out
}

// Render produces img at size. Images go through libvips when it is
// initialized, imaging otherwise; videos through an ffmpeg frame grab.
func (l *FileLibrary) Render(ctx context.Context, asset Asset, size Size, mode ContentMode) (image.Image, error) {
	if size.IsZero() {
		return nil, fmt.Errorf("invalid target size %s", size)
	}
	if img, ok := l.renders.Get(renderKey(asset.ID, size, mode)); ok {
		return img, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := asset.Path
	if path == "" {
		p, ok := l.pathFor(asset.ID)
		if !ok {
			return nil, fmt.Errorf("invalid asset id %q", asset.ID)
		}
		path = p
	}

	switch KindForPath(path) {
	case KindImage:
		if IsVipsAvailable() {
			img, err := renderWithVips(path, size, mode)
			if err == nil {
				return img, nil
			}
			libLog.Debug("vips render failed for %s: %v, falling back to imaging", asset.ID, err)
		}
		src, err := loadImageConstrained(path, MaxImageDimension, MaxImagePixels)
		if err != nil {
			return nil, err
		}
		return resize(src, size, mode), nil
	case KindVideo:
		frame, err := extractVideoFrame(ctx, path)
		if err != nil {
			return nil, err
		}
		return resize(frame, size, mode), nil
	default:
		return nil, fmt.Errorf("%s: %w", asset.ID, ErrUnsupported)
	}
}

// StartCaching renders the batch into the caching manager in the background.
func (l *FileLibrary) StartCaching(assets []Asset, size Size, mode ContentMode) {
	batch := append([]Asset(nil), assets...)
	l.caching.Add(1)
	go func() {
		defer l.caching.Done()
		for _, asset := range batch {
			key := renderKey(asset.ID, size, mode)
			if l.renders.Contains(key) {
				continue
			}
			img, err := l.Render(context.Background(), asset, size, mode)
			if err != nil {
				libLog.Debug("pre-render of %s failed: %v", asset.ID, err)
				continue
			}
			l.renders.Add(key, img)
		}
	}()
}

// StopCaching evicts the batch from the caching manager.
func (l *FileLibrary) StopCaching(assets []Asset, size Size, mode ContentMode) {
	for _, asset := range assets {
		l.renders.Remove(renderKey(asset.ID, size, mode))
	}
}

// WaitCaching blocks until all StartCaching batches have finished.
func (l *FileLibrary) WaitCaching() {
	l.caching.Wait()
}

// Cached reports whether a pre-rendered image is held for the key.
func (l *FileLibrary) Cached(id string, size Size, mode ContentMode) bool {
	return l.renders.Contains(renderKey(id, size, mode))
}

func renderKey(id string, size Size, mode ContentMode) string {
	return id + "@" + size.String() + "/" + string(mode)
}
