package indexer

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watcher signals on a channel when anything under root changes. Bursts of
// events within the debounce window collapse into one signal.
type watcher struct {
	fsWatcher *fsnotify.Watcher
	root      string
	delay     time.Duration
	events    chan struct{}
	stop      chan struct{}
	done      chan struct{}

	mu       sync.Mutex
	debounce *time.Timer
	closed   bool
}

func newWatcher(root string, delay time.Duration) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &watcher{
		fsWatcher: fsw,
		root:      root,
		delay:     delay,
		events:    make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	// fsnotify does not watch subdirectories on its own
	if err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

func (w *watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *watcher) run() {
	defer close(w.done)
	defer func() {
		w.mu.Lock()
		w.closed = true
		if w.debounce != nil {
			w.debounce.Stop()
		}
		w.mu.Unlock()
	}()

	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			if event.Op == fsnotify.Chmod {
				continue
			}

			w.schedule()

			// Watch newly created directories, including mkdir -p chains
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						log.Debug("cannot watch %s: %v", event.Name, err)
					}
				}
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn("watch error: %v", err)
		}
	}
}

func (w *watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.delay, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.closed {
			return
		}
		select {
		case w.events <- struct{}{}:
		default:
		}
	})
}

// Events returns the change signal channel.
func (w *watcher) Events() <-chan struct{} {
	return w.events
}

// Close stops watching and waits for the event loop to exit.
func (w *watcher) Close() {
	close(w.stop)
	_ = w.fsWatcher.Close()
	<-w.done
}
