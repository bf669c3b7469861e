package watch

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounce = 500 * time.Millisecond

// Watcher observes a dataset cache directory and reports episode files that
// finish downloading, batched per debounce window. It lets a running viewer
// session pick up episodes fetched by later invocations against the same
// dataset.
type Watcher struct {
	root    string
	onFiles func(paths []string)
	fsw     *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

// New creates a Watcher over root. onFiles receives absolute paths of settled
// data and video files.
func New(root string, onFiles func(paths []string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:    root,
		onFiles: onFiles,
		fsw:     fsw,
		pending: make(map[string]struct{}),
	}

	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.watch()

	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	return w.fsw.Close()
}

// addTree registers root and every existing subdirectory. fsnotify watches
// are not recursive.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

// adopt registers a directory created after the watcher started. A single
// MkdirAll can create several nested levels but only the watched parent emits
// a Create event, and files may land before the new watches are in place, so
// the walk registers the whole subtree and enqueues wanted files already
// present in it.
func (w *Watcher) adopt(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		if w.wanted(path) {
			w.enqueue(path)
		}
		return nil
	})
}

// watch processes filesystem events.
func (w *Watcher) watch() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			info, err := os.Stat(event.Name)
			if err != nil {
				continue
			}

			if info.IsDir() {
				// New chunk or camera directory; watch it too.
				if err := w.adopt(event.Name); err != nil {
					slog.Error("Failed to watch new directory", "path", event.Name, "error", err)
				}
				continue
			}

			if w.wanted(event.Name) {
				w.enqueue(event.Name)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}

			slog.Error("Watcher error", "error", err)
		}
	}
}

// wanted filters for completed episode payload files: anything under data/ or
// videos/, excluding in-flight partial downloads.
func (w *Watcher) wanted(path string) bool {
	if strings.Contains(filepath.Base(path), ".partial-") {
		return false
	}

	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}

	first := strings.Split(filepath.ToSlash(rel), "/")[0]
	return first == "data" || first == "videos"
}

// enqueue records a path and (re)arms the debounce timer.
func (w *Watcher) enqueue(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] = struct{}{}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounce, w.flush)
}

// flush hands the pending batch to the callback.
func (w *Watcher) flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if len(paths) > 0 {
		w.onFiles(paths)
	}
}
