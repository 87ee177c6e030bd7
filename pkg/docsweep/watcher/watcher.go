// Package watcher reports new documents in watched directories once they
// have stopped changing.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/docsweep/pkg/docsweep/logging"
)

// ErrNotADirectory is returned by Watch for paths that are not directories.
var ErrNotADirectory = errors.New("not a directory")

// minTick bounds how often pending files are re-examined.
const minTick = 25 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	// Pattern is matched against file base names, e.g. "*.pdf".
	Pattern string

	// Recursive watches subdirectories, including ones created later.
	Recursive bool

	// Settle is how long a file must go without events or size changes
	// before it is reported.
	Settle time.Duration
}

type pendingFile struct {
	seen time.Time
	size int64
}

// Watcher watches directories and reports matching files once they settle.
type Watcher struct {
	opts    Options
	watcher *fsnotify.Watcher
	paths   map[string]bool
	pending map[string]pendingFile
	mu      sync.Mutex
	closed  bool
	now     func() time.Time
	log     *logging.Logger
}

// New creates a Watcher. The pattern is validated up front.
func New(opts Options) (*Watcher, error) {
	if opts.Pattern == "" {
		opts.Pattern = "*"
	}
	if _, err := filepath.Match(opts.Pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", opts.Pattern, err)
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	}

	fsw, err := fsnotify.NewBufferedWatcher(256)
	if err != nil {
		return nil, err
	}

	return &Watcher{
		opts:    opts,
		watcher: fsw,
		paths:   make(map[string]bool),
		pending: make(map[string]pendingFile),
		now:     time.Now,
		log:     logging.Get("watcher"),
	}, nil
}

// Watch starts watching a directory. With Recursive set, every existing
// subdirectory is watched too. Symlinks are not followed.
func (w *Watcher) Watch(root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotADirectory, root)
	}

	if !w.opts.Recursive {
		return w.addWatch(absRoot)
	}

	return filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // unreadable entries are skipped
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if d.IsDir() {
			return w.addWatch(path)
		}
		return nil
	})
}

func (w *Watcher) addWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.paths[path] {
		return nil
	}
	if err := w.watcher.Add(path); err != nil {
		w.log.Warn("failed to add watch", "path", path, "error", err)
		return err
	}
	w.paths[path] = true
	w.log.Debug("watching directory", "path", path)
	return nil
}

// Run processes filesystem events until ctx is cancelled or the watcher is
// closed. onReady receives each batch of settled files in path order. It is
// called from the event loop; events arriving meanwhile are buffered.
func (w *Watcher) Run(ctx context.Context, onReady func(paths []string)) {
	ticker := time.NewTicker(max(w.opts.Settle/4, minTick))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("watcher error", "error", err)

		case <-ticker.C:
			if ready := w.collectReady(); len(ready) > 0 && onReady != nil {
				w.log.Info("documents ready", "count", len(ready))
				onReady(ready)
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	switch {
	case event.Op&fsnotify.Create != 0:
		w.handleCreate(event.Name)
	case event.Op&fsnotify.Write != 0:
		w.track(event.Name)
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// a rename also produces a create for the new name
		w.handleRemove(event.Name)
	}
}

func (w *Watcher) handleCreate(path string) {
	info, err := os.Lstat(path)
	if err != nil {
		return
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return
	}
	if !info.IsDir() {
		w.track(path)
		return
	}
	if !w.opts.Recursive {
		return
	}

	// Files can land in a new directory before its watch is added.
	_ = filepath.WalkDir(path, func(sub string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // unreadable entries are skipped
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if d.IsDir() {
			_ = w.addWatch(sub)
			return nil
		}
		w.track(sub)
		return nil
	})
}

// track records activity on a file that matches the pattern.
func (w *Watcher) track(path string) {
	if !w.matches(path) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pending[path]; !ok {
		w.log.Debug("new document", "path", path)
	}
	w.pending[path] = pendingFile{seen: w.now(), size: info.Size()}
}

func (w *Watcher) handleRemove(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.pending, path)
	if w.paths[path] {
		_ = w.watcher.Remove(path)
		delete(w.paths, path)
	}
	for child := range w.paths {
		if isSubPath(child, path) {
			_ = w.watcher.Remove(child)
			delete(w.paths, child)
		}
	}
	for child := range w.pending {
		if isSubPath(child, path) {
			delete(w.pending, child)
		}
	}
}

// collectReady removes and returns the pending files that have been quiet
// for the settle period with an unchanged size.
func (w *Watcher) collectReady() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	var ready []string
	for path, p := range w.pending {
		if now.Sub(p.seen) < w.opts.Settle {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			delete(w.pending, path)
			continue
		}
		if info.Size() != p.size {
			w.pending[path] = pendingFile{seen: now, size: info.Size()}
			continue
		}
		ready = append(ready, path)
		delete(w.pending, path)
	}
	slices.Sort(ready)
	return ready
}

// Pending returns the number of files waiting to settle.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *Watcher) matches(path string) bool {
	ok, _ := filepath.Match(w.opts.Pattern, filepath.Base(path))
	return ok
}

// Close stops watching and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.paths = make(map[string]bool)
	w.pending = make(map[string]pendingFile)
	return w.watcher.Close()
}

func isSubPath(path, parent string) bool {
	return len(path) > len(parent) && path[:len(parent)+1] == parent+string(filepath.Separator)
}
