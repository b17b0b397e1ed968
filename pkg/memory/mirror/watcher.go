package mirror

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/entrhq/mnemo/pkg/memory/store"
)

// DefaultDebounce coalesces bursts of file events into one refresh.
const DefaultDebounce = 250 * time.Millisecond

// Watcher refreshes a Cache when tier files change on disk, including
// edits made by hand outside the process.
type Watcher struct {
	cache   *Cache
	root    string
	working string
	fs      *fsnotify.Watcher

	debounce time.Duration

	mu        sync.Mutex
	timer     *time.Timer
	fullDirty bool
	callbacks []func(Snapshot)
	running   bool
	stopOnce  sync.Once
	stopCh    chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the debounce window.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher watches the store behind cache.
func NewWatcher(cache *Cache, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("mirror: create fsnotify watcher: %w", err)
	}
	w := &Watcher{
		cache:    cache,
		root:     cache.store.Root(),
		working:  cache.store.WorkingDir(),
		fs:       fsw,
		debounce: DefaultDebounce,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// OnChange registers a callback run after each refresh.
func (w *Watcher) OnChange(cb func(Snapshot)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Watch blocks until ctx is done or Stop is called.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("mirror: watcher is already running")
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	}()

	for _, dir := range []string{w.root, w.working} {
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("mirror: watch %s: %w", dir, err)
		}
	}
	debugLog.Infof("watching %s for tier changes", w.root)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			debugLog.Warnf("mirror watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	dir, name := filepath.Split(event.Name)
	dir = filepath.Clean(dir)

	var full bool
	switch {
	case dir == w.root && (name == store.EpisodicFile || name == store.SemanticFile || name == store.StateFile):
		full = true
	case dir == w.working && store.IsWorkingFile(name):
		full = false
	default:
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.fullDirty = w.fullDirty || full
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.flush)
		return
	}
	w.timer.Reset(w.debounce)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	full := w.fullDirty
	w.fullDirty = false
	w.timer = nil
	callbacks := append([]func(Snapshot){}, w.callbacks...)
	w.mu.Unlock()

	if full {
		_ = w.cache.Refresh()
	} else {
		_ = w.cache.RefreshStats()
	}
	snap := w.cache.Snapshot()
	for _, cb := range callbacks {
		cb(snap)
	}
}

// IsRunning reports whether Watch is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Stop ends Watch and releases the fsnotify watcher.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.fs.Close()
	})
	return err
}
