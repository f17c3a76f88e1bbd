// Package watcher keeps the index current while the server runs. File
// system events are debounced per path so editor save bursts collapse
// into one reindex.
package watcher

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a changed file is reindexed
const DefaultDebounce = 300 * time.Millisecond

// Handler receives debounced change notifications
type Handler interface {
	IndexFile(ctx context.Context, path string) error
	RemoveFile(ctx context.Context, path string) error
}

// SupportsFunc filters events to files the index can parse
type SupportsFunc func(path string) bool

// Watcher watches a project root recursively and drives a Handler.
// New subdirectories are picked up as they appear.
type Watcher struct {
	root     string
	handler  Handler
	supports SupportsFunc
	debounce time.Duration

	fs     *fsnotify.Watcher
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]time.Time
	done    chan struct{}
}

// skipNames are directories never watched
var skipNames = map[string]bool{
	"vendor":       true,
	"node_modules": true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
}

// New creates a watcher for the project root. debounce <= 0 uses the
// default.
func New(root string, handler Handler, supports SupportsFunc, debounce time.Duration) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		root:     root,
		handler:  handler,
		supports: supports,
		debounce: debounce,
		fs:       fs,
		pending:  make(map[string]time.Time),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. It returns after the watch list is populated;
// event processing runs in background goroutines until Close.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	ctx, w.cancel = context.WithCancel(ctx)
	go w.processEvents(ctx)
	go w.flushPending(ctx)
	return nil
}

// Close stops watching and waits for the flush loop to exit. Closing
// a watcher that was never started releases the fsnotify handle only.
func (w *Watcher) Close() error {
	started := w.cancel != nil
	if started {
		w.cancel()
	}
	err := w.fs.Close()
	if started {
		<-w.done
	}
	return err
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != dir && (strings.HasPrefix(name, ".") || skipNames[name]) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			log.Printf("watch %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Printf("watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(event.Name)
			return
		}
	}

	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		if w.supports(event.Name) {
			// Removals skip the debounce; there is nothing to coalesce
			w.discard(event.Name)
			if err := w.handler.RemoveFile(ctx, event.Name); err != nil {
				log.Printf("remove %s: %v", event.Name, err)
			}
		}
		return
	}

	if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
		if !w.supports(event.Name) {
			return
		}
		w.mu.Lock()
		w.pending[event.Name] = time.Now()
		w.mu.Unlock()
	}
}

func (w *Watcher) discard(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()
}

// flushPending reindexes paths whose last event is older than the
// debounce window
func (w *Watcher) flushPending(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.debounce / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			w.mu.Lock()
			var due []string
			for path, last := range w.pending {
				if now.Sub(last) >= w.debounce {
					due = append(due, path)
					delete(w.pending, path)
				}
			}
			w.mu.Unlock()

			for _, path := range due {
				if _, err := os.Stat(path); err != nil {
					// Deleted between event and flush
					if err := w.handler.RemoveFile(ctx, path); err != nil {
						log.Printf("remove %s: %v", path, err)
					}
					continue
				}
				if err := w.handler.IndexFile(ctx, path); err != nil {
					log.Printf("reindex %s: %v", path, err)
				}
			}
		}
	}
}

// PendingCount reports paths waiting out the debounce window
func (w *Watcher) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
