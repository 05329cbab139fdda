// Package schema watches the OLAP cube schema directory and flushes the
// metadata caches when a schema file is redeployed. A schema change can
// add or drop hll columns, so the cached catalog facts must not outlive
// the files they were derived from.
package schema

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ha1tch/sqlfix/pkg/log"
)

// Watcher monitors a schema directory and triggers a cache flush when
// schema files change.
type Watcher struct {
	mu sync.RWMutex

	root   string
	logger *log.Logger

	fsWatcher *fsnotify.Watcher

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	// Debouncing: a schema redeploy touches several files in quick
	// succession and should flush once, not once per file.
	debounceDelay time.Duration
	pendingEvents map[string]fsnotify.Op
	eventTimer    *time.Timer

	onFlush func(paths []string) // Called after a batch of schema changes
	onError func(err error)
}

// Option configures the watcher.
type Option func(*Watcher)

// WithDebounceDelay sets the debounce delay for batching file events.
// Default is 250ms.
func WithDebounceDelay(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounceDelay = d
	}
}

// WithOnError sets a callback for error events.
func WithOnError(fn func(err error)) Option {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// NewWatcher creates a watcher over root. onFlush is invoked with the
// changed paths after each debounced batch of schema file events.
func NewWatcher(root string, onFlush func(paths []string), logger *log.Logger, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:          root,
		logger:        logger,
		fsWatcher:     fsw,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		debounceDelay: 250 * time.Millisecond,
		pendingEvents: make(map[string]fsnotify.Op),
		onFlush:       onFlush,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start begins watching for file changes.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addWatchesRecursive(w.root); err != nil {
		return err
	}

	w.logger.Application().Info("schema watcher started",
		"root", w.root,
	)

	go w.processEvents()

	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh // Wait for event processor to finish

	w.logger.Application().Info("schema watcher stopped")

	return w.fsWatcher.Close()
}

// IsRunning returns whether the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// addWatchesRecursive adds watches for a directory and all subdirectories.
func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() {
			return nil
		}

		if strings.HasPrefix(info.Name(), ".") && path != root {
			return filepath.SkipDir
		}

		if err := w.fsWatcher.Add(path); err != nil {
			w.logger.Application().Warn("failed to watch directory",
				"path", path,
				"error", err.Error(),
			)
			return nil
		}

		return nil
	})
}

// processEvents handles fsnotify events.
func (w *Watcher) processEvents() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			if w.eventTimer != nil {
				w.eventTimer.Stop()
			}
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Application().Error("schema watcher error", err)
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

// isSchemaFile reports whether path looks like a deployed schema file.
func isSchemaFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml", ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// handleEvent processes a single fsnotify event with debouncing.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !isSchemaFile(event.Name) {
		// But handle new directories
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				w.fsWatcher.Add(event.Name)
			}
		}
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// Accumulate events (last operation wins for same file)
	w.pendingEvents[event.Name] = event.Op

	if w.eventTimer != nil {
		w.eventTimer.Stop()
	}
	w.eventTimer = time.AfterFunc(w.debounceDelay, w.flushPending)
}

// flushPending fires the flush callback for all accumulated events.
func (w *Watcher) flushPending() {
	w.mu.Lock()
	events := w.pendingEvents
	w.pendingEvents = make(map[string]fsnotify.Op)
	w.mu.Unlock()

	if len(events) == 0 {
		return
	}

	paths := make([]string, 0, len(events))
	for path := range events {
		paths = append(paths, path)
	}

	w.logger.Application().Info("schema change detected, flushing caches",
		"files", len(paths),
	)

	if w.onFlush != nil {
		w.onFlush(paths)
	}
}
