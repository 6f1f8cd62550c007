// Package watcher provides hot-reload of the known-services seed file.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler is called once per settled change of the seed file.
type Handler func(ctx context.Context) error

// SeedWatcher watches the seed file for changes and invokes the handler
// after the writes settle. The parent directory is watched rather than the
// file itself: editors and config tools replace the file via rename, which
// would silently drop a file-level watch.
type SeedWatcher struct {
	fsWatcher *fsnotify.Watcher
	handler   Handler
	logger    *slog.Logger
	path      string
	debounce  time.Duration

	mu      sync.Mutex
	pending *time.Time
}

// Config holds watcher configuration.
type Config struct {
	Path     string        // Seed file to watch
	Debounce time.Duration // Quiet period before the handler fires
}

// New creates a new seed file watcher.
func New(cfg Config, handler Handler, logger *slog.Logger) (*SeedWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if cfg.Debounce == 0 {
		cfg.Debounce = 500 * time.Millisecond
	}

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}

	return &SeedWatcher{
		fsWatcher: fsWatcher,
		handler:   handler,
		logger:    logger,
		path:      absPath,
		debounce:  cfg.Debounce,
	}, nil
}

// Start watches the seed file's directory until the context is canceled.
func (w *SeedWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.fsWatcher.Add(dir); err != nil {
		return err
	}
	w.logger.Info("watching seed file", "path", w.path)

	go w.eventLoop(ctx)
	go w.debounceLoop(ctx)

	return nil
}

// Stop stops the watcher.
func (w *SeedWatcher) Stop() error {
	return w.fsWatcher.Close()
}

// eventLoop processes fsnotify events.
func (w *SeedWatcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// handleFsEvent marks the seed file dirty on any relevant event.
func (w *SeedWatcher) handleFsEvent(event fsnotify.Event) {
	if !w.isSeedFile(event.Name) {
		return
	}
	if event.Op.Has(fsnotify.Remove) {
		// A removed seed file is not a reload trigger: the last loaded
		// list stays in effect until the file reappears.
		w.logger.Warn("seed file removed, keeping current seed list", "path", w.path)
		return
	}

	w.logger.Debug("seed file event", "path", event.Name, "op", event.Op.String())

	now := time.Now()
	w.mu.Lock()
	w.pending = &now
	w.mu.Unlock()
}

// debounceLoop fires the handler once the file has been quiet for the
// debounce window.
func (w *SeedWatcher) debounceLoop(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if w.takeSettled() {
				w.reload(ctx)
			}
		}
	}
}

// takeSettled consumes the pending mark if the debounce window has passed.
func (w *SeedWatcher) takeSettled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending == nil || time.Since(*w.pending) < w.debounce {
		return false
	}
	w.pending = nil
	return true
}

// reload invokes the handler for a settled change.
func (w *SeedWatcher) reload(ctx context.Context) {
	w.logger.Info("seed file changed, reloading", "path", w.path)
	if err := w.handler(ctx); err != nil {
		w.logger.Error("seed reload failed", "path", w.path, "error", err)
	}
}

// isSeedFile reports whether the event path names the watched seed file.
// Events carry paths in the same form the directory watch was added with,
// so a cleaned comparison suffices.
func (w *SeedWatcher) isSeedFile(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return abs == w.path
}
