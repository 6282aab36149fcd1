package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/nexus-mcp/pkg/observability"
)

// ReloadFunc is called after a namespace was reloaded from disk
type ReloadFunc func(namespace string, operations int)

// Watcher reloads namespaces when their spec files change on disk.
// Bursts of events for the same file are coalesced by the debounce delay.
type Watcher struct {
	catalog  *Catalog
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onReload ReloadFunc
	logger   *observability.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher creates a watcher on the catalog's spec directory
func NewWatcher(c *Catalog, debounce time.Duration, onReload ReloadFunc, logger *observability.Logger) (*Watcher, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(c.SpecDir()); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", c.SpecDir(), err)
	}
	return &Watcher{
		catalog:  c,
		watcher:  fw,
		debounce: debounce,
		onReload: onReload,
		logger:   logger,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Run processes file events until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	w.logger.WithField("dir", w.catalog.SpecDir()).Info("watching API documents for changes")

	for {
		select {
		case <-ctx.Done():
			w.stopPending()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !isSpecFile(event.Name) {
				continue
			}
			name, ok := w.catalog.NamespaceForFile(event.Name)
			if !ok {
				w.logger.WithField("file", event.Name).Debug("ignoring change to unregistered document")
				continue
			}
			w.schedule(name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("watcher error")
		}
	}
}

func (w *Watcher) schedule(namespace string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[namespace]; ok {
		t.Stop()
	}
	w.pending[namespace] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, namespace)
		w.mu.Unlock()
		w.reload(namespace)
	})
}

func (w *Watcher) reload(namespace string) {
	count, err := w.catalog.Reload(namespace)
	if err != nil {
		w.logger.WithError(err).WithField("namespace", namespace).Warn("reload rejected, keeping previous operations")
		return
	}
	if w.onReload != nil {
		w.onReload(namespace, count)
	}
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for name, t := range w.pending {
		t.Stop()
		delete(w.pending, name)
	}
}

func isSpecFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
