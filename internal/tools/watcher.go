package tools

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// CatalogWatcher reloads a Registry when its catalog file changes.
type CatalogWatcher struct {
	registry *Registry
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu     sync.Mutex
	timer  *time.Timer
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// onReload is called after every reload attempt.
	onReload func(error)
}

// NewCatalogWatcher creates a watcher for path. The parent directory is
// watched so that editors replacing the file are noticed.
func NewCatalogWatcher(registry *Registry, path string, debounce time.Duration) (*CatalogWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &CatalogWatcher{
		registry: registry,
		path:     abs,
		debounce: debounce,
		watcher:  watcher,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

// Start begins processing file events in the background.
func (w *CatalogWatcher) Start() {
	go w.processEvents()
}

// Close stops watching.
func (w *CatalogWatcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	<-w.done
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return err
}

func (w *CatalogWatcher) processEvents() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("WARN: tool catalog watcher: %v", err)
		}
	}
}

func (w *CatalogWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *CatalogWatcher) reload() {
	if w.ctx.Err() != nil {
		return
	}
	specs, err := LoadCatalog(w.path)
	if err != nil {
		log.Printf("WARN: failed to reload tool catalog %s: %v", w.path, err)
	} else {
		w.registry.Load(specs)
		log.Printf("Reloaded tool catalog %s (%d servers)", w.path, len(specs))
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}
