package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce absorbs the burst of events editors emit for one save.
const reloadDebounce = 100 * time.Millisecond

// LoaderFunc reads a settings snapshot from path.
type LoaderFunc func(path string) (ServerConfig, error)

// Watcher reloads a settings file into a Store whenever it changes on disk.
// A file that fails to load or validate is logged and the previous snapshot
// stays in effect.
type Watcher struct {
	log      *slog.Logger
	path     string
	store    *Store
	load     LoaderFunc
	debounce time.Duration
}

// NewWatcher creates a Watcher for path. If load is nil, LoadFile is used.
// If log is nil, slog.Default() is used.
func NewWatcher(path string, store *Store, load LoaderFunc, log *slog.Logger) *Watcher {
	if load == nil {
		load = LoadFile
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		log:      log.With("component", "config-watcher", "path", path),
		path:     filepath.Clean(path),
		store:    store,
		load:     load,
		debounce: reloadDebounce,
	}
}

// Run watches the file's directory, so that editors replacing the file by
// rename are still seen. It blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}
	w.log.Info("watching settings file")

	pending := time.NewTimer(time.Hour)
	pending.Stop()
	defer pending.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				pending.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)
		case <-pending.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.load(w.path)
	if err != nil {
		w.log.Warn("reload failed, keeping previous settings", "error", err)
		return
	}
	if err := w.store.Replace(cfg); err != nil {
		w.log.Warn("reloaded settings rejected", "error", err)
	}
}
