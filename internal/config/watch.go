package config

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Config from disk whenever its source file changes.
// Files pulled in through $include are not watched. Optional: the default deployment
// loads configuration once at startup and never constructs a Watcher
// (spec §9 "an initialization routine run once").
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewWatcher opens an fsnotify watch on path's directory (fsnotify
// watches directories, not files, to survive editors that replace the
// file via rename-on-save) and returns a Watcher ready for Start.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{path: path, watcher: fw, logger: logger}, nil
}

// Start watches path's directory and invokes onReload with the freshly
// loaded Config each time path is written or renamed into place. Runs
// until stop is closed. A reload that fails to parse or validate is
// logged and skipped, leaving the previous Config in effect.
func (w *Watcher) Start(stop <-chan struct{}, onReload func(Config)) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	go func() {
		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}
		for {
			select {
			case <-stop:
				w.watcher.Close()
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if event.Name != w.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				debounce.Reset(200 * time.Millisecond)
			case <-debounce.C:
				cfg, err := Load(w.path)
				if err != nil {
					w.logger.Warn("config reload failed, keeping previous config", "path", w.path, "error", err)
					continue
				}
				onReload(cfg)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("config watcher error", "error", err)
			}
		}
	}()
	return nil
}
