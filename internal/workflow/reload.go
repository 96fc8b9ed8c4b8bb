package workflow

import (
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloader watches a workflow-definitions directory and swaps an Engine's
// catalog in whenever a file inside it changes (spec §4.6
// "Workflow-definition hot reload"). The default deployment never
// constructs one; definitions load once at startup via LoadDefinitionsDir.
type Reloader struct {
	dir     string
	builtin []Definition
	engine  *Engine
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewReloader opens an fsnotify watch on dir. builtin is the fixed set of
// bundled templates that every reload re-merges with whatever currently
// parses from dir, so a bad edit to one custom file can't shadow
// research_compare/deep_research/fact_check.
func NewReloader(dir string, builtin []Definition, engine *Engine, logger *slog.Logger) (*Reloader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	return &Reloader{dir: dir, builtin: builtin, engine: engine, watcher: fw, logger: logger}, nil
}

// Start watches until stop is closed, reloading the engine's catalog on
// every debounced filesystem event. A directory that fails to parse is
// logged and skipped, leaving the previous catalog in effect.
func (r *Reloader) Start(stop <-chan struct{}) {
	go func() {
		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}
		for {
			select {
			case <-stop:
				r.watcher.Close()
				return
			case _, ok := <-r.watcher.Events:
				if !ok {
					return
				}
				debounce.Reset(200 * time.Millisecond)
			case <-debounce.C:
				r.reload()
			case err, ok := <-r.watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn("workflow definitions watcher error", "error", err)
			}
		}
	}()
}

func (r *Reloader) reload() {
	custom, err := LoadDefinitionsDir(r.dir)
	if err != nil {
		r.logger.Warn("workflow definitions reload failed, keeping previous catalog", "dir", r.dir, "error", err)
		return
	}
	merged := make([]Definition, 0, len(r.builtin)+len(custom))
	merged = append(merged, r.builtin...)
	merged = append(merged, custom...)
	r.engine.ReplaceCatalog(merged)
	r.logger.Info("workflow definitions reloaded", "dir", r.dir, "custom_count", len(custom))
}
