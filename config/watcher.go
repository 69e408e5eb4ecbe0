package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes the config file and logs when it changes. Topology values
// cannot be applied at runtime (shard count and the room set are fixed at
// startup), so the watcher only surfaces that a restart is needed.
type Watcher struct {
	path   string
	logger *slog.Logger
}

func NewWatcher(cfg *Config, logger *slog.Logger) *Watcher {
	return &Watcher{path: cfg.File(), logger: logger}
}

// Run blocks until the context is cancelled. A nil error on a missing config
// file keeps the service usable on pure defaults.
func (w *Watcher) Run(ctx context.Context) error {
	if w.path == "" {
		w.logger.Debug("no config file in use, watcher idle")
		<-ctx.Done()
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// Watch the directory: editors replace files atomically, which drops
	// the watch on the file itself.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	// Debounce to avoid reacting to partial writes.
	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(250*time.Millisecond, func() {
				w.logger.Warn("config file changed, restart required to apply",
					"path", w.path)
			})
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}
