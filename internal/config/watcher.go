package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher logs changes to config.toml and to the configured copilot
// executable path. Neither triggers a hot reload: config is resolved
// once at startup (spec §9 singletons note generalized to config), so a
// change just tells an operator a restart is needed.
type Watcher struct {
	fsw *fsnotify.Watcher
}

// NewWatcher watches DATA_DIR/config.toml and copilotPath (if it already
// exists) for writes/renames, logging each one.
func NewWatcher(dataDir, copilotPath string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	tomlPath := filepath.Join(dataDir, "config.toml")
	if err := fsw.Add(dataDir); err != nil {
		slog.Warn("config watcher: cannot watch data dir", "dir", dataDir, "err", err)
	}
	if err := fsw.Add(copilotPath); err != nil {
		slog.Debug("config watcher: copilot path not watchable yet", "path", copilotPath, "err", err)
	}

	w := &Watcher{fsw: fsw}
	go w.run(tomlPath, copilotPath)
	return w, nil
}

func (w *Watcher) run(tomlPath, copilotPath string) {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Name == tomlPath && (ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				slog.Warn("config.toml changed on disk; restart terminald to pick up the change", "path", tomlPath)
			}
			if ev.Name == copilotPath && (ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)) {
				slog.Info("copilot executable replaced on disk; existing sessions keep their spawned binary", "path", copilotPath)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Error("config watcher error", "err", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
