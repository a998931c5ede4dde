package settings

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"notifeed/pkg/config"
	"notifeed/pkg/logger"
)

// Watch re-reads the settings section of the config file whenever it
// changes on disk, so toggling a package in the config takes effect
// without a restart. Returns immediately when path is empty.
func Watch(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// watch the directory: editors replace files on save, which drops
	// per-file watches
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return err
	}
	base := filepath.Base(path)

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				cfg, err := config.Load(path)
				if err != nil {
					logger.Warn("settings_reload_failed", "path", path, "error", err)
					continue
				}
				Apply(cfg.Settings)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("settings_watch_error", "error", err)
			}
		}
	}()
	logger.Info("settings_watch_started", "path", path)
	return nil
}
