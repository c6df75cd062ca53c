package gsdfaux

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/soypat/sdfgraph"
	"github.com/soypat/sdfgraph/glrender"
)

// WatchSettings calls fn with the freshly loaded settings every time the settings file
// called filename is written, created or renamed into place. Load errors are passed to fn
// and do not stop the watch. It blocks until ctx is done.
func WatchSettings(ctx context.Context, filename string, fn func(glrender.Settings, error)) error {
	abs, err := filepath.Abs(filename)
	if err != nil {
		return err
	}
	watch, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("gsdfaux: creating settings watcher: %w", err)
	}
	defer watch.Close()
	// Editors often replace the file, so watch its directory.
	if err := watch.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("gsdfaux: watching %s: %w", filename, err)
	}
	const reload = fsnotify.Write | fsnotify.Create | fsnotify.Rename
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watch.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || event.Op&reload == 0 {
				continue
			}
			s, err := LoadSettingsFile(abs)
			if err != nil && event.Op&fsnotify.Rename != 0 {
				continue // Renamed away.
			}
			sdfgraph.Logger().Debug("gsdfaux: settings reloaded", slog.String("file", abs), slog.String("op", event.Op.String()))
			fn(s, err)
		case err, ok := <-watch.Errors:
			if !ok {
				return nil
			}
			sdfgraph.Logger().Warn("gsdfaux: settings watcher", slog.String("err", err.Error()))
		}
	}
}
