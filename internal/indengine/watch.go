package indengine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events an editor save produces.
const reloadDebounce = 250 * time.Millisecond

// watchConfigFile reloads the indicator set whenever path changes.
// The parent directory is watched so atomic rename-on-save is seen.
func (svc *Service) watchConfigFile(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	slog.Info("watching indicator file", slog.String("path", abs))

	go func() {
		defer watcher.Close()
		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				debounce = time.After(reloadDebounce)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("indicator file watch error", slog.Any("error", err))

			case <-debounce:
				debounce = nil
				svc.reloadFile(abs)
			}
		}
	}()
	return nil
}

func (svc *Service) reloadFile(path string) {
	configs, err := LoadIndicatorFile(path)
	if err != nil {
		svc.prom.ConfigReloads.WithLabelValues("file", "rejected").Inc()
		slog.Warn("indicator file reload failed", slog.Any("error", err))
		return
	}
	svc.Reload("file", configs)
}
