package config

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/warblehq/warble/internal/logging"
)

// Watch reloads the config file whenever it changes and calls onReload with
// the new config. Parse or validation errors keep the previous config. Editors
// often emit several events per save, so reloads are debounced.
func Watch(ctx context.Context, path string, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(250*time.Millisecond, func() {
					cfg, err := LoadFrom(path)
					if err != nil {
						logging.Errorf("config reload failed, keeping previous: %v", err)
						return
					}
					logging.Infof("config reloaded from %s", path)
					onReload(cfg)
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Errorf("config watcher error: %v", err)
			}
		}
	}()

	return nil
}
