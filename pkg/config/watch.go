package config

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/piwi3910/cvmsync/pkg/telemetry"
)

// Watch watches the config file and invokes reloadFn with the freshly
// loaded configuration on change. Reload events are debounced; a file
// that fails to load keeps the previous configuration in effect.
func Watch(ctx context.Context, path string, logger *telemetry.Logger, reloadFn func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	go processEvents(ctx, watcher, path, logger, reloadFn)

	logger.Infof("watching config file %s", path)
	return nil
}

func processEvents(ctx context.Context, watcher *fsnotify.Watcher, path string, logger *telemetry.Logger, reloadFn func(*Config)) {
	// Debounce reload events
	var reloadTimer *time.Timer
	reloadDelay := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if reloadTimer != nil {
					reloadTimer.Stop()
				}
				reloadTimer = time.AfterFunc(reloadDelay, func() {
					cfg, err := Load(path)
					if err != nil {
						logger.WithError(err).Error("failed to reload config, keeping previous")
						return
					}
					reloadFn(cfg)
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.WithError(err).Warn("config watcher error")
		}
	}
}
