package policy

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads the provider's policy file whenever it changes on disk.
// Editors often replace files via rename, so the parent directory is watched
// and events are filtered to the policy file itself, with a short debounce
// to absorb write bursts. Blocks until ctx is cancelled. A no-op for
// providers without a file.
func (pr *Provider) Watch(ctx context.Context) error {
	if pr.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create policy watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(pr.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch policy dir %s: %w", dir, err)
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	target := filepath.Clean(pr.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				if err := pr.Reload(); err != nil {
					pr.logger.Error("tier policy reload failed, keeping previous policy", "error", err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			pr.logger.Warn("policy watcher error", "error", err)
		}
	}
}
