package inventory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watch reloads the inventory whenever its file changes, so hosts observe
// updated data on their next lookup. It blocks until ctx is cancelled.
// Parse or validation failures keep the previous catalog in place.
func (inv *Inventory) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create inventory watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace files by rename
	// and a watch on the old inode goes stale.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve inventory path: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, _ := filepath.Abs(event.Name)
			if name != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			inv.reload(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("inventory watcher error")
		}
	}
}

// reload re-reads the inventory file and swaps the catalog on success.
func (inv *Inventory) reload(path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("inventory reload failed")
		return
	}

	hosts, groups, err := parse(raw)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("keeping previous inventory")
		return
	}

	inv.replace(hosts, groups)
	log.Info().Str("path", path).Int("hosts", len(hosts)).Msg("inventory reloaded")
}
