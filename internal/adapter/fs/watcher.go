package fs

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// VaultWatcher reports the keys of notes touched on disk, batched so a burst
// of editor writes yields one callback.
type VaultWatcher struct {
	vault    *Vault
	debounce time.Duration
	logger   *slog.Logger
}

func NewVaultWatcher(vault *Vault, debounce time.Duration, logger *slog.Logger) *VaultWatcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VaultWatcher{vault: vault, debounce: debounce, logger: logger}
}

// Run watches the vault until ctx is done and calls onBatch with the sorted
// keys of created, written, removed or renamed notes.
func (w *VaultWatcher) Run(ctx context.Context, onBatch func(keys []string)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.vault.Root(), nil); err != nil {
		return err
	}

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	pending := make(map[string]bool)
	queue := func(key string) {
		if len(pending) == 0 {
			timer.Reset(w.debounce)
		}
		pending[key] = true
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					// Notes already inside a directory moved into the vault
					// produce no events of their own.
					if err := w.addTree(fw, event.Name, queue); err != nil {
						w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
					continue
				}
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			key, ok := w.vault.KeyFor(event.Name)
			if !ok || !w.vault.Matches(key) {
				continue
			}
			queue(key)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("vault watch error", "error", err)
		case <-timer.C:
			keys := make([]string, 0, len(pending))
			for k := range pending {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			pending = make(map[string]bool)
			onBatch(keys)
		}
	}
}

// addTree watches dir and every subdirectory not excluded from the vault.
// When found is set it receives the key of every note under dir.
func (w *VaultWatcher) addTree(fw *fsnotify.Watcher, dir string, found func(key string)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if key, ok := w.vault.KeyFor(path); ok && found != nil && w.vault.Matches(key) {
				found(key)
			}
			return nil
		}
		if key, ok := w.vault.KeyFor(path); ok && w.vault.walker.shouldExclude(key+"/") {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
