package fs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batches struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (b *batches) add(keys []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		b.keys[k] = true
	}
}

func (b *batches) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.keys[key]
}

func startWatcher(t *testing.T, root string) *batches {
	t.Helper()
	v, err := NewVault(root, []string{"**/*.md"}, []string{".obsidian/**"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	got := &batches{keys: make(map[string]bool)}
	go func() {
		defer close(done)
		assert.NoError(t, NewVaultWatcher(v, 20*time.Millisecond, nil).Run(ctx, got.add))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return got
}

func TestVaultWatcher_ReportsWrittenNotes(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "daily"), 0755))
	got := startWatcher(t, root)

	require.Eventually(t, func() bool {
		writeNote(t, root, "daily/today.md", "hello")
		return got.has("daily/today.md")
	}, 5*time.Second, 100*time.Millisecond)
}

func TestVaultWatcher_ReportsRemovedNotes(t *testing.T) {
	root := t.TempDir()
	path := writeNote(t, root, "gone.md", "bye")
	got := startWatcher(t, root)

	require.Eventually(t, func() bool {
		if _, err := os.Stat(path); err == nil {
			os.Remove(path)
		} else {
			writeNote(t, root, "gone.md", "back")
		}
		return got.has("gone.md")
	}, 5*time.Second, 100*time.Millisecond)
}

func TestVaultWatcher_IgnoresNonNotes(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".obsidian"), 0755))
	got := startWatcher(t, root)

	require.Eventually(t, func() bool {
		writeNote(t, root, "image.png", "binary")
		writeNote(t, root, ".obsidian/workspace.md", "settings")
		writeNote(t, root, "marker.md", "marker")
		return got.has("marker.md")
	}, 5*time.Second, 100*time.Millisecond)

	assert.False(t, got.has("image.png"))
	assert.False(t, got.has(".obsidian/workspace.md"))
}

func TestVaultWatcher_ReportsNotesInMovedDirectory(t *testing.T) {
	outside := t.TempDir()
	writeNote(t, outside, "project/plan.md", "plan")
	writeNote(t, outside, "project/nested/notes.md", "notes")
	writeNote(t, outside, "project/diagram.png", "binary")

	root := t.TempDir()
	got := startWatcher(t, root)

	require.Eventually(t, func() bool {
		writeNote(t, root, "marker.md", "marker")
		return got.has("marker.md")
	}, 5*time.Second, 100*time.Millisecond)

	require.NoError(t, os.Rename(filepath.Join(outside, "project"), filepath.Join(root, "project")))

	require.Eventually(t, func() bool {
		return got.has("project/plan.md") && got.has("project/nested/notes.md")
	}, 5*time.Second, 50*time.Millisecond)
	assert.False(t, got.has("project/diagram.png"))
}
