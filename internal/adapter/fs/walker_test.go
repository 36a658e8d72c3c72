package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notesim/internal/domain"
)

func writeNote(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestVault_ListNotes(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "b.md", "bee")
	writeNote(t, root, "daily/a.md", "ay")
	writeNote(t, root, "image.png", "not a note")
	writeNote(t, root, ".obsidian/workspace.md", "settings")
	writeNote(t, root, ".notesim/cache.md", "state")

	v, err := NewVault(root, []string{"**/*.md"}, []string{".obsidian/**", ".notesim/**"})
	require.NoError(t, err)

	notes, err := v.ListNotes(context.Background())
	require.NoError(t, err)

	keys := make([]string, 0, len(notes))
	for _, n := range notes {
		keys = append(keys, n.Key)
		assert.Empty(t, n.Content, "listing does not read content")
		assert.False(t, n.ModTime.IsZero())
	}
	assert.Equal(t, []string{"b.md", "daily/a.md"}, keys)
}

func TestVault_ReadNote(t *testing.T) {
	root := t.TempDir()
	path := writeNote(t, root, "daily/a.md", "hello\nworld")
	mtime := time.UnixMilli(1700000000123)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	v, err := NewVault(root, nil, nil)
	require.NoError(t, err)

	note, err := v.ReadNote(context.Background(), "daily/a.md")
	require.NoError(t, err)
	assert.Equal(t, "daily/a.md", note.Key)
	assert.Equal(t, "hello\nworld", note.Content)
	assert.EqualValues(t, 1700000000123, note.ModMillis())
}

func TestVault_ReadNoteVanished(t *testing.T) {
	v, err := NewVault(t.TempDir(), nil, nil)
	require.NoError(t, err)

	_, err = v.ReadNote(context.Background(), "gone.md")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestVault_ReadNoteRejectsKeysOutsideVault(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "vault")
	writeNote(t, root, "a.md", "inside")
	writeNote(t, parent, "secret.md", "TOP SECRET")

	v, err := NewVault(root, nil, nil)
	require.NoError(t, err)

	for _, key := range []string{"../secret.md", "daily/../../secret.md", filepath.ToSlash(filepath.Join(parent, "secret.md")), ""} {
		note, err := v.ReadNote(context.Background(), key)
		require.Error(t, err, key)
		assert.True(t, domain.IsKind(err, domain.KindValidation), key)
		assert.Empty(t, note.Content)
	}

	note, err := v.ReadNote(context.Background(), "daily/../a.md")
	require.NoError(t, err)
	assert.Equal(t, "a.md", note.Key)
}

func TestVault_ReadNoteRejectsExcludedFiles(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, ".obsidian/app.json", `{"k":1}`)
	writeNote(t, root, ".obsidian/plugin.md", "plugin notes")
	writeNote(t, root, "todo.txt", "not a note")

	v, err := NewVault(root, []string{"**/*.md"}, []string{".obsidian/**"})
	require.NoError(t, err)

	for _, key := range []string{".obsidian/app.json", ".obsidian/plugin.md", "todo.txt"} {
		_, err := v.ReadNote(context.Background(), key)
		require.Error(t, err, key)
		assert.True(t, domain.IsKind(err, domain.KindValidation), key)
	}
}

func TestVault_KeyFor(t *testing.T) {
	root := t.TempDir()
	v, err := NewVault(root, nil, nil)
	require.NoError(t, err)

	key, ok := v.KeyFor(filepath.Join(root, "daily", "a.md"))
	assert.True(t, ok)
	assert.Equal(t, "daily/a.md", key)

	_, ok = v.KeyFor(filepath.Join(filepath.Dir(root), "elsewhere.md"))
	assert.False(t, ok)

	assert.True(t, v.Matches("daily/a.md"))
	assert.False(t, v.Matches("daily/a.txt"))
}
