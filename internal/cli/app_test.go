package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/fang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notesim/config"
	"notesim/internal/domain"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimension = 64
	cfg.Store.Backend = config.BackendMemory
	cfg.Store.Address = ""
	cfg.Normalize()
	return cfg
}

func TestApp_RefreshAndQuery(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("distributed consensus raft"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.md"), []byte("raft consensus leader election"), 0644))

	a, err := newApp(testConfig(), root, nil)
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	report, err := a.sync.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)

	note, err := a.vault.ReadNote(ctx, "a.md")
	require.NoError(t, err)
	results, err := a.query.SimilarTo(ctx, note, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b.md", results[0].Key)
}

func TestApp_ReconfigureSwapsStore(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("alpha"), 0644))

	cfg := testConfig()
	a, err := newApp(cfg, root, nil)
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	_, err = a.sync.Refresh(ctx)
	require.NoError(t, err)
	_, err = a.query.QueryText(ctx, "alpha", 5)
	require.NoError(t, err)
	require.Equal(t, 1, a.cache.Size())

	next := *cfg
	next.Store.Collection = "renamed"
	a.reconfigure(&next)

	assert.False(t, a.manager.Ready())
	assert.Equal(t, 0, a.cache.Size())
	_, name := a.manager.Target()
	assert.Equal(t, "renamed", name)

	results, err := a.query.QueryText(ctx, "alpha", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestApp_ReconfigureKeepsStoreWhenConnectionUnchanged(t *testing.T) {
	cfg := testConfig()
	a, err := newApp(cfg, t.TempDir(), nil)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.manager.EnsureReady(context.Background()))
	before, _ := a.manager.Target()

	next := *cfg
	next.Query.Limit = 9
	a.reconfigure(&next)

	after, _ := a.manager.Target()
	assert.Same(t, before, after)
	assert.True(t, a.manager.Ready())
	assert.Equal(t, 9, a.cfg.Query.Limit)
}

func TestNoteKey(t *testing.T) {
	root := t.TempDir()
	a, err := newApp(testConfig(), root, nil)
	require.NoError(t, err)
	defer a.Close()

	key, ok := noteKey(a, "daily/today.md")
	require.True(t, ok)
	assert.Equal(t, "daily/today.md", key)

	key, ok = noteKey(a, filepath.Join(root, "x.md"))
	require.True(t, ok)
	assert.Equal(t, "x.md", key)

	_, ok = noteKey(a, "../outside.md")
	assert.False(t, ok)
}

func TestSilence(t *testing.T) {
	assert.NoError(t, silence(nil))
	err := silence(domain.ValidationError("query", "query text is empty"))
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestHandleError(t *testing.T) {
	var buf bytes.Buffer
	handleError(&buf, fang.Styles{}, silence(errors.New("already shown")))
	assert.Empty(t, buf.String())

	handleError(&buf, fang.Styles{}, errors.New("store unreachable"))
	assert.Contains(t, buf.String(), "store unreachable")
}
