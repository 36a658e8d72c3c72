package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notesim/internal/adapter/memstore"
	"notesim/internal/domain"
)

func newCommands(h *harness, p *fakePrompter, n *recordingNotifier) *Commands {
	return &Commands{
		Sync:     h.sync,
		Query:    h.query,
		Notes:    h.notes,
		Prompter: p,
		Notifier: n,
	}
}

func TestRecomputeAll_DeclineMakesNoCalls(t *testing.T) {
	h := newHarness(memstore.NewMemoryStore(), SyncConfig{})
	h.notes.put("a.md", "alpha", 1000)
	p := &fakePrompter{confirm: false}
	n := &recordingNotifier{}

	_, err := newCommands(h, p, n).RecomputeAll(context.Background())
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 1, p.confirms)
	assert.Equal(t, 0, h.embedder.Calls())
	assert.Equal(t, 0, storeCalls(h.store))
	assert.Equal(t, "Recompute cancelled.", n.last())
}

func TestRecomputeAll_Confirmed(t *testing.T) {
	h := newHarness(memstore.NewMemoryStore(), SyncConfig{})
	h.notes.put("a.md", "alpha", 1000)
	h.notes.put("b.md", "beta", 1000)
	n := &recordingNotifier{}

	report, err := newCommands(h, &fakePrompter{confirm: true}, n).RecomputeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, "Recomputed 2 notes (0 failed).", n.last())
}

func TestFindSimilarToCurrent_NoActiveNote(t *testing.T) {
	h := newHarness(memstore.NewMemoryStore(), SyncConfig{})
	n := &recordingNotifier{}

	_, err := newCommands(h, &fakePrompter{}, n).FindSimilarToCurrent(context.Background(), "", 5)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.Equal(t, "no active note", n.last())
	assert.Equal(t, 0, h.embedder.Calls())
}

func TestFindSimilarToCurrent_ListsResults(t *testing.T) {
	ctx := context.Background()
	h := newHarness(memstore.NewMemoryStore(), SyncConfig{})
	h.notes.put("a.md", "shared words here", 1000)
	h.notes.put("b.md", "shared words there", 1000)
	_, err := h.sync.Refresh(ctx)
	require.NoError(t, err)
	n := &recordingNotifier{}

	results, err := newCommands(h, &fakePrompter{}, n).FindSimilarToCurrent(ctx, "a.md", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, strings.HasPrefix(n.last(), "Notes similar to a.md:\n1. b.md ("))
}

func TestFindSimilarToCurrent_NothingIndexed(t *testing.T) {
	h := newHarness(memstore.NewMemoryStore(), SyncConfig{})
	h.notes.put("a.md", "alone", 1000)
	n := &recordingNotifier{}

	results, err := newCommands(h, &fakePrompter{}, n).FindSimilarToCurrent(context.Background(), "a.md", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, "No similar notes found.", n.last())
}

func TestQueryByText_PromptsWhenEmpty(t *testing.T) {
	h := newHarness(memstore.NewMemoryStore(), SyncConfig{})
	p := &fakePrompter{text: "   "}
	n := &recordingNotifier{}

	_, err := newCommands(h, p, n).QueryByText(context.Background(), "", 5)
	require.Error(t, err)
	assert.Equal(t, 1, p.prompts)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.Equal(t, "query text is empty", n.last())
	assert.Equal(t, 0, h.embedder.Calls())
	assert.Equal(t, 0, storeCalls(h.store))
}

func TestRefreshStale_ReportsFailureStatus(t *testing.T) {
	store := memstore.NewMemoryStore()
	store.Fail = func(op, key string) error {
		return errors.New("dial tcp: connection refused")
	}
	h := newHarness(store, SyncConfig{})
	n := &recordingNotifier{}

	_, err := newCommands(h, &fakePrompter{}, n).RefreshStale(context.Background())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(n.last(), "Error: "))
	assert.Contains(t, n.last(), "connection refused")
}

func TestFormatResults(t *testing.T) {
	out := FormatResults("Results", []domain.SimilarityResult{
		{Path: "a.md", Score: 0.8},
		{Path: "b.md", Score: 0.456},
	})
	assert.Equal(t, "Results:\n1. a.md (80.0%)\n2. b.md (45.6%)", out)
}
