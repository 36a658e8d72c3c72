package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notesim/internal/adapter/embedding"
	"notesim/internal/adapter/memstore"
	"notesim/internal/domain"
)

func cannedEngine(t *testing.T, candidates []domain.Candidate) (*QueryEngine, *cannedStore) {
	t.Helper()
	store := &cannedStore{MemoryStore: memstore.NewMemoryStore(), candidates: candidates}
	m := NewCollectionManager(store, domain.DefaultSchema("notes", testDim), nil)
	return NewQueryEngine(m, embedding.NewMockEmbedder(testDim), nil, nil, nil), store
}

func TestSearch_ExcludesKeyAndAsksForOneMore(t *testing.T) {
	var candidates []domain.Candidate
	for _, k := range []string{"A", "B", "C", "D", "E", "F"} {
		candidates = append(candidates, domain.Candidate{Key: k, Path: k + ".md", Value: 0.9, Kind: domain.ScoreSimilarity})
	}
	q, store := cannedEngine(t, candidates)

	results, err := q.Search(context.Background(), make([]float32, testDim), 5, "A")
	require.NoError(t, err)
	assert.Equal(t, 6, store.lastTopK)
	require.Len(t, results, 5)
	for _, r := range results {
		assert.NotEqual(t, "A", r.Key)
	}
}

func TestSearch_WithoutExclusionAsksForLimit(t *testing.T) {
	q, store := cannedEngine(t, nil)
	_, err := q.Search(context.Background(), make([]float32, testDim), 5, "")
	require.NoError(t, err)
	assert.Equal(t, 5, store.lastTopK)
}

func TestSearch_DistanceBecomesSimilarity(t *testing.T) {
	q, _ := cannedEngine(t, []domain.Candidate{
		{Key: "near", Path: "near.md", Value: 0.2, Kind: domain.ScoreDistance},
	})

	results, err := q.Search(context.Background(), make([]float32, testDim), 5, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.8, results[0].Score, 1e-9)
	assert.Equal(t, "80.0%", results[0].Percent())
}

func TestSearch_SkipsEmptyAndDuplicateKeys(t *testing.T) {
	q, _ := cannedEngine(t, []domain.Candidate{
		{Key: "", Value: 0.99},
		{Key: "a", Value: 0.9},
		{Key: "a", Value: 0.8},
		{Key: "b", Value: 0.7},
	})

	results, err := q.Search(context.Background(), make([]float32, testDim), 5, "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Key)
	assert.Equal(t, "a", results[0].Path)
	assert.Equal(t, "b", results[1].Key)
}

func TestSimilarTo_RanksAndExcludesSelf(t *testing.T) {
	ctx := context.Background()
	h := newHarness(memstore.NewMemoryStore(), SyncConfig{})
	h.notes.put("go.md", "golang channels goroutines", 1000)
	h.notes.put("rust.md", "rust ownership borrow checker", 1000)
	h.notes.put("go2.md", "golang goroutines scheduler", 1000)
	_, err := h.sync.Refresh(ctx)
	require.NoError(t, err)

	note, err := h.notes.ReadNote(ctx, "go.md")
	require.NoError(t, err)

	results, err := h.query.SimilarTo(ctx, note, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "go2.md", results[0].Key)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	for _, r := range results {
		assert.NotEqual(t, "go.md", r.Key)
	}
}

func TestSimilarTo_EmptyKey(t *testing.T) {
	h := newHarness(memstore.NewMemoryStore(), SyncConfig{})
	_, err := h.query.SimilarTo(context.Background(), domain.Note{Content: "text"}, 5)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.Equal(t, 0, h.embedder.Calls())
}

func TestQueryText_BlankIsRejectedWithoutCalls(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		t.Run(fmt.Sprintf("%q", text), func(t *testing.T) {
			h := newHarness(memstore.NewMemoryStore(), SyncConfig{})
			_, err := h.query.QueryText(context.Background(), text, 5)
			require.Error(t, err)
			assert.True(t, domain.IsKind(err, domain.KindValidation))
			assert.Equal(t, 0, h.embedder.Calls())
			assert.Equal(t, 0, storeCalls(h.store))
		})
	}
}

func TestQueryText_CachesUntilWrite(t *testing.T) {
	ctx := context.Background()
	h := newHarness(memstore.NewMemoryStore(), SyncConfig{})
	h.notes.put("a.md", "alpha beta", 1000)
	_, err := h.sync.Refresh(ctx)
	require.NoError(t, err)
	embeds := h.embedder.Calls()

	first, err := h.query.QueryText(ctx, "  alpha ", 5)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := h.query.QueryText(ctx, "alpha", 5)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, embeds+1, h.embedder.Calls())
	assert.Equal(t, 1, h.store.Calls("search"))

	h.notes.put("b.md", "alpha gamma", 2000)
	_, err = h.sync.Refresh(ctx)
	require.NoError(t, err)

	third, err := h.query.QueryText(ctx, "alpha", 5)
	require.NoError(t, err)
	assert.Len(t, third, 2)
	assert.Equal(t, 2, h.store.Calls("search"))
}

func TestQueryText_ReconfigureDropsCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(memstore.NewMemoryStore(), SyncConfig{})
	h.notes.put("a.md", "alpha", 1000)
	_, err := h.sync.Refresh(ctx)
	require.NoError(t, err)

	_, err = h.query.QueryText(ctx, "alpha", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, h.cache.Size())

	fresh := memstore.NewMemoryStore()
	h.manager.Reconfigure(fresh, domain.DefaultSchema("notes", testDim))
	assert.Equal(t, 0, h.cache.Size())
	assert.False(t, h.manager.Ready())

	results, err := h.query.QueryText(ctx, "alpha", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 1, fresh.Calls("create"))
}
