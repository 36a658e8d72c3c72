package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"notesim/internal/adapter/cache"
	"notesim/internal/adapter/embedding"
	"notesim/internal/adapter/memstore"
	"notesim/internal/domain"
	"notesim/internal/port"
)

const testDim = 256

type fakeNotes struct {
	mu    sync.Mutex
	notes map[string]domain.Note
	reads int
}

func newFakeNotes() *fakeNotes {
	return &fakeNotes{notes: make(map[string]domain.Note)}
}

func (f *fakeNotes) put(key, content string, mtime int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes[key] = domain.Note{Key: key, Path: key, Content: content, ModTime: time.UnixMilli(mtime)}
}

func (f *fakeNotes) remove(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.notes, key)
}

func (f *fakeNotes) ListNotes(ctx context.Context) ([]domain.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Note, 0, len(f.notes))
	for _, n := range f.notes {
		n.Content = ""
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeNotes) ReadNote(ctx context.Context, key string) (domain.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	n, ok := f.notes[key]
	if !ok {
		return domain.Note{}, domain.NotFoundError("read note", "note "+key+" no longer exists", nil)
	}
	return n, nil
}

type fakePrompter struct {
	confirm  bool
	text     string
	confirms int
	prompts  int
}

func (p *fakePrompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	p.confirms++
	return p.confirm, nil
}

func (p *fakePrompter) PromptText(ctx context.Context, label string) (string, error) {
	p.prompts++
	return p.text, nil
}

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) Notify(msg string) {
	n.messages = append(n.messages, msg)
}

func (n *recordingNotifier) last() string {
	if len(n.messages) == 0 {
		return ""
	}
	return n.messages[len(n.messages)-1]
}

// cannedStore returns fixed candidates from Search and records the topK it was asked for.
type cannedStore struct {
	*memstore.MemoryStore
	candidates []domain.Candidate
	lastTopK   int
}

func (s *cannedStore) Search(ctx context.Context, name string, vector []float32, topK int) ([]domain.Candidate, error) {
	s.lastTopK = topK
	if topK < len(s.candidates) {
		return s.candidates[:topK], nil
	}
	return s.candidates, nil
}

var _ port.VectorStore = (*cannedStore)(nil)

type harness struct {
	store    *memstore.MemoryStore
	embedder *embedding.MockEmbedder
	notes    *fakeNotes
	manager  *CollectionManager
	sync     *SyncEngine
	query    *QueryEngine
	cache    *cache.QueryCache
}

func newHarness(store *memstore.MemoryStore, cfg SyncConfig) *harness {
	h := &harness{
		store:    store,
		embedder: embedding.NewMockEmbedder(testDim),
		notes:    newFakeNotes(),
		cache:    cache.NewQueryCache(10, time.Minute),
	}
	h.manager = NewCollectionManager(store, domain.DefaultSchema("notes", testDim), nil)
	h.sync = NewSyncEngine(cfg, h.manager, h.embedder, h.notes, nil, nil, nil)
	h.query = NewQueryEngine(h.manager, h.embedder, h.cache, nil, nil)
	h.manager.OnInvalidate(h.cache.Invalidate)
	h.sync.OnWrite(h.cache.Invalidate)
	return h
}

// storeCalls sums every recorded store operation.
func storeCalls(s *memstore.MemoryStore) int {
	total := 0
	for _, op := range []string{"exists", "create", "index", "load", "describe", "upsert", "delete", "get", "search"} {
		total += s.Calls(op)
	}
	return total
}

func msTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}
