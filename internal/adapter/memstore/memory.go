package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"notesim/internal/domain"
	"notesim/internal/port"
)

// MemoryStore is a process-local VectorStore. It backs the "memory" backend
// and the use case tests, which toggle its upsert mode and inject failures.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*collection
	native      bool
	calls       map[string]int

	// Fail, when set, is consulted before every operation; a non-nil
	// return aborts the operation with that error.
	Fail func(op, key string) error
}

type collection struct {
	schema  domain.CollectionSchema
	indexed bool
	loaded  bool
	records map[string]domain.VectorRecord
}

type Option func(*MemoryStore)

// WithoutNativeUpsert makes Upsert reject existing keys, so callers have to
// delete first.
func WithoutNativeUpsert() Option {
	return func(s *MemoryStore) { s.native = false }
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		collections: make(map[string]*collection),
		native:      true,
		calls:       make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Name() string {
	return "memory"
}

func (s *MemoryStore) NativeUpsert() bool {
	return s.native
}

// Calls returns how many times op was invoked.
func (s *MemoryStore) Calls(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

// Records returns a copy of every record in the collection.
func (s *MemoryStore) Records(name string) map[string]domain.VectorRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.VectorRecord)
	if c, ok := s.collections[name]; ok {
		for k, v := range c.records {
			out[k] = v
		}
	}
	return out
}

// enter records the call and applies the failure hook. Callers hold mu.
func (s *MemoryStore) enter(op, key string) error {
	s.calls[op]++
	if s.Fail != nil {
		return s.Fail(op, key)
	}
	return nil
}

func (s *MemoryStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("exists", name); err != nil {
		return false, err
	}
	_, ok := s.collections[name]
	return ok, nil
}

func (s *MemoryStore) CreateCollection(ctx context.Context, schema domain.CollectionSchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("create", schema.Name); err != nil {
		return err
	}
	if _, ok := s.collections[schema.Name]; ok {
		return fmt.Errorf("collection %s already exists", schema.Name)
	}
	s.collections[schema.Name] = &collection{
		schema:  schema,
		records: make(map[string]domain.VectorRecord),
	}
	return nil
}

func (s *MemoryStore) BuildIndex(ctx context.Context, schema domain.CollectionSchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("index", schema.Name); err != nil {
		return err
	}
	c, err := s.get(schema.Name)
	if err != nil {
		return err
	}
	c.indexed = true
	return nil
}

func (s *MemoryStore) LoadCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("load", name); err != nil {
		return err
	}
	c, err := s.get(name)
	if err != nil {
		return err
	}
	c.loaded = true
	return nil
}

func (s *MemoryStore) Describe(ctx context.Context, name string) (domain.CollectionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("describe", name); err != nil {
		return domain.CollectionInfo{}, err
	}
	c, err := s.get(name)
	if err != nil {
		return domain.CollectionInfo{}, err
	}
	return domain.CollectionInfo{
		Name:      name,
		Dimension: c.schema.Dimension,
		Count:     int64(len(c.records)),
		Loaded:    c.loaded,
	}, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, name string, rec domain.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("upsert", rec.Key); err != nil {
		return err
	}
	c, err := s.get(name)
	if err != nil {
		return err
	}
	if len(rec.Vector) != c.schema.Dimension {
		return domain.ConfigurationError("memory upsert",
			fmt.Sprintf("vector dimension mismatch: expected %d, got %d", c.schema.Dimension, len(rec.Vector)), nil)
	}
	if _, exists := c.records[rec.Key]; exists && !s.native {
		return fmt.Errorf("duplicate primary key %s", rec.Key)
	}
	c.records[rec.Key] = rec
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, name, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("delete", key); err != nil {
		return err
	}
	if c, ok := s.collections[name]; ok {
		delete(c.records, key)
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, name, key string) (domain.VectorRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("get", key); err != nil {
		return domain.VectorRecord{}, false, err
	}
	c, err := s.get(name)
	if err != nil {
		return domain.VectorRecord{}, false, err
	}
	rec, ok := c.records[key]
	return rec, ok, nil
}

func (s *MemoryStore) Search(ctx context.Context, name string, vector []float32, topK int) ([]domain.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("search", ""); err != nil {
		return nil, err
	}
	c, err := s.get(name)
	if err != nil {
		return nil, err
	}
	if !c.loaded {
		return nil, fmt.Errorf("collection %s is not loaded", name)
	}

	out := make([]domain.Candidate, 0, len(c.records))
	for key, rec := range c.records {
		out = append(out, domain.Candidate{
			Key:     key,
			Path:    rec.Path,
			Preview: rec.Preview,
			Value:   cosine(vector, rec.Vector),
			Kind:    domain.ScoreSimilarity,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Key < out[j].Key
	})
	if topK < 0 {
		topK = 0
	}
	if topK < len(out) {
		out = out[:topK]
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) get(name string) (*collection, error) {
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s not found", name)
	}
	return c, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ port.VectorStore = (*MemoryStore)(nil)
