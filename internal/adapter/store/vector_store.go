package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	"notesim/internal/domain"
	"notesim/internal/port"
)

var (
	bucketCollections = []byte("collections")
)

func vectorsBucket(collection string) []byte {
	return []byte("vectors:" + collection)
}

// BoltVectorStore implements VectorStore on a local BoltDB file.
// Search is brute force over an in-memory copy that LoadCollection fills.
type BoltVectorStore struct {
	db *bbolt.DB
	mu sync.RWMutex
	// loaded holds the in-memory copy of each loaded collection
	loaded map[string]map[string]vectorEntry
}

type vectorEntry struct {
	vector  []float32
	path    string
	preview string
}

type storedVector struct {
	Vector  []float32 `json:"v"`
	Path    string    `json:"p,omitempty"`
	Preview string    `json:"c,omitempty"`
	ModTime *int64    `json:"t,omitempty"`
}

// DefaultLockTimeout bounds the wait for the file lock held by another process.
const DefaultLockTimeout = time.Second

// NewBoltVectorStore opens (or creates) the BoltDB file at path. It fails
// with a connectivity error when another process keeps the file locked for
// longer than lockTimeout.
func NewBoltVectorStore(path string, lockTimeout time.Duration) (*BoltVectorStore, error) {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: lockTimeout})
	if errors.Is(err, bbolt.ErrTimeout) {
		return nil, domain.ConnectivityError("bolt open", "bolt db "+path+" is locked by another notesim process", err)
	}
	if err != nil {
		return nil, domain.ConfigurationError("bolt open", "failed to open bolt db "+path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCollections)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create collections bucket: %w", err)
	}

	return &BoltVectorStore{
		db:     db,
		loaded: make(map[string]map[string]vectorEntry),
	}, nil
}

func (s *BoltVectorStore) Name() string {
	return "bolt"
}

func (s *BoltVectorStore) NativeUpsert() bool {
	return true
}

func (s *BoltVectorStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	info, err := s.GetSchemaInfo(name)
	if err != nil {
		return false, err
	}
	return info != nil, nil
}

func (s *BoltVectorStore) CreateCollection(ctx context.Context, schema domain.CollectionSchema) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(vectorsBucket(schema.Name)); err != nil {
			return fmt.Errorf("failed to create vectors bucket: %w", err)
		}
		return putSchemaInfo(tx, schema.Name, &SchemaInfo{
			Version:   CurrentSchemaVersion,
			Dimension: schema.Dimension,
			Metric:    string(schema.Metric),
		})
	})
}

// BuildIndex is a no-op: search is brute force.
func (s *BoltVectorStore) BuildIndex(ctx context.Context, schema domain.CollectionSchema) error {
	return nil
}

// LoadCollection migrates the collection if needed and loads its vectors into memory.
func (s *BoltVectorStore) LoadCollection(ctx context.Context, name string) error {
	if err := s.Migrate(name); err != nil {
		return err
	}

	entries := make(map[string]vectorEntry)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(vectorsBucket(name))
		if b == nil {
			return fmt.Errorf("collection %s not found", name)
		}

		return b.ForEach(func(k, v []byte) error {
			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil {
				return nil // Skip corrupted entries
			}
			entries[string(k)] = vectorEntry{
				vector:  stored.Vector,
				path:    stored.Path,
				preview: stored.Preview,
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.loaded[name] = entries
	s.mu.Unlock()
	return nil
}

func (s *BoltVectorStore) Describe(ctx context.Context, name string) (domain.CollectionInfo, error) {
	info, err := s.GetSchemaInfo(name)
	if err != nil {
		return domain.CollectionInfo{}, err
	}
	if info == nil {
		return domain.CollectionInfo{}, fmt.Errorf("collection %s not found", name)
	}

	var count int64
	err = s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(vectorsBucket(name)); b != nil {
			count = int64(b.Stats().KeyN)
		}
		return nil
	})

	s.mu.RLock()
	_, loaded := s.loaded[name]
	s.mu.RUnlock()

	return domain.CollectionInfo{
		Name:      name,
		Dimension: info.Dimension,
		Count:     count,
		Loaded:    loaded,
	}, err
}

// Upsert replaces any record stored under rec.Key.
func (s *BoltVectorStore) Upsert(ctx context.Context, collection string, rec domain.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(vectorsBucket(collection))
		if b == nil {
			return fmt.Errorf("collection %s not found", collection)
		}

		info, err := schemaInfo(tx, collection)
		if err != nil {
			return err
		}
		if info != nil && len(rec.Vector) != info.Dimension {
			return domain.ConfigurationError("bolt upsert",
				fmt.Sprintf("vector dimension mismatch: expected %d, got %d", info.Dimension, len(rec.Vector)), nil)
		}

		stored := storedVector{
			Vector:  rec.Vector,
			Path:    rec.Path,
			Preview: rec.Preview,
		}
		if rec.HasModTime {
			mt := rec.ModTime
			stored.ModTime = &mt
		}
		data, err := json.Marshal(stored)
		if err != nil {
			return err
		}

		if err := b.Put([]byte(rec.Key), data); err != nil {
			return err
		}

		// Update in-memory copy
		if entries, ok := s.loaded[collection]; ok {
			entries[rec.Key] = vectorEntry{
				vector:  rec.Vector,
				path:    rec.Path,
				preview: rec.Preview,
			}
		}
		return nil
	})
}

// Delete removes a record; deleting a missing key is a no-op.
func (s *BoltVectorStore) Delete(ctx context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(vectorsBucket(collection))
		if b == nil {
			return nil
		}
		if err := b.Delete([]byte(key)); err != nil {
			return err
		}
		if entries, ok := s.loaded[collection]; ok {
			delete(entries, key)
		}
		return nil
	})
}

func (s *BoltVectorStore) Get(ctx context.Context, collection, key string) (domain.VectorRecord, bool, error) {
	var (
		rec   domain.VectorRecord
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(vectorsBucket(collection))
		if b == nil {
			return fmt.Errorf("collection %s not found", collection)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		var stored storedVector
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("malformed record %s: %w", key, err)
		}
		found = true
		rec = domain.VectorRecord{
			Key:     key,
			Path:    stored.Path,
			Preview: stored.Preview,
		}
		if stored.ModTime != nil {
			rec.ModTime = *stored.ModTime
			rec.HasModTime = true
		}
		return nil
	})
	return rec, found, err
}

// Search finds the k nearest vectors to the query using cosine similarity.
func (s *BoltVectorStore) Search(ctx context.Context, collection string, query []float32, k int) ([]domain.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.loaded[collection]
	if !ok {
		return nil, fmt.Errorf("collection %s is not loaded", collection)
	}
	if len(entries) == 0 || k <= 0 {
		return nil, nil
	}

	scores := make([]domain.Candidate, 0, len(entries))
	for key, entry := range entries {
		if len(entry.vector) != len(query) {
			return nil, domain.ConfigurationError("bolt search",
				fmt.Sprintf("query dimension mismatch: expected %d, got %d", len(entry.vector), len(query)), nil)
		}
		scores = append(scores, domain.Candidate{
			Key:     key,
			Path:    entry.path,
			Preview: entry.preview,
			Value:   cosineSimilarity(query, entry.vector),
			Kind:    domain.ScoreSimilarity,
		})
	}

	// Sort by score descending, key for stable ties
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Value != scores[j].Value {
			return scores[i].Value > scores[j].Value
		}
		return scores[i].Key < scores[j].Key
	})

	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k], nil
}

func (s *BoltVectorStore) Close() error {
	return s.db.Close()
}

var _ port.VectorStore = (*BoltVectorStore)(nil)
