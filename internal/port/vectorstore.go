package port

import (
	"context"

	"notesim/internal/domain"
)

// VectorStore is the capability set every vector database backend provides.
// The sync and query engines depend only on this interface.
type VectorStore interface {
	// CollectionExists reports whether the named collection exists.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// CreateCollection creates a collection with the given schema.
	CreateCollection(ctx context.Context, schema domain.CollectionSchema) error

	// BuildIndex builds the vector index. Backends that index implicitly return nil.
	BuildIndex(ctx context.Context, schema domain.CollectionSchema) error

	// LoadCollection makes the collection queryable. Backends that are always
	// queryable return nil.
	LoadCollection(ctx context.Context, name string) error

	// Describe reports the dimension and size of an existing collection.
	Describe(ctx context.Context, name string) (domain.CollectionInfo, error)

	// Upsert writes rec. When NativeUpsert is true it replaces any record with the
	// same key; otherwise callers delete first.
	Upsert(ctx context.Context, collection string, rec domain.VectorRecord) error

	// Delete removes the record with the given key. A missing key is not an error.
	Delete(ctx context.Context, collection, key string) error

	// Get returns the stored record for key without its vector.
	Get(ctx context.Context, collection, key string) (domain.VectorRecord, bool, error)

	// Search returns up to topK nearest neighbours of vector, best first.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]domain.Candidate, error)

	// NativeUpsert reports whether Upsert replaces by key in a single call.
	NativeUpsert() bool

	// Name identifies the backend in logs and status output.
	Name() string

	Close() error
}
