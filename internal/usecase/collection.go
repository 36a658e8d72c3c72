package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"notesim/internal/domain"
	"notesim/internal/port"
)

// CollectionManager makes the configured collection query-ready and
// remembers that it did, until the connection settings change.
type CollectionManager struct {
	mu     sync.Mutex
	store  port.VectorStore
	schema domain.CollectionSchema
	ready  bool
	logger *slog.Logger

	hooks []func()
}

// NewCollectionManager creates a manager for schema on store.
func NewCollectionManager(store port.VectorStore, schema domain.CollectionSchema, logger *slog.Logger) *CollectionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &CollectionManager{
		store:  store,
		schema: schema,
		logger: logger,
	}
}

// OnInvalidate registers fn to run whenever readiness is invalidated.
func (m *CollectionManager) OnInvalidate(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Target returns the current store and collection name.
func (m *CollectionManager) Target() (port.VectorStore, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store, m.schema.Name
}

// Schema returns the current collection schema.
func (m *CollectionManager) Schema() domain.CollectionSchema {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schema
}

// Ready reports the memoized readiness without touching the store.
func (m *CollectionManager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// EnsureReady verifies, creating if needed, that the collection exists with
// the expected dimension and is loaded. Success is cached; failures are not,
// so the next call retries. Errors are NotReady errors wrapping the cause.
func (m *CollectionManager) EnsureReady(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ready {
		return nil
	}

	if err := m.prepare(ctx); err != nil {
		return domain.NotReadyError("ensure ready",
			fmt.Sprintf("collection %s on %s is not ready", m.schema.Name, m.store.Name()), err)
	}

	m.ready = true
	m.logger.Debug("collection ready", "collection", m.schema.Name, "backend", m.store.Name())
	return nil
}

func (m *CollectionManager) prepare(ctx context.Context) error {
	name := m.schema.Name

	exists, err := m.store.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if !exists {
		m.logger.Info("creating collection", "collection", name, "dimension", m.schema.Dimension)
		if err := m.store.CreateCollection(ctx, m.schema); err != nil {
			return err
		}
		if err := m.store.BuildIndex(ctx, m.schema); err != nil {
			return err
		}
	}

	info, err := m.store.Describe(ctx, name)
	if err != nil {
		return err
	}
	if info.Dimension != 0 && info.Dimension != m.schema.Dimension {
		return domain.ConfigurationError("ensure ready",
			fmt.Sprintf("collection %s has dimension %d but the embedding model produces %d; recreate the collection or pick another name",
				name, info.Dimension, m.schema.Dimension), nil)
	}

	m.logger.Debug("loading collection", "collection", name)
	if err := m.store.LoadCollection(ctx, name); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

// Invalidate forgets readiness; the next EnsureReady re-verifies.
func (m *CollectionManager) Invalidate() {
	m.mu.Lock()
	m.ready = false
	hooks := append([]func(){}, m.hooks...)
	m.mu.Unlock()

	runHooks(hooks)
}

// Reconfigure swaps in a new store and schema and invalidates readiness
// before returning. It returns the previous store so the caller can close it.
func (m *CollectionManager) Reconfigure(store port.VectorStore, schema domain.CollectionSchema) port.VectorStore {
	m.mu.Lock()
	old := m.store
	m.store = store
	m.schema = schema
	m.ready = false
	hooks := append([]func(){}, m.hooks...)
	m.mu.Unlock()

	runHooks(hooks)
	m.logger.Info("store reconfigured", "collection", schema.Name, "backend", store.Name())
	return old
}

func runHooks(hooks []func()) {
	for _, fn := range hooks {
		fn()
	}
}
