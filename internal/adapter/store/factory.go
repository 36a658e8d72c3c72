package store

import (
	"fmt"
	"os"
	"path/filepath"

	"notesim/config"
	"notesim/internal/adapter/memstore"
	"notesim/internal/domain"
	"notesim/internal/port"
)

// New opens the vector store selected by cfg.Store.Backend. Local file
// backends resolve their path relative to vaultDir.
func New(cfg *config.Config, vaultDir string) (port.VectorStore, error) {
	address := cfg.ResolveStoreAddress(vaultDir)

	switch cfg.Store.Backend {
	case config.BackendQdrant:
		return NewQdrantVectorStore(address, cfg.Store.Token)
	case config.BackendMilvus:
		return NewMilvusVectorStore(MilvusConfig{
			BaseURL: address,
			Token:   cfg.Store.Token,
			Timeout: cfg.Store.Timeout,
		}), nil
	case config.BackendBolt:
		if err := ensureParent(address); err != nil {
			return nil, err
		}
		return NewBoltVectorStore(address, DefaultLockTimeout)
	case config.BackendSQLite:
		if err := ensureParent(address); err != nil {
			return nil, err
		}
		return NewSQLiteVectorStore(address)
	case config.BackendMemory:
		return memstore.NewMemoryStore(), nil
	default:
		return nil, domain.ConfigurationError("store", fmt.Sprintf("unsupported store backend: %s", cfg.Store.Backend), nil)
	}
}

func ensureParent(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return domain.ConfigurationError("store", "failed to create "+filepath.Dir(path), err)
	}
	return nil
}
