package cli

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"notesim/config"
	"notesim/internal/adapter/cache"
	"notesim/internal/adapter/embedding"
	"notesim/internal/adapter/fs"
	"notesim/internal/adapter/prompt"
	"notesim/internal/adapter/store"
	"notesim/internal/domain"
	"notesim/internal/port"
	"notesim/internal/telemetry"
	"notesim/internal/usecase"
)

// app is the wired object graph shared by the commands.
type app struct {
	mu  sync.Mutex
	cfg *config.Config

	vault    *fs.Vault
	embedder port.Embedder
	manager  *usecase.CollectionManager
	cache    *cache.QueryCache
	sync     *usecase.SyncEngine
	query    *usecase.QueryEngine
	commands *usecase.Commands
	terminal *prompt.Terminal
	logger   *slog.Logger
}

func newApp(cfg *config.Config, vaultDir string, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}
	vault, err := fs.NewVault(vaultDir, cfg.Vault.Includes, cfg.Vault.Excludes)
	if err != nil {
		return nil, err
	}

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	st, err := store.New(cfg, vaultDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		st.Close()
		return nil, err
	}

	qc := cache.NewQueryCache(cfg.Query.CacheSize, cfg.Query.CacheTTL)
	manager := usecase.NewCollectionManager(st, schemaFor(cfg, embedder), logger)
	manager.OnInvalidate(qc.Invalidate)

	syncEngine := usecase.NewSyncEngine(usecase.SyncConfig{
		PreviewLength:    cfg.Sync.PreviewLength,
		ProgressEvery:    cfg.Sync.ProgressEvery,
		Workers:          cfg.Sync.Workers,
		InclusiveModTime: cfg.Sync.InclusiveModTime,
	}, manager, embedder, vault, nil, logger, metrics)
	syncEngine.OnWrite(qc.Invalidate)

	query := usecase.NewQueryEngine(manager, embedder, qc, logger, metrics)
	terminal := prompt.NewTerminal(os.Stdin, os.Stderr)

	return &app{
		cfg:      cfg,
		vault:    vault,
		embedder: embedder,
		manager:  manager,
		cache:    qc,
		sync:     syncEngine,
		query:    query,
		terminal: terminal,
		logger:   logger,
		commands: &usecase.Commands{
			Sync:     syncEngine,
			Query:    query,
			Notes:    vault,
			Prompter: terminal,
			Notifier: prompt.NewWriter(os.Stdout),
		},
	}, nil
}

func schemaFor(cfg *config.Config, embedder port.Embedder) domain.CollectionSchema {
	return domain.DefaultSchema(cfg.Store.Collection, embedder.Dimension())
}

// reconfigure applies a reloaded config. A changed store connection swaps
// the store and invalidates readiness; embedding changes need a restart.
func (a *app) reconfigure(next *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if next.Embedding != a.cfg.Embedding {
		a.logger.Warn("embedding settings changed, restart to apply")
	}
	if next.ConnectionKey() == a.cfg.ConnectionKey() && next.Store.Token == a.cfg.Store.Token {
		a.cfg = next
		return
	}

	st, err := store.New(next, a.vault.Root())
	if err != nil {
		a.logger.Error("failed to open reconfigured store, keeping the current one", "backend", next.Store.Backend, "error", err)
		return
	}
	old := a.manager.Reconfigure(st, schemaFor(next, a.embedder))
	if err := old.Close(); err != nil {
		a.logger.Warn("failed to close previous store", "error", err)
	}
	a.cfg = next
	a.logger.Info("store connection changed", "backend", next.Store.Backend, "collection", next.Store.Collection)
}

func (a *app) Close() error {
	st, _ := a.manager.Target()
	return st.Close()
}

// openApp builds the app from the loaded config and root directory.
func openApp() (*app, error) {
	return newApp(GetConfig(), GetRootDir(), logger)
}
