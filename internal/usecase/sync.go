package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"notesim/internal/domain"
	"notesim/internal/port"
	"notesim/internal/telemetry"
)

// SyncConfig tunes a SyncEngine.
type SyncConfig struct {
	PreviewLength int
	ProgressEvery int
	// Workers > 1 embeds notes concurrently. Each note of a pass goes to
	// exactly one worker.
	Workers int
	// InclusiveModTime treats an equal stored mtime as stale.
	InclusiveModTime bool
}

// ProgressFunc is called with the number of notes handled so far.
type ProgressFunc func(done, total int)

// SyncEngine keeps the vector store in agreement with the notes.
type SyncEngine struct {
	cfg      SyncConfig
	manager  *CollectionManager
	embedder port.Embedder
	notes    port.NoteStore
	progress ProgressFunc
	logger   *slog.Logger
	metrics  *telemetry.Metrics

	mu      sync.Mutex
	onWrite []func()
}

// NewSyncEngine creates a sync engine. progress, logger and metrics may be nil.
func NewSyncEngine(
	cfg SyncConfig,
	manager *CollectionManager,
	embedder port.Embedder,
	notes port.NoteStore,
	progress ProgressFunc,
	logger *slog.Logger,
	metrics *telemetry.Metrics,
) *SyncEngine {
	if cfg.PreviewLength <= 0 {
		cfg.PreviewLength = 500
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 10
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncEngine{
		cfg:      cfg,
		manager:  manager,
		embedder: embedder,
		notes:    notes,
		progress: progress,
		logger:   logger,
		metrics:  metrics,
	}
}

// OnWrite registers fn to run after a pass that changed the store.
func (e *SyncEngine) OnWrite(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onWrite = append(e.onWrite, fn)
}

// SetProgress replaces the progress callback.
func (e *SyncEngine) SetProgress(fn ProgressFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progress = fn
}

// NeedsUpdate reports whether note's stored vector is stale. A missing
// record, a record without mtime and a failed lookup all count as stale.
func (e *SyncEngine) NeedsUpdate(ctx context.Context, note domain.Note) bool {
	store, collection := e.manager.Target()

	rec, found, err := store.Get(ctx, collection, note.Key)
	if err != nil {
		e.logger.Debug("staleness check failed, treating as stale", "key", note.Key, "error", err)
		return true
	}
	if !found || !rec.HasModTime {
		return true
	}

	if e.cfg.InclusiveModTime {
		return note.ModMillis() >= rec.ModTime
	}
	return note.ModMillis() > rec.ModTime
}

// VectorizeNote embeds note.Content and writes its record, replacing any
// previous record for the key.
func (e *SyncEngine) VectorizeNote(ctx context.Context, note domain.Note) error {
	store, collection := e.manager.Target()

	vec, err := e.embedder.Embed(ctx, note.Content)
	if err != nil {
		return err
	}

	path := note.Path
	if path == "" {
		path = note.Key
	}
	rec := domain.VectorRecord{
		Key:        note.Key,
		Path:       path,
		Vector:     vec,
		Preview:    domain.Preview(note.Content, e.cfg.PreviewLength),
		ModTime:    note.ModMillis(),
		HasModTime: true,
	}

	if !store.NativeUpsert() {
		// Deleting a missing key succeeds, so first inserts take this path too.
		if err := store.Delete(ctx, collection, note.Key); err != nil {
			return fmt.Errorf("failed to remove previous record: %w", err)
		}
	}
	if err := store.Upsert(ctx, collection, rec); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Refresh re-embeds only the stale notes.
func (e *SyncEngine) Refresh(ctx context.Context) (domain.SyncReport, error) {
	return e.runAll(ctx, domain.SyncRefresh, false)
}

// RecomputeAll re-embeds every note regardless of staleness. Confirmation is
// the caller's responsibility.
func (e *SyncEngine) RecomputeAll(ctx context.Context) (domain.SyncReport, error) {
	return e.runAll(ctx, domain.SyncRecompute, true)
}

// SyncKeys refreshes the given notes. Notes that no longer exist have their
// records removed.
func (e *SyncEngine) SyncKeys(ctx context.Context, keys []string) (domain.SyncReport, error) {
	seen := make(map[string]bool, len(keys))
	notes := make([]domain.Note, 0, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		notes = append(notes, domain.Note{Key: k})
	}
	return e.run(ctx, domain.SyncKeys, notes, false)
}

// Stale lists the notes a refresh would re-embed.
func (e *SyncEngine) Stale(ctx context.Context) ([]domain.Note, int, error) {
	if err := e.manager.EnsureReady(ctx); err != nil {
		return nil, 0, err
	}
	notes, err := e.notes.ListNotes(ctx)
	if err != nil {
		return nil, 0, err
	}
	var stale []domain.Note
	for _, n := range notes {
		if e.NeedsUpdate(ctx, n) {
			stale = append(stale, n)
		}
	}
	return stale, len(notes), nil
}

func (e *SyncEngine) runAll(ctx context.Context, mode domain.SyncMode, force bool) (domain.SyncReport, error) {
	if err := e.manager.EnsureReady(ctx); err != nil {
		return domain.SyncReport{Mode: mode}, err
	}
	notes, err := e.notes.ListNotes(ctx)
	if err != nil {
		return domain.SyncReport{Mode: mode}, fmt.Errorf("failed to list notes: %w", err)
	}
	return e.run(ctx, mode, notes, force)
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeRemoved
	outcomeFailed
)

// run processes notes and tallies the outcome. Readiness failure aborts the
// pass before any note is touched; per-note failures never do.
func (e *SyncEngine) run(ctx context.Context, mode domain.SyncMode, notes []domain.Note, force bool) (domain.SyncReport, error) {
	start := time.Now()
	report := domain.SyncReport{Mode: mode, Total: len(notes)}

	if err := e.manager.EnsureReady(ctx); err != nil {
		return report, err
	}

	e.mu.Lock()
	progress := e.progress
	e.mu.Unlock()

	var (
		mu   sync.Mutex
		done int
	)
	record := func(note domain.Note, out outcome, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch out {
		case outcomeProcessed:
			report.Processed++
		case outcomeSkipped:
			report.Skipped++
		case outcomeRemoved:
			report.Removed++
		case outcomeFailed:
			report.Failed++
			report.Errors = append(report.Errors, domain.NoteError{Key: note.Key, Err: err})
			e.logger.Warn("note sync failed", "key", note.Key, "error", err)
		}
		done++
		if progress != nil && (done%e.cfg.ProgressEvery == 0 || done == len(notes)) {
			progress(done, len(notes))
		}
	}

	var runErr error
	if e.cfg.Workers <= 1 || len(notes) <= 1 {
		for _, note := range notes {
			if err := ctx.Err(); err != nil {
				runErr = err
				break
			}
			out, err := e.syncOne(ctx, mode, note, force)
			record(note, out, err)
		}
	} else {
		runErr = e.fanOut(ctx, mode, notes, force, record)
	}

	report.Duration = time.Since(start)
	e.finish(ctx, report)
	return report, runErr
}

// fanOut spreads notes over a bounded set of workers.
func (e *SyncEngine) fanOut(ctx context.Context, mode domain.SyncMode, notes []domain.Note, force bool, record func(domain.Note, outcome, error)) error {
	workers := e.cfg.Workers
	if workers > len(notes) {
		workers = len(notes)
	}

	jobs := make(chan domain.Note)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for note := range jobs {
				out, err := e.syncOne(ctx, mode, note, force)
				record(note, out, err)
			}
		}()
	}

	var err error
feed:
	for _, note := range notes {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case jobs <- note:
		}
	}
	close(jobs)
	wg.Wait()
	return err
}

func (e *SyncEngine) syncOne(ctx context.Context, mode domain.SyncMode, note domain.Note, force bool) (outcome, error) {
	if mode != domain.SyncKeys && !force && !e.NeedsUpdate(ctx, note) {
		return outcomeSkipped, nil
	}

	full, err := e.notes.ReadNote(ctx, note.Key)
	if err != nil {
		if mode == domain.SyncKeys && domain.IsKind(err, domain.KindNotFound) {
			store, collection := e.manager.Target()
			if err := store.Delete(ctx, collection, note.Key); err != nil {
				return outcomeFailed, fmt.Errorf("failed to remove record: %w", err)
			}
			return outcomeRemoved, nil
		}
		return outcomeFailed, err
	}

	if mode == domain.SyncKeys && !force && !e.NeedsUpdate(ctx, full) {
		return outcomeSkipped, nil
	}

	if err := e.VectorizeNote(ctx, full); err != nil {
		return outcomeFailed, err
	}
	return outcomeProcessed, nil
}

func (e *SyncEngine) finish(ctx context.Context, report domain.SyncReport) {
	e.metrics.RecordSync(ctx, string(report.Mode), report.Processed, report.Skipped, report.Failed)
	e.logger.Info("sync finished",
		"mode", report.Mode,
		"total", report.Total,
		"processed", report.Processed,
		"skipped", report.Skipped,
		"removed", report.Removed,
		"failed", report.Failed,
		"duration", report.Duration,
	)

	if report.Processed == 0 && report.Removed == 0 {
		return
	}
	e.mu.Lock()
	hooks := append([]func(){}, e.onWrite...)
	e.mu.Unlock()
	runHooks(hooks)
}
