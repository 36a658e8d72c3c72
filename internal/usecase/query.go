package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"notesim/internal/adapter/cache"
	"notesim/internal/domain"
	"notesim/internal/port"
	"notesim/internal/telemetry"
)

// QueryEngine turns a note or free text into a ranked list of similar notes.
type QueryEngine struct {
	manager  *CollectionManager
	embedder port.Embedder
	cache    *cache.QueryCache
	logger   *slog.Logger
	metrics  *telemetry.Metrics
}

// NewQueryEngine creates a query engine. cache, logger and metrics may be nil.
func NewQueryEngine(manager *CollectionManager, embedder port.Embedder, qc *cache.QueryCache, logger *slog.Logger, metrics *telemetry.Metrics) *QueryEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryEngine{
		manager:  manager,
		embedder: embedder,
		cache:    qc,
		logger:   logger,
		metrics:  metrics,
	}
}

// Search returns at most limit results nearest to vec, never including
// excludeKey. Results are ordered by descending similarity.
func (q *QueryEngine) Search(ctx context.Context, vec []float32, limit int, excludeKey string) ([]domain.SimilarityResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	if err := q.manager.EnsureReady(ctx); err != nil {
		return nil, err
	}

	topK := limit
	if excludeKey != "" {
		topK++
	}

	store, collection := q.manager.Target()
	candidates, err := store.Search(ctx, collection, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]domain.SimilarityResult, 0, limit)
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if len(results) == limit {
			break
		}
		if c.Key == "" || c.Key == excludeKey || seen[c.Key] {
			continue
		}
		seen[c.Key] = true

		path := c.Path
		if path == "" {
			path = c.Key
		}
		results = append(results, domain.SimilarityResult{
			Key:     c.Key,
			Path:    path,
			Score:   c.Similarity(),
			Preview: c.Preview,
		})
	}
	return results, nil
}

// SimilarTo finds notes similar to note, excluding the note itself.
func (q *QueryEngine) SimilarTo(ctx context.Context, note domain.Note, limit int) ([]domain.SimilarityResult, error) {
	if strings.TrimSpace(note.Key) == "" {
		return nil, domain.ValidationError("find similar", "no active note")
	}
	q.metrics.RecordQuery(ctx, "similar", false)

	if err := q.manager.EnsureReady(ctx); err != nil {
		return nil, err
	}
	vec, err := q.embedder.Embed(ctx, note.Content)
	if err != nil {
		return nil, err
	}
	return q.Search(ctx, vec, limit, note.Key)
}

// QueryText finds notes similar to free text. Blank text is rejected before
// any embedding or store call.
func (q *QueryEngine) QueryText(ctx context.Context, text string, limit int) ([]domain.SimilarityResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.ValidationError("query", "query text is empty")
	}

	if q.cache != nil {
		if results, hit := q.cache.Get(text, limit); hit {
			q.metrics.RecordQuery(ctx, "text", true)
			q.logger.Debug("query cache hit", "query", text, "limit", limit)
			return results, nil
		}
	}
	q.metrics.RecordQuery(ctx, "text", false)

	if err := q.manager.EnsureReady(ctx); err != nil {
		return nil, err
	}
	vec, err := q.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	results, err := q.Search(ctx, vec, limit, "")
	if err != nil {
		return nil, err
	}

	if q.cache != nil {
		q.cache.Put(text, limit, results)
	}
	return results, nil
}
