package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"notesim/config"
	"notesim/internal/adapter/embedding"
	"notesim/internal/adapter/store"
	"notesim/internal/domain"
	"notesim/internal/usecase"
)

func main() {
	vaultPath := flag.String("vault", ".", "Path to the vault")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 10, "Number of results")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run cmd/benchmark/main.go -vault ./notes -q \"query\"")
		fmt.Println("\nTests:")
		fmt.Println("  1. Embedding infrastructure (model connection, vector store)")
		fmt.Println("  2. Semantic similarity (query vs results)")
		fmt.Println("  3. Latency of embed and search")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*vaultPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedder init failed: %v\n", err)
		os.Exit(1)
	}
	st, err := store.New(cfg, *vaultPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()
	manager := usecase.NewCollectionManager(st, domain.DefaultSchema(cfg.Store.Collection, embedder.Dimension()), nil)
	if err := manager.EnsureReady(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Store not ready: %v\n", err)
		os.Exit(1)
	}
	info, err := st.Describe(ctx, cfg.Store.Collection)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Describe failed: %v\n", err)
		os.Exit(1)
	}
	if info.Count == 0 {
		fmt.Fprintln(os.Stderr, "No embeddings - run 'notesim refresh' first")
		os.Exit(1)
	}

	fmt.Println("SIMILARITY BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Backend: %s, collection %s\n", st.Name(), info.Name)
	fmt.Printf("Notes indexed: %d\n", info.Count)
	fmt.Printf("Model: %s (%s)\n", embedder.ModelName(), cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d\n", embedder.Dimension())
	fmt.Println()

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	start := time.Now()
	queryVec, err := embedder.Embed(ctx, *query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedding error: %v\n", err)
		os.Exit(1)
	}
	embedTime := time.Since(start)

	engine := usecase.NewQueryEngine(manager, embedder, nil, nil, nil)
	start = time.Now()
	results, err := engine.Search(ctx, queryVec, *topK, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
		os.Exit(1)
	}
	searchTime := time.Since(start)

	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}
	fmt.Printf("Top %d matches:\n\n", len(results))

	totalScore := 0.0
	for i, r := range results {
		preview := r.Preview
		if len(preview) > 150 {
			preview = preview[:150] + "..."
		}
		totalScore += r.Score

		rating := "LOW"
		if r.Score > 0.7 {
			rating = "HIGH"
		} else if r.Score > 0.5 {
			rating = "GOOD"
		} else if r.Score > 0.3 {
			rating = "OK"
		}

		fmt.Printf("%d. [%s %s] %s\n", i+1, rating, r.Percent(), r.Path)
		fmt.Printf("   %s\n\n", preview)
	}

	avgScore := totalScore / float64(len(results))
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Average similarity: %.3f\n", avgScore)
	fmt.Printf("  Top-1 similarity:   %.3f\n", results[0].Score)
	fmt.Printf("  Embed latency:      %s\n", embedTime.Round(time.Millisecond))
	fmt.Printf("  Search latency:     %s\n", searchTime.Round(time.Millisecond))

	if avgScore > 0.5 {
		fmt.Println("  Status: GOOD - similarity search working well")
	} else if avgScore > 0.3 {
		fmt.Println("  Status: OK - results are somewhat related")
	} else {
		fmt.Println("  Status: POOR - try another model or run 'notesim recompute'")
	}
}
