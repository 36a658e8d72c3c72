package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"notesim/internal/domain"
)

// OllamaEmbedder calls Ollama's native /api/embeddings endpoint.
type OllamaEmbedder struct {
	baseURL   string
	model     string
	dimension int
	client    *http.Client
}

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the embedding model to use (default: nomic-embed-text).
	Model string

	// Dimension overrides the known dimension of Model.
	Dimension int

	// Timeout is the HTTP request timeout (default: 60s).
	Timeout time.Duration
}

// modelDimensions maps known models to their embedding dimensions.
var modelDimensions = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"bge-m3":                 1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// KnownDimension returns the output size of a well-known model, or 0.
func KnownDimension(model string) int {
	return modelDimensions[strings.SplitN(model, ":", 2)[0]]
}

// NewOllamaEmbedder creates a new Ollama embedder.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = KnownDimension(cfg.Model)
	}
	if dimension <= 0 {
		dimension = 768
	}

	return &OllamaEmbedder{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		dimension: dimension,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

// Embed generates an embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	const op = "ollama embed"

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, domain.ConfigurationError(op, "invalid embedding service address "+e.baseURL, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, domain.ConnectivityError(op, "embedding service unreachable at "+e.baseURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.ConnectivityError(op, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, domain.EmbeddingError(op, fmt.Sprintf("ollama returned status %d for model %s: %s",
			resp.StatusCode, e.model, truncate(string(respBody), 200)), nil)
	}

	var embedResp ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &embedResp); err != nil {
		return nil, domain.EmbeddingError(op, "malformed response: "+truncate(string(respBody), 200), err)
	}
	if embedResp.Error != "" {
		return nil, domain.EmbeddingError(op, embedResp.Error, nil)
	}

	vec := make([]float32, len(embedResp.Embedding))
	for i, v := range embedResp.Embedding {
		vec[i] = float32(v)
	}
	return checkVector(op, vec, e.dimension)
}

func (e *OllamaEmbedder) Dimension() int {
	return e.dimension
}

func (e *OllamaEmbedder) ModelName() string {
	return e.model
}

// checkVector rejects empty vectors and vectors of the wrong size.
func checkVector(op string, vec []float32, dimension int) ([]float32, error) {
	if len(vec) == 0 {
		return nil, domain.EmbeddingError(op, "embedding service returned an empty vector", nil)
	}
	if dimension > 0 && len(vec) != dimension {
		return nil, domain.ConfigurationError(op,
			fmt.Sprintf("model produced %d-dimensional vectors, collection expects %d", len(vec), dimension), nil)
	}
	return vec, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
