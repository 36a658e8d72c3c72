package embedding

import (
	"fmt"

	"notesim/config"
	"notesim/internal/domain"
	"notesim/internal/port"
)

// New builds the embedder selected by cfg.Provider.
func New(cfg config.EmbeddingConfig) (port.Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaEmbedder(OllamaConfig{
			BaseURL:   cfg.Address,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		}), nil
	case "openai":
		baseURL := cfg.Address
		if baseURL == config.DefaultEmbeddingAddress {
			baseURL = ""
		}
		return NewOpenAICompatibleEmbedder(cfg.APIKeyEnv, cfg.Model, baseURL, cfg.Dimension, cfg.Timeout)
	case "mock":
		return NewMockEmbedder(cfg.Dimension), nil
	default:
		return nil, domain.ConfigurationError("embedder", fmt.Sprintf("unsupported embedding provider: %s", cfg.Provider), nil)
	}
}
