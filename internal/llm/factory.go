package llm

import (
	"fmt"
	"time"
)

// ProviderConfig is the provider selection handed to the factory functions.
// The caller (cmd wiring) maps application config onto it.
type ProviderConfig struct {
	// Provider is "ollama" or "openrouter". Empty defaults to ollama.
	Provider string

	// BaseURL overrides the provider's default endpoint.
	BaseURL string

	// APIKey is required for openrouter.
	APIKey string

	// Model is the completion model name.
	Model string

	// EmbeddingModel is the embedding model name.
	EmbeddingModel string

	// Timeout bounds every provider call (default 30s).
	Timeout time.Duration

	// Referer and Title are OpenRouter attribution headers.
	Referer string
	Title   string
}

// NewTextGenerator creates the appropriate TextGenerator for the config.
func NewTextGenerator(cfg ProviderConfig) (TextGenerator, error) {
	switch cfg.Provider {
	case "openrouter":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openrouter: API key is required")
		}
		return NewOpenRouterClient(OpenRouterConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Referer: cfg.Referer,
			Title:   cfg.Title,
			Timeout: cfg.Timeout,
		}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewEmbeddingGenerator creates the appropriate EmbeddingGenerator for the
// config, using EmbeddingModel instead of the completion model.
func NewEmbeddingGenerator(cfg ProviderConfig) (EmbeddingGenerator, error) {
	switch cfg.Provider {
	case "openrouter":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openrouter: API key is required")
		}
		model := cfg.EmbeddingModel
		if model == "" {
			model = "text-embedding-3-small"
		}
		return NewOpenRouterClient(OpenRouterConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   model,
			Referer: cfg.Referer,
			Title:   cfg.Title,
			Timeout: cfg.Timeout,
		}), nil
	case "ollama", "":
		model := cfg.EmbeddingModel
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllamaClient(OllamaConfig{
			BaseURL: cfg.BaseURL,
			Model:   model,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Provider)
	}
}
