package llm

import "context"

// TextGenerator is the interface for LLM text completion. The pipeline builds
// the full prompt; generators know nothing about memories.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
// Empty or whitespace-only input yields ErrInvalidInput; transport failures
// yield an error matching ErrProviderUnavailable. EmbedBatch preserves input
// order and is used to embed both halves of a chat turn in one round-trip.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	GetModel() string
}
