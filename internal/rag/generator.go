package rag

import (
	"context"

	"github.com/arialabs/aria/internal/llm"
	"github.com/arialabs/aria/pkg/types"
)

// GenerationInput carries everything a generation strategy may want: the raw
// user message, the ranked memory hits, and the prebuilt context block. A
// strategy can use the prebaked context or build its own prompt from the
// hits.
type GenerationInput struct {
	UserID  string
	Message string
	Context string
	Hits    []types.MemoryHit
}

// Generator produces the response text for one chat turn. It receives both
// the raw message and the ranked memory list, never just a flattened prompt.
type Generator interface {
	Generate(ctx context.Context, input GenerationInput) (string, error)
}

// CompletionGenerator is the default Generator: it renders the standard
// prompt template and delegates to a single-string completion provider.
type CompletionGenerator struct {
	llm llm.TextGenerator
}

// NewCompletionGenerator wraps a text completion provider.
func NewCompletionGenerator(textGen llm.TextGenerator) *CompletionGenerator {
	return &CompletionGenerator{llm: textGen}
}

// Generate renders the augmented prompt and runs the completion.
func (g *CompletionGenerator) Generate(ctx context.Context, input GenerationInput) (string, error) {
	return g.llm.Complete(ctx, BuildPrompt(input.Context, input.Message))
}

var _ Generator = (*CompletionGenerator)(nil)
