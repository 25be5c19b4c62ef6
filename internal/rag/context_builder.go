// Package rag implements the retrieve→augment→generate→store pipeline that
// turns a user message plus stored memories into a personalized response.
package rag

import (
	"fmt"
	"strings"

	"github.com/arialabs/aria/pkg/types"
)

// NoHistoryPlaceholder is emitted when a user has no retrievable memories, so
// the generation prompt is always well-formed instead of carrying an empty
// block.
const NoHistoryPlaceholder = "No previous conversation history found."

// DefaultMaxContextMemories bounds how many retrieved memories make it into
// the prompt context.
const DefaultMaxContextMemories = 4

// ContextBuilder formats ranked memory hits into a bounded context block.
// Build is pure: it cannot fail and never re-sorts its input.
type ContextBuilder struct {
	maxMemories int
}

// NewContextBuilder creates a builder that keeps at most maxMemories entries.
// Values below 1 fall back to DefaultMaxContextMemories.
func NewContextBuilder(maxMemories int) *ContextBuilder {
	if maxMemories < 1 {
		maxMemories = DefaultMaxContextMemories
	}
	return &ContextBuilder{maxMemories: maxMemories}
}

// Build renders the highest-scoring hits into a context block. Entries keep
// the input ranking (best first); each carries its text, a fixed-precision
// relevance score, and its type tag.
func (b *ContextBuilder) Build(hits []types.MemoryHit) string {
	if len(hits) == 0 {
		return NoHistoryPlaceholder
	}

	if len(hits) > b.maxMemories {
		hits = hits[:b.maxMemories]
	}

	parts := make([]string, 0, len(hits))
	for i, hit := range hits {
		entry := fmt.Sprintf("Memory %d (relevance: %.2f, type: %s):\n%s",
			i+1, hit.Score, hit.Record.Type, hit.Record.Text)
		if !hit.Record.Timestamp.IsZero() {
			entry += fmt.Sprintf("\n(Timestamp: %s)", hit.Record.Timestamp.UTC().Format("2006-01-02T15:04:05Z"))
		}
		parts = append(parts, entry)
	}
	return strings.Join(parts, "\n\n")
}
