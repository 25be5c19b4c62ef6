package rag

import (
	"strings"
	"testing"
	"time"

	"github.com/arialabs/aria/pkg/types"
)

func hit(text, memType string, score float64) types.MemoryHit {
	return types.MemoryHit{
		Record: types.MemoryRecord{Text: text, Type: memType},
		Score:  score,
	}
}

func TestBuildEmptyHitsYieldsPlaceholder(t *testing.T) {
	b := NewContextBuilder(4)
	if got := b.Build(nil); got != NoHistoryPlaceholder {
		t.Errorf("Build(nil) = %q, want placeholder", got)
	}
	if got := b.Build([]types.MemoryHit{}); got != NoHistoryPlaceholder {
		t.Errorf("Build(empty) = %q, want placeholder", got)
	}
}

func TestBuildFormatsEntries(t *testing.T) {
	b := NewContextBuilder(4)
	out := b.Build([]types.MemoryHit{
		hit("User said: I love hiking", types.MemoryTypeUserMessage, 0.874),
	})

	want := "Memory 1 (relevance: 0.87, type: user_message):\nUser said: I love hiking"
	if out != want {
		t.Errorf("Build() = %q, want %q", out, want)
	}
}

func TestBuildIncludesTimestampWhenPresent(t *testing.T) {
	b := NewContextBuilder(4)
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	h := hit("User said: pi day", types.MemoryTypeUserMessage, 1)
	h.Record.Timestamp = ts

	out := b.Build([]types.MemoryHit{h})
	if !strings.Contains(out, "(Timestamp: 2025-03-14T09:26:53Z)") {
		t.Errorf("missing timestamp line in %q", out)
	}
}

func TestBuildPreservesInputOrder(t *testing.T) {
	b := NewContextBuilder(4)
	out := b.Build([]types.MemoryHit{
		hit("first", types.MemoryTypeGeneral, 0.9),
		hit("second", types.MemoryTypeGeneral, 0.8),
		hit("third", types.MemoryTypeGeneral, 0.7),
	})

	iFirst := strings.Index(out, "first")
	iSecond := strings.Index(out, "second")
	iThird := strings.Index(out, "third")
	if !(iFirst < iSecond && iSecond < iThird) {
		t.Errorf("entries out of order in %q", out)
	}
	if !strings.HasPrefix(out, "Memory 1 ") {
		t.Errorf("entries not renumbered from 1: %q", out)
	}
	if !strings.Contains(out, "Memory 3 ") {
		t.Errorf("third entry missing its index: %q", out)
	}
}

func TestBuildCapsEntries(t *testing.T) {
	b := NewContextBuilder(2)
	out := b.Build([]types.MemoryHit{
		hit("keep one", types.MemoryTypeGeneral, 0.9),
		hit("keep two", types.MemoryTypeGeneral, 0.8),
		hit("dropped", types.MemoryTypeGeneral, 0.7),
	})

	if strings.Contains(out, "dropped") {
		t.Errorf("entry past the cap leaked into context: %q", out)
	}
	if !strings.Contains(out, "keep one") || !strings.Contains(out, "keep two") {
		t.Errorf("capped context missing kept entries: %q", out)
	}
}

func TestNewContextBuilderDefaults(t *testing.T) {
	b := NewContextBuilder(0)
	hits := make([]types.MemoryHit, DefaultMaxContextMemories+2)
	for i := range hits {
		hits[i] = hit("entry", types.MemoryTypeGeneral, 0.5)
	}
	out := b.Build(hits)
	if strings.Count(out, "Memory ") != DefaultMaxContextMemories {
		t.Errorf("default cap not applied: %d entries", strings.Count(out, "Memory "))
	}
}

func TestBuildPromptContainsSections(t *testing.T) {
	prompt := BuildPrompt("some context", "what's my favorite color?")

	for _, section := range []string{
		SystemPrompt,
		"=== RETRIEVED CONVERSATION HISTORY ===",
		"some context",
		"=== CURRENT USER MESSAGE ===",
		"what's my favorite color?",
		"=== INSTRUCTIONS ===",
	} {
		if !strings.Contains(prompt, section) {
			t.Errorf("prompt missing section %q", section)
		}
	}
}
