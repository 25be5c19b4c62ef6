package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/arialabs/aria/internal/llm"
	"github.com/arialabs/aria/internal/storage"
	"github.com/arialabs/aria/internal/storage/memory"
	"github.com/arialabs/aria/pkg/types"
)

// fakeEmbedder maps known texts to fixed vectors so retrieval behavior is
// fully controlled by the test.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return []float32{0, 0, 1}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) GetModel() string { return "fake-embedder" }

// fakeGenerator records what the pipeline handed it and returns a canned
// response.
type fakeGenerator struct {
	response string
	err      error
	lastIn   GenerationInput
	calls    int
}

func (f *fakeGenerator) Generate(ctx context.Context, input GenerationInput) (string, error) {
	f.calls++
	f.lastIn = input
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

// failingStore fails every write while delegating reads to a real store.
type failingStore struct {
	storage.VectorStore
}

func (f *failingStore) Upsert(ctx context.Context, userID string, vector []float32, text, memoryType string) (string, error) {
	return "", fmt.Errorf("%w: disk on fire", storage.ErrUnavailable)
}

// fakeAppender records conversation turns.
type fakeAppender struct {
	err   error
	calls int
	id    string
}

func (f *fakeAppender) AppendTurn(ctx context.Context, conversationID, authToken, userMessage, aiResponse string) error {
	f.calls++
	f.id = conversationID
	return f.err
}

func newTestEngine(t *testing.T, embedder llm.EmbeddingGenerator, store storage.VectorStore, gen Generator, conv ConversationAppender) *Engine {
	t.Helper()
	engine, err := NewEngine(embedder, store, gen, conv, Config{})
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}
	return engine
}

func TestRespondRecallsPersistedMemory(t *testing.T) {
	ctx := context.Background()

	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"my favorite color is blue":                {1, 0, 0},
		"User said: my favorite color is blue":     {1, 0, 0},
		"Aria responded: Blue is a lovely choice!": {0, 1, 0},
		"what's my favorite color?":                {0.98, 0.05, 0},
		"User said: what's my favorite color?":     {0.97, 0.06, 0},
		"Aria responded: You told me it was blue.": {0, 0.9, 0},
	}}
	store := memory.NewMemoryStore(storage.Options{DuplicateThreshold: 0.9999})
	gen := &fakeGenerator{response: "Blue is a lovely choice!"}
	engine := newTestEngine(t, embedder, store, gen, nil)

	// Turn 1: the fact is stated and persisted.
	resp, err := engine.Respond(ctx, types.ChatRequest{UserID: "user-1", Message: "my favorite color is blue"})
	if err != nil {
		t.Fatalf("turn 1 Respond() failed: %v", err)
	}
	if resp.Degraded {
		t.Fatal("turn 1 unexpectedly degraded")
	}

	stats, _ := store.Stats(ctx, "user-1")
	if stats.TotalRecords != 2 {
		t.Fatalf("after turn 1: got %d records, want 2 (user message + ai response)", stats.TotalRecords)
	}
	if stats.ByType[types.MemoryTypeUserMessage] != 1 || stats.ByType[types.MemoryTypeAIResponse] != 1 {
		t.Errorf("type breakdown wrong: %+v", stats.ByType)
	}

	// Turn 2: the fact must come back as retrieval context.
	gen.response = "You told me it was blue."
	if _, err := engine.Respond(ctx, types.ChatRequest{UserID: "user-1", Message: "what's my favorite color?"}); err != nil {
		t.Fatalf("turn 2 Respond() failed: %v", err)
	}
	if !strings.Contains(gen.lastIn.Context, "User said: my favorite color is blue") {
		t.Errorf("retrieved context missing the stored fact:\n%s", gen.lastIn.Context)
	}
	if len(gen.lastIn.Hits) == 0 {
		t.Error("generator received no memory hits")
	}
	if gen.lastIn.Message != "what's my favorite color?" {
		t.Errorf("generator received wrong message: %q", gen.lastIn.Message)
	}
}

func TestRespondFirstTurnHasPlaceholderContext(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := memory.NewMemoryStore(storage.Options{})
	gen := &fakeGenerator{response: "Hi! Nice to meet you."}
	engine := newTestEngine(t, embedder, store, gen, nil)

	if _, err := engine.Respond(context.Background(), types.ChatRequest{UserID: "new-user", Message: "hello"}); err != nil {
		t.Fatalf("Respond() failed: %v", err)
	}
	if gen.lastIn.Context != NoHistoryPlaceholder {
		t.Errorf("first-turn context: got %q, want placeholder", gen.lastIn.Context)
	}
}

func TestRespondInvalidRequest(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := memory.NewMemoryStore(storage.Options{})
	gen := &fakeGenerator{response: "never"}
	engine := newTestEngine(t, embedder, store, gen, nil)

	cases := []types.ChatRequest{
		{UserID: "", Message: "hi"},
		{UserID: "user-1", Message: ""},
		{UserID: "user-1", Message: "   "},
	}
	for _, req := range cases {
		_, err := engine.Respond(context.Background(), req)
		if !errors.Is(err, llm.ErrInvalidInput) {
			t.Errorf("Respond(%+v): got %v, want ErrInvalidInput", req, err)
		}
	}
	if embedder.calls != 0 {
		t.Errorf("invalid requests reached the embedder %d times", embedder.calls)
	}
	if gen.calls != 0 {
		t.Errorf("invalid requests reached the generator %d times", gen.calls)
	}
}

func TestRespondEmbedFailureIsFatal(t *testing.T) {
	embedder := &fakeEmbedder{err: fmt.Errorf("%w: embedder down", llm.ErrProviderUnavailable)}
	store := memory.NewMemoryStore(storage.Options{})
	gen := &fakeGenerator{response: "never"}
	engine := newTestEngine(t, embedder, store, gen, nil)

	_, err := engine.Respond(context.Background(), types.ChatRequest{UserID: "user-1", Message: "hi"})
	if !errors.Is(err, llm.ErrProviderUnavailable) {
		t.Errorf("got %v, want ErrProviderUnavailable", err)
	}
	if gen.calls != 0 {
		t.Error("generation ran despite embed failure")
	}
}

func TestRespondGenerateFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{}
	store := memory.NewMemoryStore(storage.Options{})
	gen := &fakeGenerator{err: fmt.Errorf("%w: model crashed", llm.ErrUpstream)}
	engine := newTestEngine(t, embedder, store, gen, nil)

	_, err := engine.Respond(ctx, types.ChatRequest{UserID: "user-1", Message: "hi"})
	if err == nil {
		t.Fatal("Respond() succeeded despite generation failure")
	}
	if !errors.Is(err, llm.ErrProviderUnavailable) {
		t.Errorf("got %v, want error wrapping ErrProviderUnavailable", err)
	}

	// A failed turn must leave no trace in the store.
	stats, _ := store.Stats(ctx, "user-1")
	if stats.TotalRecords != 0 {
		t.Errorf("failed turn persisted %d records, want 0", stats.TotalRecords)
	}
}

func TestRespondPersistFailureDegrades(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := &failingStore{memory.NewMemoryStore(storage.Options{})}
	gen := &fakeGenerator{response: "still answered"}
	engine := newTestEngine(t, embedder, store, gen, nil)

	resp, err := engine.Respond(context.Background(), types.ChatRequest{UserID: "user-1", Message: "hi"})
	if err != nil {
		t.Fatalf("Respond() failed despite non-strict persistence: %v", err)
	}
	if resp.Response != "still answered" {
		t.Errorf("response changed: got %q", resp.Response)
	}
	if !resp.Degraded {
		t.Error("Degraded flag not set after persist failure")
	}
}

func TestRespondStrictPersistenceFails(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := &failingStore{memory.NewMemoryStore(storage.Options{})}
	gen := &fakeGenerator{response: "answered"}

	engine, err := NewEngine(embedder, store, gen, nil, Config{StrictPersistence: true})
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}

	_, err = engine.Respond(context.Background(), types.ChatRequest{UserID: "user-1", Message: "hi"})
	if err == nil {
		t.Fatal("strict persistence should turn a write failure into an error")
	}
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("got %v, want error wrapping storage.ErrUnavailable", err)
	}
}

func TestRespondConversationIDHandling(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := memory.NewMemoryStore(storage.Options{})
	gen := &fakeGenerator{response: "ok"}
	engine := newTestEngine(t, embedder, store, gen, nil)
	ctx := context.Background()

	resp, err := engine.Respond(ctx, types.ChatRequest{UserID: "user-1", Message: "hi", ConversationID: "conv-42"})
	if err != nil {
		t.Fatalf("Respond() failed: %v", err)
	}
	if resp.ConversationID != "conv-42" {
		t.Errorf("provided conversation ID not preserved: got %q", resp.ConversationID)
	}

	resp, err = engine.Respond(ctx, types.ChatRequest{UserID: "user-1", Message: "hi again"})
	if err != nil {
		t.Fatalf("Respond() failed: %v", err)
	}
	if resp.ConversationID == "" {
		t.Error("no conversation ID generated for a fresh conversation")
	}
}

func TestRespondAppenderFailureDoesNotBlock(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := memory.NewMemoryStore(storage.Options{})
	gen := &fakeGenerator{response: "ok"}
	appender := &fakeAppender{err: errors.New("history service down")}
	engine := newTestEngine(t, embedder, store, gen, appender)

	resp, err := engine.Respond(context.Background(), types.ChatRequest{UserID: "user-1", Message: "hi", ConversationID: "conv-7"})
	if err != nil {
		t.Fatalf("Respond() failed: %v", err)
	}
	if resp.Degraded {
		t.Error("appender failure must not mark the response degraded")
	}
	if appender.calls != 1 {
		t.Errorf("appender called %d times, want 1", appender.calls)
	}
	if appender.id != "conv-7" {
		t.Errorf("appender got conversation ID %q, want conv-7", appender.id)
	}
}

func TestMemoryStatsValidation(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := memory.NewMemoryStore(storage.Options{})
	gen := &fakeGenerator{response: "ok"}
	engine := newTestEngine(t, embedder, store, gen, nil)

	if _, err := engine.MemoryStats(context.Background(), "  "); !errors.Is(err, llm.ErrInvalidInput) {
		t.Errorf("MemoryStats with blank user: got %v, want ErrInvalidInput", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero config should validate: %v", err)
	}
	if cfg.TopK != 5 {
		t.Errorf("default TopK: got %d, want 5", cfg.TopK)
	}
	if cfg.MaxContextMemories != DefaultMaxContextMemories {
		t.Errorf("default MaxContextMemories: got %d, want %d", cfg.MaxContextMemories, DefaultMaxContextMemories)
	}

	bad := Config{TopK: -1}
	if err := bad.Validate(); err == nil {
		t.Error("negative TopK should fail validation")
	}
}
