package rag

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/arialabs/aria/internal/llm"
	"github.com/arialabs/aria/internal/storage"
	"github.com/arialabs/aria/pkg/types"
)

// Config holds the pipeline tunables.
type Config struct {
	// TopK is how many memories to retrieve per turn (default 5).
	TopK int

	// MaxContextMemories bounds the context block (default 4).
	MaxContextMemories int

	// StrictPersistence turns write-back failures into request failures.
	// Off by default: a storage outage degrades memory continuity, never
	// availability.
	StrictPersistence bool
}

// Validate applies defaults and rejects unusable values.
func (c *Config) Validate() error {
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.TopK < 0 {
		return fmt.Errorf("top_k must be positive")
	}
	if c.MaxContextMemories == 0 {
		c.MaxContextMemories = DefaultMaxContextMemories
	}
	if c.MaxContextMemories < 0 {
		return fmt.Errorf("max context memories must be positive")
	}
	return nil
}

// ConversationAppender is the optional conversation-persistence collaborator.
// Failures from it never block a response.
type ConversationAppender interface {
	AppendTurn(ctx context.Context, conversationID, authToken, userMessage, aiResponse string) error
}

// Engine sequences the pipeline: embed the user message, retrieve the user's
// nearest memories, build a bounded context, generate a response, and persist
// both halves of the turn back into the memory store with dedup.
//
// Stage failure policy: embed, retrieve and generate are fatal; persist
// degrades to a logged warning (unless StrictPersistence) and the response is
// returned unchanged.
type Engine struct {
	embedder      llm.EmbeddingGenerator
	store         storage.VectorStore
	generator     Generator
	builder       *ContextBuilder
	conversations ConversationAppender // may be nil
	cfg           Config

	// persistLocks serializes the dedup upsert sequence per user, closing
	// the check-then-act race between concurrent turns of the same user.
	persistLocks keyedMutex
}

// NewEngine wires the pipeline. conversations may be nil when no
// conversation-persistence service is configured.
func NewEngine(embedder llm.EmbeddingGenerator, store storage.VectorStore, generator Generator, conversations ConversationAppender, cfg Config) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedding generator is required")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Engine{
		embedder:      embedder,
		store:         store,
		generator:     generator,
		builder:       NewContextBuilder(cfg.MaxContextMemories),
		conversations: conversations,
		cfg:           cfg,
	}, nil
}

// Respond runs one chat turn through the pipeline. Callers either get a
// complete generated answer or an error from the taxonomy in internal/llm —
// never a partial response.
func (e *Engine) Respond(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrInvalidInput, err)
	}

	// EMBED — fatal: without an embedding neither retrieval nor persistence
	// of this turn can proceed.
	queryVector, err := e.embedder.Embed(ctx, req.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to embed user message: %w", err)
	}

	// RETRIEVE — a store failure here is fatal: generation without retrieval
	// would silently lose personalization with no visible signal. An empty
	// result set is a valid outcome.
	hits, err := e.store.FindNearest(ctx, req.UserID, queryVector, e.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("%w: memory retrieval failed: %v", llm.ErrProviderUnavailable, err)
	}

	// AUGMENT — pure.
	contextBlock := e.builder.Build(hits)

	// GENERATE — fatal on failure; no memory write happens for this turn.
	response, err := e.generator.Generate(ctx, GenerationInput{
		UserID:  req.UserID,
		Message: req.Message,
		Context: contextBlock,
		Hits:    hits,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate response: %w", err)
	}

	result := &types.ChatResponse{
		Response:       response,
		ConversationID: req.ConversationID,
	}
	if result.ConversationID == "" {
		result.ConversationID = uuid.NewString()
	}

	// PERSIST — non-fatal by default: the already-computed response is
	// returned unchanged and the failure is logged.
	if err := e.persistTurn(ctx, req.UserID, req.Message, response); err != nil {
		if e.cfg.StrictPersistence {
			return nil, fmt.Errorf("failed to persist conversation memory: %w", err)
		}
		log.Printf("WARNING: failed to persist conversation memory for user %s: %v", req.UserID, err)
		result.Degraded = true
	}

	// Conversation history is a best-effort collaborator; its failures never
	// block the response either.
	if e.conversations != nil {
		if err := e.conversations.AppendTurn(ctx, result.ConversationID, req.AuthToken, req.Message, response); err != nil {
			log.Printf("WARNING: failed to append conversation turn %s: %v", result.ConversationID, err)
		}
	}

	return result, nil
}

// persistTurn batch-embeds both halves of the turn and upserts them as two
// distinct records. Upserts for one user are serialized to keep dedup
// exact-once under concurrent turns.
func (e *Engine) persistTurn(ctx context.Context, userID, userMessage, aiResponse string) error {
	texts := []string{
		userMemoryPrefix + userMessage,
		aiMemoryPrefix + aiResponse,
	}

	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("batch embed: %w", err)
	}

	unlock := e.persistLocks.Lock(userID)
	defer unlock()

	if _, err := e.store.Upsert(ctx, userID, vectors[0], texts[0], types.MemoryTypeUserMessage); err != nil {
		return fmt.Errorf("store user message: %w", err)
	}
	if _, err := e.store.Upsert(ctx, userID, vectors[1], texts[1], types.MemoryTypeAIResponse); err != nil {
		return fmt.Errorf("store ai response: %w", err)
	}
	return nil
}

// MemoryStats exposes per-user store statistics for the diagnostics endpoint.
func (e *Engine) MemoryStats(ctx context.Context, userID string) (*types.MemoryStats, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user ID is required", llm.ErrInvalidInput)
	}
	return e.store.Stats(ctx, userID)
}

// keyedMutex hands out one mutex per key. Entries are never removed; the
// keyspace is bounded by the active user population.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Lock locks the mutex for key and returns the unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	k.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
