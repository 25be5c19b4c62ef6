package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arialabs/aria/internal/config"
	"github.com/arialabs/aria/internal/conversation"
	"github.com/arialabs/aria/internal/llm"
	"github.com/arialabs/aria/internal/rag"
	"github.com/arialabs/aria/internal/server"
	"github.com/arialabs/aria/internal/storage"
	"github.com/arialabs/aria/internal/storage/memory"
	"github.com/arialabs/aria/internal/storage/postgres"
	"github.com/arialabs/aria/internal/storage/sqlite"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize storage
	store, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	// Initialize LLM providers (each client carries its own circuit breaker)
	providerCfg := llm.ProviderConfig{
		Provider:       cfg.LLM.Provider,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		APIKey:         cfg.LLM.OpenRouterAPIKey,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		Timeout:        time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	}
	switch cfg.LLM.Provider {
	case "openrouter":
		providerCfg.BaseURL = cfg.LLM.OpenRouterURL
	default:
		providerCfg.BaseURL = cfg.LLM.OllamaURL
	}

	textGen, err := llm.NewTextGenerator(providerCfg)
	if err != nil {
		log.Fatalf("Failed to initialize text generator: %v", err)
	}
	embedder, err := llm.NewEmbeddingGenerator(providerCfg)
	if err != nil {
		log.Fatalf("Failed to initialize embedding generator: %v", err)
	}

	// Surface the generation provider's breaker state on /api/health.
	var breaker server.CircuitStater
	if cs, ok := textGen.(server.CircuitStater); ok {
		breaker = cs
	}

	// Optional conversation-persistence collaborator
	var conversations rag.ConversationAppender
	if cfg.Conversation.ServiceURL != "" {
		conversations = conversation.NewClient(conversation.Config{
			BaseURL: cfg.Conversation.ServiceURL,
		})
		log.Printf("Conversation persistence enabled: %s", cfg.Conversation.ServiceURL)
	}

	engine, err := rag.NewEngine(embedder, store, rag.NewCompletionGenerator(textGen), conversations, rag.Config{
		TopK:               cfg.Memory.TopK,
		MaxContextMemories: cfg.Memory.MaxContextMemories,
		StrictPersistence:  cfg.Memory.StrictPersistence,
	})
	if err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, err := server.Start(ctx, cfg, engine, breaker)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("Aria backend running at http://%s (storage=%s, llm=%s/%s)",
		addr, cfg.Storage.Engine, cfg.LLM.Provider, cfg.LLM.Model)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

// buildStore selects and initializes the vector store backend.
func buildStore(cfg *config.Config) (storage.VectorStore, error) {
	opts := storage.Options{
		Dimension:          cfg.Memory.Dimension,
		DuplicateThreshold: cfg.Memory.DuplicateThreshold,
		MaxRecordsPerUser:  cfg.Memory.MaxRecordsPerUser,
	}

	switch cfg.Storage.Engine {
	case "memory":
		return memory.NewMemoryStore(opts), nil
	case "sqlite":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return sqlite.NewMemoryStore(cfg.Storage.DataPath+"/aria.db", opts)
	case "postgres":
		return postgres.NewMemoryStore(cfg.Storage.PostgresDSN, opts)
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}
}
