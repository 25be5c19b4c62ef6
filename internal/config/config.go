// Package config provides configuration management for the Aria backend.
// Settings load from environment variables with the ARIA_ prefix, with
// sensible defaults for every option. When ARIA_CONFIG points at a YAML
// file, values from the file override the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Aria application.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	LLM          LLMConfig          `yaml:"llm"`
	Memory       MemoryConfig       `yaml:"memory"`
	Conversation ConversationConfig `yaml:"conversation"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // default: 8080
	Host string `yaml:"host"` // default: 127.0.0.1

	// RateLimit is the sustained request rate per second allowed by the
	// HTTP middleware (default 10).
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the rate limiter's burst allowance (default 20).
	RateBurst int `yaml:"rate_burst"`
}

// StorageConfig contains vector store backend configuration.
type StorageConfig struct {
	// Engine selects the store backend: memory, sqlite or postgres.
	Engine string `yaml:"engine"`

	// DataPath is the directory holding the SQLite database file.
	DataPath string `yaml:"data_path"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// LLMConfig contains provider configuration for embeddings and generation.
type LLMConfig struct {
	// Provider selects the adapter: ollama or openrouter.
	Provider string `yaml:"provider"`

	OllamaURL      string `yaml:"ollama_url"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`

	OpenRouterAPIKey string `yaml:"openrouter_api_key"`
	OpenRouterURL    string `yaml:"openrouter_url"`
	Referer          string `yaml:"referer"`
	Title            string `yaml:"title"`

	// TimeoutSeconds bounds every provider call (default 30).
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// MemoryConfig contains the RAG and dedup tunables.
type MemoryConfig struct {
	// Dimension is the fixed embedding dimension D. Zero lets the memory and
	// sqlite backends pin it on first write; postgres requires it up front.
	Dimension int `yaml:"dimension"`

	// DuplicateThreshold is the inclusive cosine similarity above which an
	// upsert updates in place (default 0.9).
	DuplicateThreshold float64 `yaml:"duplicate_threshold"`

	// TopK is how many memories to retrieve per turn (default 5).
	TopK int `yaml:"top_k"`

	// MaxContextMemories bounds the generated context block (default 4).
	MaxContextMemories int `yaml:"max_context_memories"`

	// MaxRecordsPerUser caps stored records per user; 0 means unbounded.
	MaxRecordsPerUser int `yaml:"max_records_per_user"`

	// StrictPersistence makes memory write-back failures fatal instead of
	// degrading silently.
	StrictPersistence bool `yaml:"strict_persistence"`
}

// ConversationConfig configures the optional conversation-persistence
// collaborator.
type ConversationConfig struct {
	// ServiceURL is the collaborator's API root. Empty disables it.
	ServiceURL string `yaml:"service_url"`
}

// LoadConfig loads configuration from environment variables, then overlays a
// YAML file when ARIA_CONFIG names one.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()

	if path := os.Getenv("ARIA_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlayFile merges a YAML config file over the current values. Fields not
// present in the file keep their environment/default values.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Storage.Engine {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}
	if c.Storage.Engine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: postgres engine requires ARIA_POSTGRES_DSN")
	}
	if c.Storage.Engine == "postgres" && c.Memory.Dimension <= 0 {
		return fmt.Errorf("config: postgres engine requires ARIA_EMBEDDING_DIM")
	}
	if c.Memory.DuplicateThreshold <= 0 || c.Memory.DuplicateThreshold > 1 {
		return fmt.Errorf("config: duplicate threshold must be in (0, 1], got %v", c.Memory.DuplicateThreshold)
	}
	if c.Server.RateLimit <= 0 || c.Server.RateBurst < 1 {
		return fmt.Errorf("config: rate limit must be positive with a burst of at least 1, got %v/%d", c.Server.RateLimit, c.Server.RateBurst)
	}
	return nil
}

// buildBaseConfig constructs a Config with values from environment variables
// and defaults.
func buildBaseConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      getEnvInt("ARIA_PORT", 8080),
			Host:      getEnv("ARIA_HOST", "127.0.0.1"),
			RateLimit: getEnvFloat("ARIA_RATE_LIMIT", 10),
			RateBurst: getEnvInt("ARIA_RATE_BURST", 20),
		},
		Storage: StorageConfig{
			Engine:      getEnv("ARIA_STORAGE_ENGINE", "sqlite"),
			DataPath:    getEnv("ARIA_DATA_PATH", "./data"),
			PostgresDSN: getEnv("ARIA_POSTGRES_DSN", ""),
		},
		LLM: LLMConfig{
			Provider:         getEnv("ARIA_LLM_PROVIDER", "ollama"),
			OllamaURL:        getEnv("ARIA_OLLAMA_URL", "http://localhost:11434"),
			Model:            getEnv("ARIA_LLM_MODEL", "qwen2.5:7b"),
			EmbeddingModel:   getEnv("ARIA_EMBEDDING_MODEL", "nomic-embed-text"),
			OpenRouterAPIKey: getEnv("ARIA_OPENROUTER_API_KEY", ""),
			OpenRouterURL:    getEnv("ARIA_OPENROUTER_URL", "https://openrouter.ai/api/v1"),
			Referer:          getEnv("ARIA_HTTP_REFERER", "http://localhost:8080"),
			Title:            getEnv("ARIA_APP_TITLE", "Aria"),
			TimeoutSeconds:   getEnvInt("ARIA_LLM_TIMEOUT_SECONDS", 30),
		},
		Memory: MemoryConfig{
			Dimension:          getEnvInt("ARIA_EMBEDDING_DIM", 0),
			DuplicateThreshold: getEnvFloat("ARIA_DUPLICATE_THRESHOLD", 0.9),
			TopK:               getEnvInt("ARIA_MEMORY_TOP_K", 5),
			MaxContextMemories: getEnvInt("ARIA_MAX_CONTEXT_MEMORIES", 4),
			MaxRecordsPerUser:  getEnvInt("ARIA_MAX_RECORDS_PER_USER", 0),
			StrictPersistence:  getEnvBool("ARIA_STRICT_PERSISTENCE", false),
		},
		Conversation: ConversationConfig{
			ServiceURL: getEnv("ARIA_CONVERSATION_SERVICE_URL", ""),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. It recognizes "true", "1", "yes" and "false", "0", "no".
func getEnvBool(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
		return true
	case "false", "0", "no", "False", "FALSE", "No", "NO":
		return false
	}
	return defaultValue
}
