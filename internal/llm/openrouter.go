package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenRouterClient speaks the OpenAI-compatible API exposed by OpenRouter
// (and by OpenAI itself when pointed at a different base URL). It serves both
// chat completion and embeddings, wrapped with circuit breaker protection.
type OpenRouterClient struct {
	baseURL        string
	apiKey         string
	client         *http.Client
	circuitBreaker *CircuitBreaker
	model          string
	referer        string
	title          string
	timeout        time.Duration
}

// OpenRouterConfig holds OpenRouter client configuration.
type OpenRouterConfig struct {
	// APIKey is the bearer token. Required.
	APIKey string

	// BaseURL defaults to https://openrouter.ai/api/v1.
	BaseURL string

	// Model is the model name for completions or embeddings.
	Model string

	// Referer and Title are the attribution headers OpenRouter asks clients
	// to send (HTTP-Referer, X-Title).
	Referer string
	Title   string

	// Timeout is the request timeout duration (default: 30s).
	Timeout time.Duration
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewOpenRouterClient creates a new OpenRouter client.
func NewOpenRouterClient(config OpenRouterConfig) *OpenRouterClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://openrouter.ai/api/v1"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &OpenRouterClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		circuitBreaker: NewCircuitBreaker("openrouter"),
		model:          config.Model,
		referer:        config.Referer,
		title:          config.Title,
		timeout:        config.Timeout,
	}
}

// Complete sends a chat completion request and returns the first choice's
// message content.
func (c *OpenRouterClient) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: prompt is empty", ErrInvalidInput)
	}

	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.complete(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *OpenRouterClient) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt},
		},
		Temperature: 0.8,
	}

	var respData chatCompletionResponse
	if err := c.postJSON(ctx, "/chat/completions", reqBody, &respData); err != nil {
		return "", err
	}

	if len(respData.Choices) == 0 {
		return "", fmt.Errorf("%w: openrouter returned no choices", ErrUpstream)
	}
	return respData.Choices[0].Message.Content, nil
}

// Embed generates an embedding for a single text.
func (c *OpenRouterClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
// Output order matches input order regardless of response ordering.
func (c *OpenRouterClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts to embed", ErrInvalidInput)
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}

	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.embedBatch(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	return result.([][]float32), nil
}

func (c *OpenRouterClient) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := embeddingsRequest{
		Model: c.model,
		Input: texts,
	}

	var respData embeddingsResponse
	if err := c.postJSON(ctx, "/embeddings", reqBody, &respData); err != nil {
		return nil, err
	}

	if len(respData.Data) != len(texts) {
		return nil, fmt.Errorf("%w: openrouter returned %d embeddings for %d inputs",
			ErrUpstream, len(respData.Data), len(texts))
	}

	// The API documents data[] as index-annotated; honor the index field.
	vectors := make([][]float32, len(texts))
	for _, item := range respData.Data {
		if item.Index < 0 || item.Index >= len(vectors) || len(item.Embedding) == 0 {
			return nil, fmt.Errorf("%w: malformed embedding at index %d", ErrUpstream, item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	for i, vec := range vectors {
		if vec == nil {
			return nil, fmt.Errorf("%w: missing embedding for input %d", ErrUpstream, i)
		}
	}
	return vectors, nil
}

func (c *OpenRouterClient) postJSON(ctx context.Context, path string, reqBody, respData interface{}) error {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyTransportError("openrouter", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: openrouter returned status %d: %s", ErrUpstream, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(respData); err != nil {
		return fmt.Errorf("%w: failed to decode openrouter response: %v", ErrUpstream, err)
	}
	return nil
}

// GetModel returns the configured model name.
func (c *OpenRouterClient) GetModel() string {
	return c.model
}

// CircuitState reports the current circuit breaker state for diagnostics.
func (c *OpenRouterClient) CircuitState() string {
	return c.circuitBreaker.State()
}

// Compile-time assertions that OpenRouterClient satisfies both provider interfaces.
var _ TextGenerator = (*OpenRouterClient)(nil)
var _ EmbeddingGenerator = (*OpenRouterClient)(nil)
