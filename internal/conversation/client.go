// Package conversation provides an HTTP client for the external
// conversation-persistence service. The service keeps role-tagged message
// history per conversation; it is a best-effort collaborator, so callers
// treat every failure here as non-blocking.
package conversation

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

// Message is one role-tagged entry appended to a conversation.
type Message struct {
	Role    string `json:"role"` // "user" | "assistant" | "system"
	Content string `json:"content"`
}

// Client talks to the conversation-persistence service.
type Client struct {
	baseURL string
	client  *http.Client
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the service's API root (e.g. http://localhost:3001/api).
	BaseURL string

	// Timeout bounds each request (default 10s; the collaborator is
	// best-effort, so a shorter leash than the providers get).
	Timeout time.Duration
}

// NewClient creates a conversation service client.
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// AppendTurn appends both halves of a chat turn to the conversation.
func (c *Client) AppendTurn(ctx context.Context, conversationID, authToken, userMessage, aiResponse string) error {
	messages := []Message{
		{Role: "user", Content: userMessage},
		{Role: "assistant", Content: aiResponse},
	}
	return c.appendMessages(ctx, conversationID, authToken, messages)
}

func (c *Client) appendMessages(ctx context.Context, conversationID, authToken string, messages []Message) error {
	if conversationID == "" {
		return fmt.Errorf("conversation ID is required")
	}

	body, err := json.Marshal(map[string]interface{}{"messages": messages})
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	url := fmt.Sprintf("%s/conversations/%s/messages", c.baseURL, conversationID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("conversation service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("conversation service returned status %d: %s", resp.StatusCode, string(payload))
	}
	return nil
}
