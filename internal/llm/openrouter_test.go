package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func openRouterTestClient(serverURL string) *OpenRouterClient {
	return NewOpenRouterClient(OpenRouterConfig{
		APIKey:  "sk-test",
		BaseURL: serverURL,
		Model:   "openai/gpt-4o-mini",
		Referer: "http://localhost:8080",
		Title:   "Aria",
	})
}

func TestOpenRouterComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path: got %q, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization: got %q", got)
		}
		if got := r.Header.Get("HTTP-Referer"); got != "http://localhost:8080" {
			t.Errorf("HTTP-Referer: got %q", got)
		}
		if got := r.Header.Get("X-Title"); got != "Aria" {
			t.Errorf("X-Title: got %q", got)
		}

		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "system" {
			t.Errorf("messages: got %+v, want one system message", req.Messages)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "hi there"}},
			},
		})
	}))
	defer server.Close()

	client := openRouterTestClient(server.URL)
	got, err := client.Complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}
	if got != "hi there" {
		t.Errorf("Complete() = %q", got)
	}
}

func TestOpenRouterCompleteNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	}))
	defer server.Close()

	client := openRouterTestClient(server.URL)
	_, err := client.Complete(context.Background(), "hello")
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("got %v, want ErrUpstream", err)
	}
}

func TestOpenRouterEmbedBatchHonorsIndexOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path: got %q, want /embeddings", r.URL.Path)
		}
		// Respond out of order; the client must restore input order.
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 1, "embedding": []float32{0.3, 0.4}},
				{"index": 0, "embedding": []float32{0.1, 0.2}},
			},
		})
	}))
	defer server.Close()

	client := openRouterTestClient(server.URL)
	vectors, err := client.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch() failed: %v", err)
	}
	if vectors[0][0] != 0.1 || vectors[1][0] != 0.3 {
		t.Errorf("index order not restored: %v", vectors)
	}
}

func TestOpenRouterEmbedBatchMalformedResponse(t *testing.T) {
	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{
			"count mismatch",
			map[string]interface{}{"data": []map[string]interface{}{
				{"index": 0, "embedding": []float32{0.1}},
			}},
		},
		{
			"index out of range",
			map[string]interface{}{"data": []map[string]interface{}{
				{"index": 0, "embedding": []float32{0.1}},
				{"index": 5, "embedding": []float32{0.2}},
			}},
		},
		{
			"empty embedding",
			map[string]interface{}{"data": []map[string]interface{}{
				{"index": 0, "embedding": []float32{}},
				{"index": 1, "embedding": []float32{0.2}},
			}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(tc.body)
			}))
			defer server.Close()

			client := openRouterTestClient(server.URL)
			_, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
			if !errors.Is(err, ErrUpstream) {
				t.Errorf("got %v, want ErrUpstream", err)
			}
		})
	}
}

func TestOpenRouterUpstreamStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := openRouterTestClient(server.URL)
	_, err := client.Complete(context.Background(), "hello")
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("got %v, want ErrUpstream", err)
	}
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("ErrUpstream should wrap ErrProviderUnavailable, got %v", err)
	}
}
