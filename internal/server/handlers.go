// Package server provides the HTTP and WebSocket surface of the Aria
// backend: the chat endpoint, the health probe, and per-user memory
// diagnostics.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/arialabs/aria/internal/llm"
	"github.com/arialabs/aria/internal/rag"
	"github.com/arialabs/aria/internal/storage"
	"github.com/arialabs/aria/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthResponse is the response format for GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Breaker string `json:"breaker,omitempty"`
}

// CircuitStater is implemented by providers that expose their circuit
// breaker state for diagnostics.
type CircuitStater interface {
	CircuitState() string
}

// Handlers bundles the chat pipeline dependencies for the HTTP surface.
type Handlers struct {
	engine  *rag.Engine
	breaker CircuitStater // may be nil
}

// NewHandlers creates the API handlers. breaker may be nil when the provider
// does not report circuit state.
func NewHandlers(engine *rag.Engine, breaker CircuitStater) *Handlers {
	return &Handlers{engine: engine, breaker: breaker}
}

// Chat handles POST /api/chat: one full turn through the pipeline.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	// A Bearer token on the request is forwarded to the conversation
	// service; an explicit auth_token field wins.
	if req.AuthToken == "" {
		req.AuthToken = bearerToken(r)
	}

	resp, err := h.engine.Respond(r.Context(), req)
	if err != nil {
		respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// MemoryStats handles GET /api/memory/stats?user_id=... for diagnostics.
func (h *Handlers) MemoryStats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	stats, err := h.engine.MemoryStats(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, llm.ErrInvalidInput):
			respondError(w, http.StatusBadRequest, "user_id is required", nil)
		case errors.Is(err, storage.ErrNotFound):
			respondError(w, http.StatusNotFound, "no memories for user", nil)
		default:
			respondError(w, http.StatusInternalServerError, "failed to read memory stats", err)
		}
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// Health handles GET /api/health. It reports the provider circuit state but
// always answers 200; liveness is not gated on the upstream provider.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Version: "1.0.0"}
	if h.breaker != nil {
		resp.Breaker = h.breaker.CircuitState()
	}
	respondJSON(w, http.StatusOK, resp)
}

// respondPipelineError maps the pipeline error taxonomy onto HTTP status
// codes: invalid input is the caller's fault, provider trouble (timeouts and
// open circuits included) is 503, anything else is 500.
func respondPipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, llm.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid chat request", err)
	case errors.Is(err, llm.ErrProviderUnavailable):
		respondError(w, http.StatusServiceUnavailable, "upstream provider unavailable", err)
	default:
		respondError(w, http.StatusInternalServerError, "failed to process chat turn", err)
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers already sent; nothing to do but note it.
		fmt.Printf("failed to encode JSON response: %v\n", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}
	respondJSON(w, statusCode, errResp)
}
