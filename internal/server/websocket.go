package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/arialabs/aria/internal/llm"
	"github.com/arialabs/aria/internal/rag"
	"github.com/arialabs/aria/pkg/types"
)

// wsTurnTimeout bounds one full pipeline turn driven over the socket.
const wsTurnTimeout = 2 * time.Minute

// wsError is the error frame sent to WebSocket clients.
type wsError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WSChatHandler runs the chat pipeline over a WebSocket connection: each
// inbound text frame is one ChatRequest, each outbound frame the matching
// ChatResponse or an error frame. Turns are processed sequentially per
// connection.
type WSChatHandler struct {
	engine  *rag.Engine
	origins []string
}

// NewWSChatHandler creates the WebSocket chat handler. origins lists the
// origin patterns accepted during the upgrade handshake.
func NewWSChatHandler(engine *rag.Engine, origins []string) *WSChatHandler {
	return &WSChatHandler{engine: engine, origins: origins}
}

// ServeHTTP upgrades the connection and services chat turns until the client
// disconnects.
func (h *WSChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{ //nolint:staticcheck
		OriginPatterns: h.origins,
	})
	if err != nil {
		log.Printf("ERROR: WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing") //nolint:staticcheck

	authToken := bearerToken(r)

	for {
		msgType, data, err := conn.Read(r.Context())
		if err != nil {
			// Normal closure or client gone.
			return
		}
		if msgType != websocket.MessageText {
			h.writeError(r.Context(), conn, "expected a text frame", "BAD_FRAME")
			continue
		}

		var req types.ChatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			h.writeError(r.Context(), conn, "failed to parse chat request", "BAD_FRAME")
			continue
		}
		if req.AuthToken == "" {
			req.AuthToken = authToken
		}

		turnCtx, cancel := context.WithTimeout(r.Context(), wsTurnTimeout)
		resp, err := h.engine.Respond(turnCtx, req)
		cancel()
		if err != nil {
			h.writeError(r.Context(), conn, err.Error(), wsErrorCode(err))
			continue
		}

		payload, err := json.Marshal(resp)
		if err != nil {
			log.Printf("ERROR: failed to marshal chat response: %v", err)
			continue
		}
		writeCtx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		err = conn.Write(writeCtx, websocket.MessageText, payload) //nolint:staticcheck
		cancel()
		if err != nil {
			log.Printf("ERROR: WebSocket write failed: %v", err)
			return
		}
	}
}

// wsErrorCode mirrors the HTTP status mapping for socket clients.
func wsErrorCode(err error) string {
	switch {
	case errors.Is(err, llm.ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, llm.ErrProviderUnavailable):
		return "PROVIDER_UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

func (h *WSChatHandler) writeError(ctx context.Context, conn *websocket.Conn, message, code string) {
	payload, err := json.Marshal(wsError{Error: message, Code: code})
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, payload); err != nil { //nolint:staticcheck
		log.Printf("ERROR: WebSocket error write failed: %v", err)
	}
}
