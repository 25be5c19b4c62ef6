package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/arialabs/aria/internal/rag"
	"github.com/arialabs/aria/internal/storage"
	"github.com/arialabs/aria/internal/storage/memory"
	"github.com/arialabs/aria/pkg/types"
)

func dialTestSocket(t *testing.T, gen rag.Generator) *websocket.Conn {
	t.Helper()

	store := memory.NewMemoryStore(storage.Options{})
	engine, err := rag.NewEngine(stubEmbedder{}, store, gen, nil, rag.Config{})
	require.NoError(t, err)

	server := httptest.NewServer(NewWSChatHandler(engine, []string{"*"}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil) //nolint:staticcheck
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") }) //nolint:staticcheck
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, payload string) []byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(payload))) //nolint:staticcheck
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	return data
}

func TestWSChat_Turn(t *testing.T) {
	conn := dialTestSocket(t, stubGenerator{response: "hello over ws"})

	data := roundTrip(t, conn, `{"user_id":"user-1","message":"hi","conversation_id":"conv-ws"}`)

	var resp types.ChatResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	assert.Equal(t, "hello over ws", resp.Response)
	assert.Equal(t, "conv-ws", resp.ConversationID)
}

func TestWSChat_SequentialTurns(t *testing.T) {
	conn := dialTestSocket(t, stubGenerator{response: "ack"})

	for i := 0; i < 3; i++ {
		data := roundTrip(t, conn, `{"user_id":"user-1","message":"turn"}`)
		var resp types.ChatResponse
		require.NoError(t, json.Unmarshal(data, &resp))
		assert.Equal(t, "ack", resp.Response)
	}
}

func TestWSChat_InvalidRequestKeepsConnection(t *testing.T) {
	conn := dialTestSocket(t, stubGenerator{response: "ok"})

	// Malformed frame: error reply, connection stays usable.
	data := roundTrip(t, conn, "{not json")
	var errFrame wsError
	require.NoError(t, json.Unmarshal(data, &errFrame))
	assert.Equal(t, "BAD_FRAME", errFrame.Code)

	// Invalid request: taxonomy-mapped error code.
	data = roundTrip(t, conn, `{"user_id":"","message":"hi"}`)
	require.NoError(t, json.Unmarshal(data, &errFrame))
	assert.Equal(t, "INVALID_INPUT", errFrame.Code)

	// The same connection still serves a valid turn.
	data = roundTrip(t, conn, `{"user_id":"user-1","message":"hi"}`)
	var resp types.ChatResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	assert.Equal(t, "ok", resp.Response)
}
