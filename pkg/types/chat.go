package types

import (
	"errors"
	"strings"
)

// ChatRequest is the explicit request value carried through the pipeline.
// ConversationID and AuthToken are optional and only consumed by the
// conversation-persistence collaborator.
type ChatRequest struct {
	UserID         string `json:"user_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	AuthToken      string `json:"auth_token,omitempty"`
}

// Validate reports whether the request is usable by the pipeline.
func (r *ChatRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	if strings.TrimSpace(r.Message) == "" {
		return errors.New("message is required")
	}
	return nil
}

// ChatResponse is what the pipeline returns to the HTTP layer. Degraded is
// true when the response was generated but the memory write-back failed, so
// callers (and tests) can tell which mode produced the answer.
type ChatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id,omitempty"`
	Degraded       bool   `json:"degraded,omitempty"`
}
