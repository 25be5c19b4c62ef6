package types

import "time"

// Memory type tags. The set is open: stores accept any non-empty tag, these
// are just the values the chat pipeline writes.
const (
	MemoryTypeUserMessage = "user_message"
	MemoryTypeAIResponse  = "ai_response"
	MemoryTypeGeneral     = "general"
)

// MemoryRecord is a single stored memory: one embedded piece of text owned by
// exactly one user. Records are immutable once stored except for the
// update-in-place that happens when a near-duplicate write reuses an existing
// record's ID.
type MemoryRecord struct {
	// ID is stable across near-duplicate updates. New records derive it from
	// (user_id, content hash) so retries of the same logical write are idempotent.
	ID string `json:"id"`

	// UserID is the owner. Stores never return records across this boundary.
	UserID string `json:"user_id"`

	// Vector is the embedding. Its length must match the store's configured
	// dimension; a mismatch is rejected, never truncated or padded.
	Vector []float32 `json:"vector,omitempty"`

	// Text is the original content. Always non-empty.
	Text string `json:"text"`

	// Type is the tag this record was written with (user_message, ai_response, ...).
	Type string `json:"type"`

	// Timestamp is the creation or last-update time, monotonically advancing
	// per write.
	Timestamp time.Time `json:"timestamp"`
}

// MemoryHit is a record plus the transient similarity score attached at query
// time. The score is never persisted.
type MemoryHit struct {
	Record MemoryRecord `json:"record"`

	// Score is the cosine similarity against the query vector, descending
	// within a result set.
	Score float64 `json:"score"`
}

// MemoryStats summarises a user's stored memories for diagnostics.
type MemoryStats struct {
	UserID       string         `json:"user_id"`
	TotalRecords int            `json:"total_records"`
	ByType       map[string]int `json:"by_type,omitempty"`
}
