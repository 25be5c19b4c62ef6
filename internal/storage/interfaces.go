// Package storage defines the vector memory store contract shared by all
// backends.
//
// A store is a persistent per-user nearest-neighbor index with
// deduplication-on-write: semantically repeated statements update the
// existing record in place instead of growing the store. Every operation is
// scoped to a single user; no backend ever returns another user's records.
package storage

import (
	"context"

	"github.com/arialabs/aria/pkg/types"
)

// VectorStore is the memory store consumed by the RAG pipeline.
type VectorStore interface {
	// FindNearest returns up to topK records owned by userID, ordered by
	// descending cosine similarity to vector. Ties at equal score are broken
	// by ascending record ID so results are stable across runs. An empty
	// result is valid (new user, empty store), not an error.
	FindNearest(ctx context.Context, userID string, vector []float32, topK int) ([]types.MemoryHit, error)

	// Upsert writes one memory with dedup semantics: when the nearest
	// existing record for userID scores at or above the duplicate threshold,
	// that record's text, vector and timestamp are overwritten and its ID
	// returned; otherwise a new record is inserted under a content-hash
	// derived ID. The write is atomic: subsequent queries see either the full
	// record or nothing.
	Upsert(ctx context.Context, userID string, vector []float32, text, memoryType string) (string, error)

	// Delete removes a record by ID. This is an administrative hook; the
	// pipeline itself never deletes. Returns ErrNotFound when the record does
	// not exist or belongs to a different user.
	Delete(ctx context.Context, userID, recordID string) error

	// Stats reports record counts for a user, broken down by type tag.
	Stats(ctx context.Context, userID string) (*types.MemoryStats, error)

	// Close releases any resources held by the store.
	Close() error
}
