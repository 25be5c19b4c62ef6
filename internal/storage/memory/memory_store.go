// Package memory provides an in-process implementation of storage.VectorStore.
//
// Records live in a map keyed by user ID, so the store is a natural fit for
// tests and single-node development. All writes go through one mutex, which
// serializes the nearest-neighbor-check-then-write sequence and gives this
// backend exact-once dedup even under concurrent upserts for the same user.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arialabs/aria/internal/storage"
	"github.com/arialabs/aria/pkg/types"
)

// Ensure *MemoryStore implements storage.VectorStore at compile time.
var _ storage.VectorStore = (*MemoryStore)(nil)

// MemoryStore is a map-backed vector store scoped per user.
type MemoryStore struct {
	opts storage.Options

	mu      sync.RWMutex
	records map[string][]*types.MemoryRecord // keyed by user ID
	lastAt  map[string]time.Time             // last write timestamp per user

	// now is swappable for tests that need controlled timestamps.
	now func() time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(opts storage.Options) *MemoryStore {
	opts.Normalize()
	return &MemoryStore{
		opts:    opts,
		records: make(map[string][]*types.MemoryRecord),
		lastAt:  make(map[string]time.Time),
		now:     time.Now,
	}
}

// FindNearest returns up to topK records for userID ordered by descending
// cosine similarity. Ties are broken by ascending record ID.
func (s *MemoryStore) FindNearest(ctx context.Context, userID string, vector []float32, topK int) ([]types.MemoryHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query vector is required", storage.ErrInvalidInput)
	}
	if topK < 1 {
		topK = 1
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkDimension(vector); err != nil {
		return nil, err
	}

	hits := make([]types.MemoryHit, 0, len(s.records[userID]))
	for _, rec := range s.records[userID] {
		hits = append(hits, types.MemoryHit{
			Record: copyRecord(rec),
			Score:  storage.CosineSimilarity(vector, rec.Vector),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Record.ID < hits[j].Record.ID
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Upsert writes one memory with dedup semantics. The whole
// lookup-then-insert-or-update sequence runs under the write lock, so two
// concurrent near-duplicate writes for the same user collapse into one record.
func (s *MemoryStore) Upsert(ctx context.Context, userID string, vector []float32, text, memoryType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: text is required", storage.ErrInvalidInput)
	}
	if len(vector) == 0 {
		return "", fmt.Errorf("%w: vector is required", storage.ErrInvalidInput)
	}
	if memoryType == "" {
		memoryType = types.MemoryTypeGeneral
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.pinDimension(vector); err != nil {
		return "", err
	}

	// Nearest-neighbor check with topK=1, tie broken by lowest ID.
	var best *types.MemoryRecord
	bestScore := -1.0
	for _, rec := range s.records[userID] {
		score := storage.CosineSimilarity(vector, rec.Vector)
		if score > bestScore || (score == bestScore && best != nil && rec.ID < best.ID) {
			best = rec
			bestScore = score
		}
	}

	ts := s.nextTimestamp(userID)

	// Threshold is inclusive: a score exactly at the threshold updates.
	if best != nil && bestScore >= s.opts.DuplicateThreshold {
		best.Text = text
		best.Vector = append([]float32(nil), vector...)
		best.Type = memoryType
		best.Timestamp = ts
		return best.ID, nil
	}

	id := storage.RecordID(userID, text)

	// A retry of the same logical write lands on the same ID; overwrite the
	// existing record instead of growing the slice.
	for _, rec := range s.records[userID] {
		if rec.ID == id {
			rec.Text = text
			rec.Vector = append([]float32(nil), vector...)
			rec.Type = memoryType
			rec.Timestamp = ts
			return rec.ID, nil
		}
	}

	s.records[userID] = append(s.records[userID], &types.MemoryRecord{
		ID:        id,
		UserID:    userID,
		Vector:    append([]float32(nil), vector...),
		Text:      text,
		Type:      memoryType,
		Timestamp: ts,
	})
	s.evictOldest(userID)

	return id, nil
}

// Delete removes a record by ID for the given user.
func (s *MemoryStore) Delete(ctx context.Context, userID, recordID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.records[userID]
	for i, rec := range recs {
		if rec.ID == recordID {
			s.records[userID] = append(recs[:i], recs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", storage.ErrNotFound, recordID)
}

// Stats reports record counts for a user.
func (s *MemoryStore) Stats(ctx context.Context, userID string) (*types.MemoryStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &types.MemoryStats{
		UserID: userID,
		ByType: make(map[string]int),
	}
	for _, rec := range s.records[userID] {
		stats.TotalRecords++
		stats.ByType[rec.Type]++
	}
	return stats, nil
}

// Close releases the store's memory.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string][]*types.MemoryRecord)
	return nil
}

// checkDimension validates a vector against the configured dimension without
// pinning. The dimension may be pinned by a concurrent first write, so callers
// hold s.mu (read or write).
func (s *MemoryStore) checkDimension(vector []float32) error {
	if s.opts.Dimension > 0 && len(vector) != s.opts.Dimension {
		return fmt.Errorf("%w: got %d, want %d", storage.ErrDimensionMismatch, len(vector), s.opts.Dimension)
	}
	return nil
}

// pinDimension validates the vector and, when no dimension was configured,
// pins the store to the first written vector's length. Callers hold s.mu.
func (s *MemoryStore) pinDimension(vector []float32) error {
	if s.opts.Dimension == 0 {
		s.opts.Dimension = len(vector)
		return nil
	}
	if len(vector) != s.opts.Dimension {
		return fmt.Errorf("%w: got %d, want %d", storage.ErrDimensionMismatch, len(vector), s.opts.Dimension)
	}
	return nil
}

// nextTimestamp returns a timestamp strictly after the user's previous write,
// so per-user write order is always observable through Timestamp. Callers
// hold s.mu.
func (s *MemoryStore) nextTimestamp(userID string) time.Time {
	ts := s.now().UTC()
	if last, ok := s.lastAt[userID]; ok && !ts.After(last) {
		ts = last.Add(time.Nanosecond)
	}
	s.lastAt[userID] = ts
	return ts
}

// evictOldest enforces MaxRecordsPerUser after an insert by dropping the
// oldest records by timestamp. Callers hold s.mu.
func (s *MemoryStore) evictOldest(userID string) {
	limit := s.opts.MaxRecordsPerUser
	if limit <= 0 || len(s.records[userID]) <= limit {
		return
	}
	recs := s.records[userID]
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].Timestamp.Before(recs[j].Timestamp)
	})
	s.records[userID] = recs[len(recs)-limit:]
}

// copyRecord returns a value copy whose vector does not alias store-owned
// memory.
func copyRecord(rec *types.MemoryRecord) types.MemoryRecord {
	out := *rec
	out.Vector = append([]float32(nil), rec.Vector...)
	return out
}
