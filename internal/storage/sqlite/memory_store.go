// Package sqlite provides a SQLite implementation of storage.VectorStore.
//
// Embeddings are serialized as little-endian float32 BLOBs and similarity is
// computed in Go over the owner's rows. That keeps the backend dependency-free
// beyond the pure-Go driver and is plenty for per-user memory sets; very large
// deployments should use the postgres backend with an indexed pgvector column.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/arialabs/aria/internal/storage"
	"github.com/arialabs/aria/pkg/types"
)

// Ensure *MemoryStore implements storage.VectorStore at compile time.
var _ storage.VectorStore = (*MemoryStore)(nil)

// MemoryStore implements storage.VectorStore using SQLite.
type MemoryStore struct {
	db   *sql.DB
	opts storage.Options

	// upsertMu serializes the check-then-act dedup sequence. SQLite only has
	// one writer anyway, but the nearest-neighbor lookup happens before the
	// write, so the whole sequence must be one critical section.
	upsertMu sync.Mutex

	// dimMu guards dimension, which is pinned by the first write (or by an
	// existing row at open) when no dimension was configured.
	dimMu     sync.Mutex
	dimension int
}

// NewMemoryStore opens (or creates) a SQLite-backed vector store at dsn.
// Use ":memory:" for an ephemeral store in tests.
func NewMemoryStore(dsn string, opts storage.Options) (*MemoryStore, error) {
	opts.Normalize()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to apply schema: %w", err)
	}

	store := &MemoryStore{db: db, opts: opts, dimension: opts.Dimension}

	// A reopened store with no configured dimension inherits the dimension of
	// its existing rows, so the pin survives restarts.
	if store.dimension == 0 {
		var dim int
		err := db.QueryRow(`SELECT dimension FROM memories LIMIT 1`).Scan(&dim)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			db.Close()
			return nil, fmt.Errorf("sqlite: failed to read stored dimension: %w", err)
		default:
			store.dimension = dim
		}
	}

	return store, nil
}

// GetDB returns the underlying database connection.
func (s *MemoryStore) GetDB() *sql.DB {
	return s.db
}

// FindNearest loads the user's embeddings, ranks them by cosine similarity in
// Go, and returns the top K hits with descending scores.
func (s *MemoryStore) FindNearest(ctx context.Context, userID string, vector []float32, topK int) ([]types.MemoryHit, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query vector is required", storage.ErrInvalidInput)
	}
	if err := s.checkDimension(vector); err != nil {
		return nil, err
	}
	if topK < 1 {
		topK = 1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, embedding, dimension, content, memory_type, updated_at
		FROM memories
		WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: FindNearest query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []types.MemoryHit
	for rows.Next() {
		rec, blob, dim, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: FindNearest scan: %w", err)
		}
		embedding, err := deserializeEmbedding(blob, dim)
		if err != nil {
			// A corrupt row should not sink the whole query.
			continue
		}
		rec.Vector = embedding
		hits = append(hits, types.MemoryHit{
			Record: rec,
			Score:  storage.CosineSimilarity(vector, embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: FindNearest rows: %w", err)
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

// Upsert writes one memory with dedup semantics. The nearest-neighbor check
// and the conditional write run under upsertMu so concurrent near-duplicate
// writes for the same user cannot both insert.
func (s *MemoryStore) Upsert(ctx context.Context, userID string, vector []float32, text, memoryType string) (string, error) {
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

	s.upsertMu.Lock()
	defer s.upsertMu.Unlock()

	if err := s.pinDimension(vector); err != nil {
		return "", err
	}

	nearest, err := s.FindNearest(ctx, userID, vector, 1)
	if err != nil {
		return "", err
	}

	blob := serializeEmbedding(vector)
	now := time.Now().UTC()

	// Threshold is inclusive: a score exactly at the threshold updates.
	if len(nearest) > 0 && nearest[0].Score >= s.opts.DuplicateThreshold {
		id := nearest[0].Record.ID
		_, err := s.db.ExecContext(ctx, `
			UPDATE memories
			SET content = ?, embedding = ?, dimension = ?, memory_type = ?, updated_at = ?
			WHERE id = ? AND user_id = ?`,
			text, blob, len(vector), memoryType, now.UnixNano(), id, userID)
		if err != nil {
			return "", fmt.Errorf("sqlite: failed to update memory: %w", err)
		}
		return id, nil
	}

	id := storage.RecordID(userID, text)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, user_id, embedding, dimension, content, memory_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			content = excluded.content,
			memory_type = excluded.memory_type,
			updated_at = excluded.updated_at`,
		id, userID, blob, len(vector), text, memoryType, now.UnixNano(), now.UnixNano())
	if err != nil {
		return "", fmt.Errorf("sqlite: failed to insert memory: %w", err)
	}

	if err := s.evictOldest(ctx, userID); err != nil {
		return "", err
	}
	return id, nil
}

// Delete removes a record by ID for the given user.
func (s *MemoryStore) Delete(ctx context.Context, userID, recordID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE id = ? AND user_id = ?`, recordID, userID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete memory: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, recordID)
	}
	return nil
}

// Stats reports record counts for a user, broken down by type tag.
func (s *MemoryStore) Stats(ctx context.Context, userID string) (*types.MemoryStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_type, COUNT(*)
		FROM memories
		WHERE user_id = ?
		GROUP BY memory_type`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: Stats query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := &types.MemoryStats{UserID: userID, ByType: make(map[string]int)}
	for rows.Next() {
		var memType string
		var count int
		if err := rows.Scan(&memType, &count); err != nil {
			return nil, fmt.Errorf("sqlite: Stats scan: %w", err)
		}
		stats.ByType[memType] = count
		stats.TotalRecords += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: Stats rows: %w", err)
	}
	return stats, nil
}

// Close releases the database connection.
func (s *MemoryStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// checkDimension validates a vector against the pinned dimension without
// pinning. Used on the read path.
func (s *MemoryStore) checkDimension(vector []float32) error {
	s.dimMu.Lock()
	defer s.dimMu.Unlock()
	if s.dimension > 0 && len(vector) != s.dimension {
		return fmt.Errorf("%w: got %d, want %d", storage.ErrDimensionMismatch, len(vector), s.dimension)
	}
	return nil
}

// pinDimension validates the vector and, when no dimension was configured,
// pins the store to the first written vector's length.
func (s *MemoryStore) pinDimension(vector []float32) error {
	s.dimMu.Lock()
	defer s.dimMu.Unlock()
	if s.dimension == 0 {
		s.dimension = len(vector)
		return nil
	}
	if len(vector) != s.dimension {
		return fmt.Errorf("%w: got %d, want %d", storage.ErrDimensionMismatch, len(vector), s.dimension)
	}
	return nil
}

// evictOldest enforces MaxRecordsPerUser after an insert by deleting the
// oldest rows by updated_at. Updates never reach this path. Callers hold
// upsertMu.
func (s *MemoryStore) evictOldest(ctx context.Context, userID string) error {
	if s.opts.MaxRecordsPerUser <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM memories
		WHERE user_id = ? AND id NOT IN (
			SELECT id FROM memories
			WHERE user_id = ?
			ORDER BY updated_at DESC, id ASC
			LIMIT ?
		)`, userID, userID, s.opts.MaxRecordsPerUser)
	if err != nil {
		return fmt.Errorf("sqlite: failed to evict old memories: %w", err)
	}
	return nil
}

// scanRecord reads one row into a MemoryRecord plus its raw embedding blob.
// The SELECT column order must match FindNearest.
func scanRecord(rows *sql.Rows) (types.MemoryRecord, []byte, int, error) {
	var rec types.MemoryRecord
	var blob []byte
	var dim int
	var updatedAt int64
	if err := rows.Scan(&rec.ID, &rec.UserID, &blob, &dim, &rec.Text, &rec.Type, &updatedAt); err != nil {
		return rec, nil, 0, err
	}
	rec.Timestamp = time.Unix(0, updatedAt).UTC()
	return rec, blob, dim, nil
}

// serializeEmbedding encodes a vector as a little-endian float32 BLOB.
func serializeEmbedding(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding decodes a little-endian float32 BLOB of the given
// dimension.
func deserializeEmbedding(blob []byte, dim int) ([]float32, error) {
	if len(blob) != 4*dim {
		return nil, fmt.Errorf("embedding blob has %d bytes, want %d", len(blob), 4*dim)
	}
	out := make([]float32, dim)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out, nil
}
