package storage

import (
	"errors"
	"math"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput indicates that the input parameters are invalid
	// (empty text, empty user ID, nil vector).
	ErrInvalidInput = errors.New("invalid input")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// store's configured dimension. Mismatched vectors are rejected, never
	// truncated or padded.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrUnavailable indicates a backend connectivity failure. The pipeline
	// treats it as fatal during retrieval and as a logged warning during
	// write-back.
	ErrUnavailable = errors.New("storage backend unavailable")
)

// Options holds the tunables shared by every store backend.
type Options struct {
	// Dimension is the fixed embedding dimension D. Vectors of any other
	// length are rejected with ErrDimensionMismatch. Zero disables the check
	// until the first write, which then pins the dimension.
	Dimension int

	// DuplicateThreshold is the cosine similarity at or above which an upsert
	// updates the best-matching record in place instead of inserting. The
	// boundary is inclusive: a score exactly at the threshold is a duplicate.
	DuplicateThreshold float64

	// MaxRecordsPerUser caps a user's record count. Zero means unbounded.
	// When an insert pushes a user past the cap, the oldest records by
	// timestamp are evicted. Updates never trigger eviction.
	MaxRecordsPerUser int
}

// Normalize applies defaults for unset option fields.
func (o *Options) Normalize() {
	if o.DuplicateThreshold <= 0 {
		o.DuplicateThreshold = 0.9
	}
	if o.MaxRecordsPerUser < 0 {
		o.MaxRecordsPerUser = 0
	}
}

// CosineSimilarity computes cosine similarity between two equal-length
// vectors. Returns 0 if either vector has zero magnitude or lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
