package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput indicates a caller error (empty or whitespace-only
	// text). Not retried and never masked by fallback output.
	ErrInvalidInput = errors.New("invalid input")

	// ErrProviderUnavailable indicates a transport-level failure reaching an
	// embedding or generation provider. Providers raise it instead of
	// silently returning zeros; the pipeline decides the fallback policy.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrTimeout is a timeout reaching a provider. It wraps
	// ErrProviderUnavailable so response mapping treats it the same way,
	// while logs keep the distinction.
	ErrTimeout = fmt.Errorf("request timed out: %w", ErrProviderUnavailable)

	// ErrUpstream is a non-success response from a provider (bad status,
	// malformed body). Also a subtype of ErrProviderUnavailable.
	ErrUpstream = fmt.Errorf("upstream provider error: %w", ErrProviderUnavailable)
)
