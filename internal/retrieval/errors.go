package retrieval

import "errors"

// ErrNoRelevantActs is the refusal-boundary signal: the corpus has nothing
// relevant for this question. It is a semantic outcome, not a transport
// failure, and callers must distinguish it from StorageError.
var ErrNoRelevantActs = errors.New("retrieval: no relevant acts found")

// ErrEmptySeed is a usage error: FetchRelatedActs was called with no seeds.
var ErrEmptySeed = errors.New("retrieval: seedActIds must not be empty")

// ErrInvalidDepth is a usage error: FetchRelatedActs only supports depth 1 or 2.
var ErrInvalidDepth = errors.New("retrieval: depth must be 1 or 2")

// ErrInvalidDimension is returned when an embedding is wider than the index
// dimension (can't be reconciled by zero-padding) or uses an unsupported
// narrower width.
var ErrInvalidDimension = errors.New("retrieval: unsupported embedding dimension")

// StorageError wraps a transport-level failure talking to the underlying
// store (Postgres or Neo4j).
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "retrieval: " + e.Op + ": " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }
