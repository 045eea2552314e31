// Package vectorstore defines the call contract the adapter holds against
// the managed similarity-search backend. The backend's indexing internals
// are opaque; only put/query/delete semantics are specified here.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for backend classification.
var (
	// ErrEmptyIndex marks the benign validation error an empty index returns
	// for any query vector ("dimension mismatch" against an index that has
	// inferred no dimension yet). Health checks treat it as healthy connectivity.
	ErrEmptyIndex = errors.New("vectorstore: index is empty")
	// ErrDeleteUnsupported marks a deployment without a delete primitive.
	ErrDeleteUnsupported = errors.New("vectorstore: delete not supported")
)

// Record is one vector with its key and string-valued metadata, as persisted
// by the backend.
type Record struct {
	Key      string
	Vector   []float32
	Metadata map[string]string
}

// Query is a single similarity query. TopK must already be clamped by the
// caller; the backend enforces its own hard cap on top of it.
type Query struct {
	Vector         []float32
	TopK           int
	ReturnDistance bool
	ReturnMetadata bool
	// Filter is an exact-match predicate over metadata, passed through
	// to the backend untouched. Nil means no filtering.
	Filter map[string]string
}

// Hit is one query result in backend distance space.
type Hit struct {
	Key      string
	Distance float64
	Metadata map[string]string
}

// Backend is the fixed contract against the remote vector index.
// Bucket, index and credentials are bound at construction time.
type Backend interface {
	PutVectors(ctx context.Context, records []Record) error
	QueryVectors(ctx context.Context, q Query) ([]Hit, error)
	// DeleteVectors removes records by key. Implementations return
	// ErrDeleteUnsupported when the deployment has no delete primitive.
	DeleteVectors(ctx context.Context, keys []string) error
	// Ping performs a lightweight connectivity check.
	Ping(ctx context.Context) error
}

// IsEmptyIndexError reports whether err is the benign empty-index
// validation noise rather than a genuine backend failure.
func IsEmptyIndexError(err error) bool {
	return errors.Is(err, ErrEmptyIndex)
}
