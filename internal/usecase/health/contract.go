package health

import (
	"context"

	"github.com/kailas-cloud/filedex/internal/vectorstore"
)

// BackendProber checks vector backend availability. The probe query runs
// against a placeholder vector, so an empty-index validation error still
// proves connectivity.
type BackendProber interface {
	QueryVectors(ctx context.Context, q vectorstore.Query) ([]vectorstore.Hit, error)
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
