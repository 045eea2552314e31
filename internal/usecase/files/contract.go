package files

import (
	"context"

	"github.com/kailas-cloud/filedex/internal/domain"
	"github.com/kailas-cloud/filedex/internal/objectstore"
	"github.com/kailas-cloud/filedex/internal/validation"
	"github.com/kailas-cloud/filedex/internal/vectorstore"
)

// Gate validates files before any embedding or backend work.
type Gate interface {
	ValidateFile(path, contentType string) validation.Verdict
	ValidateBatch(candidates []validation.Candidate) validation.BatchVerdict
	Limits() validation.Limits
}

// Pipeline turns file content and query text into vectors.
type Pipeline interface {
	EmbedText(ctx context.Context, text string) (domain.EmbeddingResult, error)
	EmbedFile(ctx context.Context, path, contentType string) (domain.EmbeddingResult, error)
	Dimension() int
}

// Backend is the vector index surface consumed by the adapter.
type Backend interface {
	PutVectors(ctx context.Context, records []vectorstore.Record) error
	QueryVectors(ctx context.Context, q vectorstore.Query) ([]vectorstore.Hit, error)
	DeleteVectors(ctx context.Context, keys []string) error
}

// ObjectStore keeps the raw file content beside the vector index.
type ObjectStore interface {
	Put(ctx context.Context, obj objectstore.Object) error
	Delete(ctx context.Context, key string) error
}
