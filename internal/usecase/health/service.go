// Package health aggregates component probes into a single service report.
package health

import (
	"context"

	"github.com/kailas-cloud/filedex/internal/config"
	"github.com/kailas-cloud/filedex/internal/vectorstore"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results with the backend identity
// the service is bound to.
type Report struct {
	Status Status
	Checks map[string]CheckResult
	Bucket string
	Index  string
}

// Service coordinates health checks.
type Service struct {
	backend   BackendProber
	embedding EmbeddingChecker
	cfg       config.VectorConfig
	bucket    string
	index     string
}

// New creates a Service. embedding can be nil.
func New(backend BackendProber, embedding EmbeddingChecker, cfg config.VectorConfig, bucket, index string) *Service {
	return &Service{
		backend:   backend,
		embedding: embedding,
		cfg:       cfg,
		bucket:    bucket,
		index:     index,
	}
}

// Check runs health checks against all components. The backend probe is a
// real similarity query; an empty index answers with a benign validation
// error and still counts as healthy connectivity.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	_, err := s.backend.QueryVectors(ctx, vectorstore.Query{
		Vector: s.cfg.PlaceholderVector(),
		TopK:   1,
	})
	if err != nil && !vectorstore.IsEmptyIndexError(err) {
		checks["vector_backend"] = CheckError
	} else {
		checks["vector_backend"] = CheckOK
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks, Bucket: s.bucket, Index: s.index}
}
