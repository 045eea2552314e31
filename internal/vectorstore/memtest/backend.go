// Package memtest provides an in-memory vectorstore.Backend for tests.
// It mirrors the managed backend's observable behavior: cosine distance,
// string metadata, topK capping, exact-match filters, and the benign
// dimension-mismatch error on an empty index.
package memtest

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/kailas-cloud/filedex/internal/vectorstore"
)

// Backend is a thread-safe in-memory vector index.
type Backend struct {
	mu      sync.RWMutex
	records map[string]vectorstore.Record

	// Failure injection for tests.
	PutErr    error
	QueryErr  error
	DeleteErr error
	PingErr   error
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{records: make(map[string]vectorstore.Record)}
}

// PutVectors stores records, overwriting existing keys.
func (b *Backend) PutVectors(_ context.Context, records []vectorstore.Record) error {
	if b.PutErr != nil {
		return b.PutErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range records {
		b.records[r.Key] = r
	}
	return nil
}

// QueryVectors returns up to TopK hits ordered by ascending cosine distance.
// Querying an empty index returns ErrEmptyIndex, like the managed backend.
func (b *Backend) QueryVectors(_ context.Context, q vectorstore.Query) ([]vectorstore.Hit, error) {
	if b.QueryErr != nil {
		return nil, b.QueryErr
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.records) == 0 {
		return nil, vectorstore.ErrEmptyIndex
	}

	hits := make([]vectorstore.Hit, 0, len(b.records))
	for key, r := range b.records {
		if !matchesFilter(r.Metadata, q.Filter) {
			continue
		}
		hit := vectorstore.Hit{Key: key}
		if q.ReturnDistance {
			hit.Distance = 1.0 - cosine(q.Vector, r.Vector)
		}
		if q.ReturnMetadata {
			hit.Metadata = r.Metadata
		}
		hits = append(hits, hit)
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if q.TopK > 0 && len(hits) > q.TopK {
		hits = hits[:q.TopK]
	}
	return hits, nil
}

// DeleteVectors removes records by key. Unknown keys are ignored.
func (b *Backend) DeleteVectors(_ context.Context, keys []string) error {
	if b.DeleteErr != nil {
		return b.DeleteErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.records, k)
	}
	return nil
}

// Ping always succeeds unless a failure is injected.
func (b *Backend) Ping(_ context.Context) error { return b.PingErr }

// Len reports the number of stored records.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}

// Has reports whether a key is stored.
func (b *Backend) Has(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.records[key]
	return ok
}

func matchesFilter(md, filter map[string]string) bool {
	for k, v := range filter {
		if md[k] != v {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
