package files

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/filedex/internal/config"
	"github.com/kailas-cloud/filedex/internal/domain"
	"github.com/kailas-cloud/filedex/internal/objectstore"
	"github.com/kailas-cloud/filedex/internal/validation"
	"github.com/kailas-cloud/filedex/internal/vectorstore"
	"github.com/kailas-cloud/filedex/internal/vectorstore/memtest"
)

// --- Mocks ---

// mockPipeline implements Pipeline with overridable function fields.
type mockPipeline struct {
	dim         int
	embedTextFn func(text string) ([]float32, error)
	embedFileFn func(path, contentType string) ([]float32, error)
}

func (m *mockPipeline) EmbedText(_ context.Context, text string) (domain.EmbeddingResult, error) {
	if m.embedTextFn != nil {
		vec, err := m.embedTextFn(text)
		if err != nil {
			return domain.EmbeddingResult{}, err
		}
		return domain.EmbeddingResult{Embedding: vec, TotalTokens: 1}, nil
	}
	return domain.EmbeddingResult{Embedding: m.unit(), TotalTokens: 1}, nil
}

func (m *mockPipeline) EmbedFile(_ context.Context, path, contentType string) (domain.EmbeddingResult, error) {
	if m.embedFileFn != nil {
		vec, err := m.embedFileFn(path, contentType)
		if err != nil {
			return domain.EmbeddingResult{}, err
		}
		return domain.EmbeddingResult{Embedding: vec, TotalTokens: 2}, nil
	}
	return domain.EmbeddingResult{Embedding: m.unit(), TotalTokens: 2}, nil
}

func (m *mockPipeline) Dimension() int { return m.dim }

func (m *mockPipeline) unit() []float32 {
	vec := make([]float32, m.dim)
	vec[0] = 1
	return vec
}

// mockBackend records calls; used where memtest cannot observe the
// adapter's request shaping.
type mockBackend struct {
	putFn    func(records []vectorstore.Record) error
	queryFn  func(q vectorstore.Query) ([]vectorstore.Hit, error)
	deleteFn func(keys []string) error

	lastQuery vectorstore.Query
}

func (m *mockBackend) PutVectors(_ context.Context, records []vectorstore.Record) error {
	if m.putFn != nil {
		return m.putFn(records)
	}
	return nil
}

func (m *mockBackend) QueryVectors(_ context.Context, q vectorstore.Query) ([]vectorstore.Hit, error) {
	m.lastQuery = q
	if m.queryFn != nil {
		return m.queryFn(q)
	}
	return nil, nil
}

func (m *mockBackend) DeleteVectors(_ context.Context, keys []string) error {
	if m.deleteFn != nil {
		return m.deleteFn(keys)
	}
	return nil
}

// mockObjectStore records stored content by record key.
type mockObjectStore struct {
	putErr    error
	deleteErr error
	objects   map[string][]byte
}

func newMockObjectStore() *mockObjectStore {
	return &mockObjectStore{objects: make(map[string][]byte)}
}

func (m *mockObjectStore) Put(_ context.Context, obj objectstore.Object) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return err
	}
	m.objects[obj.Key] = data
	return nil
}

func (m *mockObjectStore) Delete(_ context.Context, key string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.objects, key)
	return nil
}

// --- Fixtures ---

func testVectorConfig() config.VectorConfig {
	return config.VectorConfig{
		Dimension:        3,
		MaxTextLength:    512,
		DefaultTopK:      10,
		MaxTopK:          30,
		DefaultThreshold: 0,
		DefaultListLimit: 10,
		MaxListLimit:     30,
	}
}

func newTestService(t *testing.T, backend Backend, pipe Pipeline, opts ...Option) *Service {
	t.Helper()
	gate := validation.New(config.ValidationConfig{
		MaxFileSizeMB:     1,
		MaxBatchSizeMB:    2,
		AllowedTypes:      []string{"text/*"},
		BlockedExtensions: []string{".exe"},
	})
	opts = append([]Option{WithModelName("test-embedding-model")}, opts...)
	return New(gate, pipe, backend, testVectorConfig(), zap.NewNop(), opts...)
}

func newMemService(t *testing.T) (*Service, *memtest.Backend, *mockPipeline) {
	t.Helper()
	backend := memtest.New()
	pipe := &mockPipeline{dim: 3}
	return newTestService(t, backend, pipe), backend, pipe
}

// newContentService wires an object store alongside the in-memory backend.
func newContentService(t *testing.T) (*Service, *memtest.Backend, *mockObjectStore) {
	t.Helper()
	backend := memtest.New()
	objects := newMockObjectStore()
	pipe := &mockPipeline{dim: 3}
	return newTestService(t, backend, pipe, WithObjectStore(objects)), backend, objects
}

// writeTextFile creates a temp text file and returns its path.
func writeTextFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
