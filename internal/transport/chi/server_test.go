package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/filedex/internal/config"
	"github.com/kailas-cloud/filedex/internal/domain"
	filesuc "github.com/kailas-cloud/filedex/internal/usecase/files"
	healthuc "github.com/kailas-cloud/filedex/internal/usecase/health"
	"github.com/kailas-cloud/filedex/internal/validation"
	"github.com/kailas-cloud/filedex/internal/vectorstore/memtest"
)

// --- Mocks ---

type stubPipeline struct {
	vec []float32
	err error
}

func (p *stubPipeline) EmbedText(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if p.err != nil {
		return domain.EmbeddingResult{}, p.err
	}
	return domain.EmbeddingResult{Embedding: p.vec, TotalTokens: 1}, nil
}

func (p *stubPipeline) EmbedFile(_ context.Context, _, _ string) (domain.EmbeddingResult, error) {
	if p.err != nil {
		return domain.EmbeddingResult{}, p.err
	}
	return domain.EmbeddingResult{Embedding: p.vec, TotalTokens: 2}, nil
}

func (p *stubPipeline) Dimension() int { return len(p.vec) }

// --- Fixtures ---

func newTestRouter(t *testing.T) (http.Handler, *memtest.Backend) {
	t.Helper()

	backend := memtest.New()
	pipe := &stubPipeline{vec: []float32{1, 0, 0}}
	gate := validation.New(config.ValidationConfig{
		MaxFileSizeMB:     1,
		MaxBatchSizeMB:    2,
		AllowedTypes:      []string{"text/*"},
		BlockedExtensions: []string{".exe"},
	})
	vcfg := config.VectorConfig{
		Dimension:        3,
		MaxTextLength:    512,
		DefaultTopK:      10,
		MaxTopK:          30,
		DefaultListLimit: 10,
		MaxListLimit:     30,
	}

	files := filesuc.New(gate, pipe, backend, vcfg, zap.NewNop())
	health := healthuc.New(backend, nil, vcfg, "test-bucket", "test-index")
	server := NewServer(files, health, zap.NewNop())
	return server.Router(nil), backend
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func tempTextFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

// --- Tests ---

func TestUpload_Created(t *testing.T) {
	router, backend := newTestRouter(t)
	path := tempTextFile(t, "doc.txt", "hello world")

	rr := doJSON(t, router, "POST", "/upload", uploadRequest{FilePath: path})
	if rr.Code != http.StatusCreated {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	resp := decodeBody[uploadResponse](t, rr)
	if resp.Key == "" {
		t.Error("expected a key in the response")
	}
	if resp.FileName != "doc.txt" || resp.ContentType != "text/plain" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if backend.Len() != 1 {
		t.Errorf("expected 1 stored record, got %d", backend.Len())
	}
}

func TestUpload_MissingPath(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, "POST", "/upload", uploadRequest{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestUpload_ValidationFailure(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, "POST", "/upload", uploadRequest{FilePath: "/nonexistent/f.txt"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}

	resp := decodeBody[errorResponse](t, rr)
	if resp.Code != codeValidationFailed {
		t.Errorf("error code: got %s, want %s", resp.Code, codeValidationFailed)
	}
	if resp.Kind != string(domain.KindNotFound) {
		t.Errorf("error kind: got %s, want %s", resp.Kind, domain.KindNotFound)
	}
}

func TestUploadBatch_MixedOutcomes(t *testing.T) {
	router, _ := newTestRouter(t)
	good := tempTextFile(t, "good.txt", "alpha")

	rr := doJSON(t, router, "POST", "/upload-batch", batchUploadRequest{
		Files: []uploadRequest{
			{FilePath: good},
			{FilePath: "/nonexistent/bad.txt"},
		},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeBody[batchUploadResponse](t, rr)
	if len(resp.Uploaded) != 1 || len(resp.Failed) != 1 {
		t.Fatalf("expected 1 uploaded / 1 failed, got %d/%d", len(resp.Uploaded), len(resp.Failed))
	}
}

func TestUploadBatch_TooLargeFailsEveryFile(t *testing.T) {
	router, backend := newTestRouter(t)

	big := make([]byte, 800*1024)
	var files []uploadRequest
	for i := 0; i < 3; i++ {
		files = append(files, uploadRequest{
			FilePath: tempTextFile(t, fmt.Sprintf("f%d.txt", i), string(big)),
		})
	}

	rr := doJSON(t, router, "POST", "/upload-batch", batchUploadRequest{Files: files})
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeBody[batchUploadResponse](t, rr)
	if len(resp.Uploaded) != 0 {
		t.Errorf("expected 0 uploaded, got %d", len(resp.Uploaded))
	}
	if len(resp.Failed) != 3 {
		t.Fatalf("every file must be reported failed, got %d", len(resp.Failed))
	}
	for _, f := range resp.Failed {
		if !strings.Contains(f.Reason, "total batch size") {
			t.Errorf("expected the aggregate reason on %s, got %q", f.FilePath, f.Reason)
		}
	}
	if backend.Len() != 0 {
		t.Error("an oversized batch must store nothing")
	}
}

func TestQuery_ReturnsHits(t *testing.T) {
	router, _ := newTestRouter(t)
	path := tempTextFile(t, "doc.txt", "content")

	up := doJSON(t, router, "POST", "/upload", uploadRequest{FilePath: path})
	uploaded := decodeBody[uploadResponse](t, up)

	rr := doJSON(t, router, "POST", "/query", queryRequest{QueryText: "content"})
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeBody[queryResponse](t, rr)
	if resp.Count != 1 || len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %+v", resp)
	}
	if resp.Results[0].Key != uploaded.Key {
		t.Errorf("expected hit for uploaded key")
	}
}

func TestQuery_BothInputsRejected(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, "POST", "/query", queryRequest{
		QueryText:   "x",
		QueryVector: []float32{1, 0, 0},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}

	resp := decodeBody[errorResponse](t, rr)
	if resp.Code != codeInvalidQuery {
		t.Errorf("error code: got %s, want %s", resp.Code, codeInvalidQuery)
	}
}

func TestQuery_MetadataFilter(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, team := range []string{"x", "y"} {
		path := tempTextFile(t, "doc-"+team+".txt", "content")
		rr := doJSON(t, router, "POST", "/upload", uploadRequest{
			FilePath: path,
			Metadata: map[string]string{"team": team},
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("upload: got %d: %s", rr.Code, rr.Body.String())
		}
	}

	rr := doJSON(t, router, "POST", "/query", queryRequest{
		QueryText: "content",
		Filter:    map[string]string{"team": "x"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeBody[queryResponse](t, rr)
	if resp.Count != 1 {
		t.Fatalf("expected 1 filtered result, got %d", resp.Count)
	}
	if resp.Results[0].Metadata["team"] != "x" {
		t.Errorf("expected the team x record, got %v", resp.Results[0].Metadata)
	}
}

func TestQuery_BackendUnavailableIs503(t *testing.T) {
	router, backend := newTestRouter(t)
	backend.QueryErr = fmt.Errorf("access denied: %w", domain.ErrBackendUnavailable)

	rr := doJSON(t, router, "POST", "/query", queryRequest{QueryText: "anything"})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusServiceUnavailable, rr.Body.String())
	}

	resp := decodeBody[errorResponse](t, rr)
	if resp.Code != codeBackendUnavailable {
		t.Errorf("error code: got %s, want %s", resp.Code, codeBackendUnavailable)
	}
}

func TestQuery_EmptyIndex(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, "POST", "/query", queryRequest{QueryText: "anything"})
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeBody[queryResponse](t, rr)
	if resp.Count != 0 {
		t.Errorf("expected 0 results on empty index, got %d", resp.Count)
	}
}

func TestListFiles_And_GetFile(t *testing.T) {
	router, _ := newTestRouter(t)
	path := tempTextFile(t, "doc.txt", "content")

	up := doJSON(t, router, "POST", "/upload", uploadRequest{FilePath: path})
	uploaded := decodeBody[uploadResponse](t, up)

	rr := doJSON(t, router, "GET", "/files", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: got %d: %s", rr.Code, rr.Body.String())
	}
	list := decodeBody[listFilesResponse](t, rr)
	if list.Count != 1 {
		t.Fatalf("expected 1 file, got %d", list.Count)
	}

	rr = doJSON(t, router, "GET", "/files/"+uploaded.Key, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: got %d: %s", rr.Code, rr.Body.String())
	}
	got := decodeBody[fileSummary](t, rr)
	if got.Key != uploaded.Key || got.FileName != "doc.txt" {
		t.Errorf("unexpected summary: %+v", got)
	}
}

func TestListFiles_InvalidLimit(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, "GET", "/files?limit=abc", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestGetFile_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)
	path := tempTextFile(t, "doc.txt", "content")
	doJSON(t, router, "POST", "/upload", uploadRequest{FilePath: path})

	rr := doJSON(t, router, "GET", "/files/unknown-key", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusNotFound)
	}

	resp := decodeBody[errorResponse](t, rr)
	if resp.Code != codeFileNotFound {
		t.Errorf("error code: got %s, want %s", resp.Code, codeFileNotFound)
	}
}

func TestDeleteFile_OKAndNotFound(t *testing.T) {
	router, backend := newTestRouter(t)
	path := tempTextFile(t, "doc.txt", "content")

	up := doJSON(t, router, "POST", "/upload", uploadRequest{FilePath: path})
	uploaded := decodeBody[uploadResponse](t, up)

	rr := doJSON(t, router, "DELETE", "/files/"+uploaded.Key, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeBody[deleteResponse](t, rr)
	if resp.Status != string(domain.DeleteOK) {
		t.Errorf("expected deleted status, got %s", resp.Status)
	}
	if backend.Has(uploaded.Key) {
		t.Error("record still present after delete")
	}

	// Deleting everything empties the index; a repeat delete is a 404.
	rr = doJSON(t, router, "DELETE", "/files/"+uploaded.Key, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("repeat delete: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestHealth_EmptyIndexIsOK(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, "GET", "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeBody[healthResponse](t, rr)
	if resp.Status != string(healthuc.Healthy) {
		t.Errorf("expected ok status, got %s", resp.Status)
	}
	if resp.Checks["vector_backend"] != string(healthuc.CheckOK) {
		t.Errorf("expected vector_backend ok, got %v", resp.Checks)
	}
	if resp.Bucket != "test-bucket" || resp.Index != "test-index" {
		t.Errorf("expected backend identity, got %+v", resp)
	}
}

func TestHealth_DegradedIs503(t *testing.T) {
	router, backend := newTestRouter(t)
	backend.QueryErr = fmt.Errorf("access denied")

	rr := doJSON(t, router, "GET", "/health", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestValidationConfig(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, "GET", "/validation-config", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusOK)
	}

	limits := decodeBody[validation.Limits](t, rr)
	if limits.MaxFileSizeMB != 1 || limits.MaxBatchSizeMB != 2 {
		t.Errorf("unexpected limits: %+v", limits)
	}
	if len(limits.AllowedTypes) != 1 || limits.AllowedTypes[0] != "text/*" {
		t.Errorf("unexpected allowed types: %v", limits.AllowedTypes)
	}
}
