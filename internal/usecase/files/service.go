// Package files implements the storage adapter: validated files are embedded
// and persisted as vectors, and queries run in similarity space against the
// managed backend.
package files

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/filedex/internal/config"
	"github.com/kailas-cloud/filedex/internal/domain"
	"github.com/kailas-cloud/filedex/internal/metrics"
	"github.com/kailas-cloud/filedex/internal/objectstore"
	"github.com/kailas-cloud/filedex/internal/validation"
	"github.com/kailas-cloud/filedex/internal/vectorstore"
)

// Service coordinates validation, embedding, the vector backend and the
// optional raw-content store.
type Service struct {
	gate    Gate
	pipe    Pipeline
	backend Backend
	objects ObjectStore
	cfg     config.VectorConfig
	logger  *zap.Logger

	model string
	now   func() time.Time
	newID func() string
}

// Option configures optional service behavior.
type Option func(*Service)

// WithModelName records the embedding model identifier in upload metadata.
func WithModelName(name string) Option {
	return func(s *Service) { s.model = name }
}

// WithClock overrides the upload timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithKeyGenerator overrides the record key source.
func WithKeyGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// WithObjectStore stores each file's raw bytes under its record key, beside
// the vector. Without it the service runs vectors-only.
func WithObjectStore(store ObjectStore) Option {
	return func(s *Service) { s.objects = store }
}

// New creates the files service.
func New(gate Gate, pipe Pipeline, backend Backend, cfg config.VectorConfig, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		gate:    gate,
		pipe:    pipe,
		backend: backend,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UploadResult describes one successfully stored file.
type UploadResult struct {
	Key         string
	FileName    string
	FileSize    int64
	ContentType string
	UploadedAt  time.Time
	TotalTokens int
}

// FailedFile is one file rejected or failed during a batch upload.
type FailedFile struct {
	Path     string
	FileName string
	Reason   string
}

// BatchResult aggregates per-file outcomes of a batch upload.
type BatchResult struct {
	Uploaded    []UploadResult
	Failed      []FailedFile
	TotalTokens int
}

// QueryRequest is a similarity query. Exactly one of Text or Vector must be
// set. Zero TopK and nil Threshold take the configured defaults. Filter
// restricts hits to records whose metadata matches every entry exactly.
type QueryRequest struct {
	Text      string
	Vector    []float32
	TopK      int
	Threshold *float64
	Filter    map[string]string
}

// Upload validates, embeds and stores a single file. Metadata passed by the
// caller is merged in; reserved keys always win.
func (s *Service) Upload(ctx context.Context, path, contentType string, metadata map[string]string) (UploadResult, error) {
	v := s.gate.ValidateFile(path, contentType)
	if !v.OK() {
		return UploadResult{}, v.Err
	}

	emb, err := s.pipe.EmbedFile(ctx, v.Path, v.ContentType)
	if err != nil {
		return UploadResult{}, fmt.Errorf("embed file: %w", err)
	}

	rec := s.buildRecord(v, emb.Embedding, metadata)
	if err := s.backend.PutVectors(ctx, []vectorstore.Record{rec}); err != nil {
		return UploadResult{}, fmt.Errorf("store vector: %w", err)
	}

	if err := s.storeContent(ctx, rec.Key, v); err != nil {
		// Content and vector stay in step: drop the vector when its raw
		// bytes cannot be stored.
		s.rollbackVector(ctx, rec.Key)
		return UploadResult{}, err
	}

	s.logger.Info("file uploaded",
		zap.String("key", rec.Key),
		zap.String("file_name", v.FileName),
		zap.Int64("file_size", v.FileSize),
		zap.String("content_type", v.ContentType),
	)

	return s.resultFromRecord(rec, v, emb.TotalTokens), nil
}

// UploadBatch validates the whole batch first, then embeds valid files one by
// one so a single extraction or provider failure only loses that file. All
// surviving records go to the backend in one put call, which either persists
// all of them or none.
func (s *Service) UploadBatch(ctx context.Context, candidates []validation.Candidate, metadata map[string]string) (BatchResult, error) {
	bv := s.gate.ValidateBatch(candidates)
	if bv.Err != nil {
		// An oversized batch fails every file with the one aggregate reason,
		// including files that passed their individual checks.
		reason := bv.Err.Error()
		var ve *domain.ValidationError
		if errors.As(bv.Err, &ve) {
			reason = ve.Reason
		}

		var result BatchResult
		for _, v := range append(bv.Valid, bv.Invalid...) {
			result.Failed = append(result.Failed, FailedFile{
				Path:     v.Path,
				FileName: v.FileName,
				Reason:   reason,
			})
		}
		return result, nil
	}

	var result BatchResult
	for _, v := range bv.Invalid {
		result.Failed = append(result.Failed, FailedFile{
			Path:     v.Path,
			FileName: v.FileName,
			Reason:   v.Err.Error(),
		})
	}

	var (
		records  []vectorstore.Record
		verdicts []validation.Verdict
		tokens   []int
	)
	for _, v := range bv.Valid {
		emb, err := s.pipe.EmbedFile(ctx, v.Path, v.ContentType)
		if err != nil {
			s.logger.Warn("batch file embed failed",
				zap.String("path", v.Path), zap.Error(err))
			result.Failed = append(result.Failed, FailedFile{
				Path:     v.Path,
				FileName: v.FileName,
				Reason:   err.Error(),
			})
			continue
		}
		records = append(records, s.buildRecord(v, emb.Embedding, metadata))
		verdicts = append(verdicts, v)
		tokens = append(tokens, emb.TotalTokens)
	}

	if len(records) == 0 {
		return result, nil
	}

	if err := s.backend.PutVectors(ctx, records); err != nil {
		// One put call covers the whole batch, so a failure loses every
		// embedded file, not a subset.
		for i, rec := range records {
			result.Failed = append(result.Failed, FailedFile{
				Path:     verdicts[i].Path,
				FileName: verdicts[i].FileName,
				Reason:   fmt.Sprintf("store vector %s: %v", rec.Key, err),
			})
		}
		return result, nil
	}

	for i, rec := range records {
		if err := s.storeContent(ctx, rec.Key, verdicts[i]); err != nil {
			s.logger.Warn("batch content store failed",
				zap.String("path", verdicts[i].Path), zap.Error(err))
			s.rollbackVector(ctx, rec.Key)
			result.Failed = append(result.Failed, FailedFile{
				Path:     verdicts[i].Path,
				FileName: verdicts[i].FileName,
				Reason:   err.Error(),
			})
			continue
		}
		result.Uploaded = append(result.Uploaded, s.resultFromRecord(rec, verdicts[i], tokens[i]))
		result.TotalTokens += tokens[i]
	}

	s.logger.Info("batch uploaded",
		zap.Int("uploaded", len(result.Uploaded)),
		zap.Int("failed", len(result.Failed)),
	)

	return result, nil
}

// Query runs a similarity search from query text or a raw vector and returns
// hits in similarity space, ordered most similar first.
func (s *Service) Query(ctx context.Context, req QueryRequest) ([]domain.QueryHit, error) {
	vector, err := s.queryVector(ctx, req)
	if err != nil {
		return nil, err
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}
	if topK > s.cfg.MaxTopK {
		s.logger.Warn("top_k clamped to backend maximum",
			zap.Int("requested", topK), zap.Int("max", s.cfg.MaxTopK))
		metrics.QueryTopKClampedTotal.Inc()
		topK = s.cfg.MaxTopK
	}

	threshold := s.cfg.DefaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	hits, err := s.backend.QueryVectors(ctx, vectorstore.Query{
		Vector:         vector,
		TopK:           topK,
		ReturnDistance: true,
		ReturnMetadata: true,
		Filter:         req.Filter,
	})
	if err != nil {
		if vectorstore.IsEmptyIndexError(err) {
			return []domain.QueryHit{}, nil
		}
		return nil, fmt.Errorf("query vectors: %w", err)
	}

	results := make([]domain.QueryHit, 0, len(hits))
	for _, h := range hits {
		sim := 1 - h.Distance
		if sim < threshold {
			continue
		}
		results = append(results, domain.QueryHit{
			Key:        h.Key,
			Similarity: sim,
			Metadata:   h.Metadata,
		})
	}
	return results, nil
}

// List returns stored file summaries. The backend has no enumeration
// primitive, so listing is a similarity query against a fixed placeholder
// vector: best effort, capped at the backend's query limit.
func (s *Service) List(ctx context.Context, limit int) ([]domain.FileSummary, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultListLimit
	}
	if limit > s.cfg.MaxListLimit {
		limit = s.cfg.MaxListLimit
	}

	hits, err := s.placeholderQuery(ctx, limit)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.FileSummary, 0, len(hits))
	for _, h := range hits {
		summaries = append(summaries, domain.SummaryFromMetadata(h.Key, h.Metadata))
	}
	return summaries, nil
}

// Get returns the summary for one stored file. Lookup reuses the placeholder
// query, so a record beyond the backend's query cap is reported as not found.
func (s *Service) Get(ctx context.Context, key string) (domain.FileSummary, error) {
	hits, err := s.placeholderQuery(ctx, s.cfg.MaxListLimit)
	if err != nil {
		return domain.FileSummary{}, err
	}

	for _, h := range hits {
		if h.Key == key {
			return domain.SummaryFromMetadata(h.Key, h.Metadata), nil
		}
	}
	return domain.FileSummary{}, fmt.Errorf("file %s: %w", key, domain.ErrNotFound)
}

// Delete removes one stored file. The outcome is tri-state: a deployment
// without a delete primitive reports DeleteNotSupported instead of faking
// success, and a missing key reports DeleteNotFound.
func (s *Service) Delete(ctx context.Context, key string) (domain.DeleteOutcome, error) {
	if _, err := s.Get(ctx, key); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.DeleteNotFound, nil
		}
		return "", err
	}

	if err := s.backend.DeleteVectors(ctx, []string{key}); err != nil {
		if errors.Is(err, vectorstore.ErrDeleteUnsupported) {
			s.logger.Warn("backend has no delete primitive", zap.String("key", key))
			return domain.DeleteNotSupported, nil
		}
		return "", fmt.Errorf("delete vector: %w", err)
	}

	if s.objects != nil {
		if err := s.objects.Delete(ctx, key); err != nil {
			// The vector record is already gone; the orphaned object is
			// logged, not surfaced.
			s.logger.Warn("failed to delete content object",
				zap.String("key", key), zap.Error(err))
		}
	}

	s.logger.Info("file deleted", zap.String("key", key))
	return domain.DeleteOK, nil
}

// ValidationLimits reports the effective validation configuration.
func (s *Service) ValidationLimits() validation.Limits {
	return s.gate.Limits()
}

// queryVector resolves the search vector from the request: embeds the text,
// or checks the raw vector's dimension.
func (s *Service) queryVector(ctx context.Context, req QueryRequest) ([]float32, error) {
	hasText := req.Text != ""
	hasVector := len(req.Vector) > 0

	switch {
	case hasText && hasVector:
		return nil, fmt.Errorf("both query text and vector provided: %w", domain.ErrInvalidQuery)
	case !hasText && !hasVector:
		return nil, fmt.Errorf("query text or vector required: %w", domain.ErrInvalidQuery)
	case hasVector:
		if len(req.Vector) != s.pipe.Dimension() {
			return nil, fmt.Errorf("query vector has dimension %d, index expects %d: %w",
				len(req.Vector), s.pipe.Dimension(), domain.ErrVectorDimMismatch)
		}
		return req.Vector, nil
	default:
		emb, err := s.pipe.EmbedText(ctx, req.Text)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		return emb.Embedding, nil
	}
}

// placeholderQuery runs the fixed-vector query behind List/Get. An empty
// index yields zero hits, not an error.
func (s *Service) placeholderQuery(ctx context.Context, topK int) ([]vectorstore.Hit, error) {
	hits, err := s.backend.QueryVectors(ctx, vectorstore.Query{
		Vector:         s.cfg.PlaceholderVector(),
		TopK:           topK,
		ReturnMetadata: true,
	})
	if err != nil {
		if vectorstore.IsEmptyIndexError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list vectors: %w", err)
	}
	return hits, nil
}

// storeContent uploads the raw file under its record key. A nil store means
// vectors-only mode.
func (s *Service) storeContent(ctx context.Context, key string, v validation.Verdict) error {
	if s.objects == nil {
		return nil
	}

	f, err := os.Open(v.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", v.Path, err)
	}
	defer func() { _ = f.Close() }()

	if err := s.objects.Put(ctx, objectstore.Object{
		Key:         key,
		Body:        f,
		Size:        v.FileSize,
		ContentType: v.ContentType,
	}); err != nil {
		return fmt.Errorf("store content %s: %w", key, err)
	}
	return nil
}

// rollbackVector removes a vector record written before a later step failed.
func (s *Service) rollbackVector(ctx context.Context, key string) {
	if err := s.backend.DeleteVectors(ctx, []string{key}); err != nil {
		s.logger.Warn("failed to roll back vector record",
			zap.String("key", key), zap.Error(err))
	}
}

func (s *Service) buildRecord(v validation.Verdict, vector []float32, extra map[string]string) vectorstore.Record {
	md := make(map[string]string, len(extra)+6)
	for k, val := range extra {
		md[k] = val
	}
	md[domain.MetaFileName] = v.FileName
	md[domain.MetaFileSize] = fmt.Sprintf("%d", v.FileSize)
	md[domain.MetaContentType] = v.ContentType
	md[domain.MetaUploadedAt] = s.now().UTC().Format(time.RFC3339Nano)
	md[domain.MetaSourcePath] = v.Path
	if s.model != "" {
		md[domain.MetaEmbeddingModel] = s.model
	}

	return vectorstore.Record{
		Key:      s.newID(),
		Vector:   vector,
		Metadata: md,
	}
}

func (s *Service) resultFromRecord(rec vectorstore.Record, v validation.Verdict, tokens int) UploadResult {
	uploadedAt, _ := time.Parse(time.RFC3339Nano, rec.Metadata[domain.MetaUploadedAt])
	return UploadResult{
		Key:         rec.Key,
		FileName:    v.FileName,
		FileSize:    v.FileSize,
		ContentType: v.ContentType,
		UploadedAt:  uploadedAt,
		TotalTokens: tokens,
	}
}
