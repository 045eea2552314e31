// Package chi exposes the HTTP API: upload, query, listing, delete,
// health and the validation config endpoint.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/filedex/internal/domain"
	"github.com/kailas-cloud/filedex/internal/metrics"
	filesuc "github.com/kailas-cloud/filedex/internal/usecase/files"
	healthuc "github.com/kailas-cloud/filedex/internal/usecase/health"
	"github.com/kailas-cloud/filedex/internal/validation"
)

// Error codes returned in the JSON error envelope.
type errorCode string

const (
	codeBadRequest         errorCode = "bad_request"
	codeUnauthorized       errorCode = "unauthorized"
	codeValidationFailed   errorCode = "validation_failed"
	codeFileNotFound       errorCode = "file_not_found"
	codeInvalidQuery       errorCode = "invalid_query"
	codeVectorDimMismatch  errorCode = "vector_dim_mismatch"
	codeEmbeddingProvider  errorCode = "embedding_provider_error"
	codeBackendUnavailable errorCode = "backend_unavailable"
	codeInternalError      errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
	Kind    string    `json:"kind,omitempty"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers over the files and health services.
type Server struct {
	files         *filesuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(files *filesuc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		files:  files,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		validationErrorHandler,
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeFileNotFound),
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeInvalidQuery),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, codeVectorDimMismatch),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProvider),
		sentinelHandler(domain.ErrBackendUnavailable, http.StatusServiceUnavailable, codeBackendUnavailable),
	}
	return s
}

// Router builds a standalone router with a minimal middleware chain.
// The composition root assembles its own chain and calls Routes directly.
func (s *Server) Router(apiKeys []string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(apiKeys))
	s.Routes(r)
	return r
}

// Routes registers all API routes on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/upload", s.Upload)
	r.Post("/upload-batch", s.UploadBatch)
	r.Post("/query", s.Query)
	r.Get("/files", s.ListFiles)
	r.Get("/files/{key}", s.GetFile)
	r.Delete("/files/{key}", s.DeleteFile)
	r.Get("/health", s.HealthCheck)
	r.Get("/validation-config", s.ValidationConfig)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
}

// --- Request / response shapes ---

type uploadRequest struct {
	FilePath    string            `json:"file_path"`
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type uploadResponse struct {
	Key         string    `json:"key"`
	FileName    string    `json:"file_name"`
	FileSize    int64     `json:"file_size"`
	ContentType string    `json:"content_type"`
	UploadedAt  time.Time `json:"uploaded_at"`
	TotalTokens int       `json:"total_tokens,omitempty"`
}

type batchUploadRequest struct {
	Files    []uploadRequest   `json:"files"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type batchFailedFile struct {
	FilePath string `json:"file_path"`
	FileName string `json:"file_name,omitempty"`
	Reason   string `json:"reason"`
}

type batchUploadResponse struct {
	Uploaded    []uploadResponse  `json:"uploaded"`
	Failed      []batchFailedFile `json:"failed"`
	TotalTokens int               `json:"total_tokens,omitempty"`
}

type queryRequest struct {
	QueryText           string            `json:"query_text,omitempty"`
	QueryVector         []float32         `json:"query_vector,omitempty"`
	TopK                int               `json:"top_k,omitempty"`
	SimilarityThreshold *float64          `json:"similarity_threshold,omitempty"`
	Filter              map[string]string `json:"filter,omitempty"`
}

type queryHit struct {
	Key        string            `json:"key"`
	Similarity float64           `json:"similarity"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type queryResponse struct {
	Results []queryHit `json:"results"`
	Count   int        `json:"count"`
}

type fileSummary struct {
	Key         string            `json:"key"`
	FileName    string            `json:"file_name"`
	FileSize    int64             `json:"file_size"`
	ContentType string            `json:"content_type"`
	UploadedAt  time.Time         `json:"uploaded_at,omitzero"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type listFilesResponse struct {
	Files []fileSummary `json:"files"`
	Count int           `json:"count"`
}

type deleteResponse struct {
	Key    string `json:"key"`
	Status string `json:"status"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Bucket string            `json:"vector_bucket"`
	Index  string            `json:"vector_index"`
}

// --- Handlers ---

// Upload handles POST /upload.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.FilePath == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "file_path is required")
		return
	}

	res, err := s.files.Upload(r.Context(), req.FilePath, req.ContentType, req.Metadata)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, uploadResultToResponse(res))
}

// UploadBatch handles POST /upload-batch.
func (s *Server) UploadBatch(w http.ResponseWriter, r *http.Request) {
	var req batchUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Files) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "files is required")
		return
	}

	candidates := make([]validation.Candidate, len(req.Files))
	for i, f := range req.Files {
		if f.FilePath == "" {
			writeError(w, http.StatusBadRequest, codeValidationFailed, "file_path is required for every file")
			return
		}
		candidates[i] = validation.Candidate{Path: f.FilePath, ContentType: f.ContentType}
	}

	res, err := s.files.UploadBatch(r.Context(), candidates, req.Metadata)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := batchUploadResponse{
		Uploaded:    make([]uploadResponse, len(res.Uploaded)),
		Failed:      make([]batchFailedFile, len(res.Failed)),
		TotalTokens: res.TotalTokens,
	}
	for i, u := range res.Uploaded {
		resp.Uploaded[i] = uploadResultToResponse(u)
	}
	for i, f := range res.Failed {
		resp.Failed[i] = batchFailedFile{FilePath: f.Path, FileName: f.FileName, Reason: f.Reason}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Query handles POST /query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	hits, err := s.files.Query(r.Context(), filesuc.QueryRequest{
		Text:      req.QueryText,
		Vector:    req.QueryVector,
		TopK:      req.TopK,
		Threshold: req.SimilarityThreshold,
		Filter:    req.Filter,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := queryResponse{Results: make([]queryHit, len(hits)), Count: len(hits)}
	for i, h := range hits {
		resp.Results[i] = queryHit{Key: h.Key, Similarity: h.Similarity, Metadata: h.Metadata}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListFiles handles GET /files.
func (s *Server) ListFiles(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, codeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	summaries, err := s.files.List(r.Context(), limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := listFilesResponse{Files: make([]fileSummary, len(summaries)), Count: len(summaries)}
	for i, sm := range summaries {
		resp.Files[i] = summaryToResponse(sm)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetFile handles GET /files/{key}.
func (s *Server) GetFile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	summary, err := s.files.Get(r.Context(), key)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summaryToResponse(summary))
}

// DeleteFile handles DELETE /files/{key}. A backend without a delete
// primitive answers 202 with an explicit not_supported status instead of
// pretending the record is gone.
func (s *Server) DeleteFile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	outcome, err := s.files.Delete(r.Context(), key)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	switch outcome {
	case domain.DeleteOK:
		writeJSON(w, http.StatusOK, deleteResponse{Key: key, Status: string(domain.DeleteOK)})
	case domain.DeleteNotSupported:
		writeJSON(w, http.StatusAccepted, deleteResponse{Key: key, Status: string(domain.DeleteNotSupported)})
	case domain.DeleteNotFound:
		writeError(w, http.StatusNotFound, codeFileNotFound, "file "+key+" not found")
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
		Bucket: report.Bucket,
		Index:  report.Index,
	})
}

// ValidationConfig handles GET /validation-config.
func (s *Server) ValidationConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.files.ValidationLimits())
}

// --- Error mapping ---

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// validationErrorHandler surfaces the gate's verdict: the message and kind
// are written for clients, so they go out as-is.
func validationErrorHandler(w http.ResponseWriter, err error, _ string) bool {
	if !errors.Is(err, domain.ErrValidationFailed) {
		return false
	}
	resp := errorResponse{Code: codeValidationFailed, Message: "validation failed"}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		resp.Message = ve.Error()
		resp.Kind = string(ve.Kind)
	}
	writeJSON(w, http.StatusBadRequest, resp)
	return true
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrInvalidQuery,
		domain.ErrVectorDimMismatch,
		domain.ErrEmbeddingProviderError,
		domain.ErrBackendUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func uploadResultToResponse(u filesuc.UploadResult) uploadResponse {
	return uploadResponse{
		Key:         u.Key,
		FileName:    u.FileName,
		FileSize:    u.FileSize,
		ContentType: u.ContentType,
		UploadedAt:  u.UploadedAt,
		TotalTokens: u.TotalTokens,
	}
}

func summaryToResponse(s domain.FileSummary) fileSummary {
	return fileSummary{
		Key:         s.Key,
		FileName:    s.FileName,
		FileSize:    s.FileSize,
		ContentType: s.ContentType,
		UploadedAt:  s.UploadedAt,
		Metadata:    s.Metadata,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
