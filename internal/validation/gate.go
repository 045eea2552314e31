// Package validation implements the admission gate applied to every file
// before any embedding or backend work happens. All checks are pure rules
// over file metadata; the gate never touches the network.
package validation

import (
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kailas-cloud/filedex/internal/config"
	"github.com/kailas-cloud/filedex/internal/domain"
)

const fallbackContentType = "application/octet-stream"

// Candidate is one file submitted for validation. ContentType is the
// caller-declared MIME type; empty means "infer from the extension".
type Candidate struct {
	Path        string
	ContentType string
}

// Verdict is the outcome of validating one candidate.
type Verdict struct {
	Path        string
	FileName    string
	FileSize    int64
	ContentType string // normalized, lowercase
	Extension   string // lowercase, leading dot
	Err         error  // nil when the file passed
}

// OK reports whether the file passed all gate rules.
func (v Verdict) OK() bool { return v.Err == nil }

// BatchVerdict aggregates per-file verdicts plus the batch-wide size check.
type BatchVerdict struct {
	Valid     []Verdict
	Invalid   []Verdict
	TotalSize int64
	// Err is set when the aggregate size check rejects the whole batch,
	// regardless of individual verdicts.
	Err error
}

// Gate validates files against configured limits.
type Gate struct {
	maxFileSize  int64
	maxBatchSize int64
	allowEmpty   bool
	allowedTypes map[string]struct{}
	blockedExts  map[string]struct{}
}

// New creates a validation gate from configuration. Allowed types and blocked
// extensions are normalized to lowercase; extensions get a leading dot.
func New(cfg config.ValidationConfig) *Gate {
	allowed := make(map[string]struct{}, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			allowed[t] = struct{}{}
		}
	}

	blocked := make(map[string]struct{}, len(cfg.BlockedExtensions))
	for _, ext := range cfg.BlockedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		blocked[ext] = struct{}{}
	}

	return &Gate{
		maxFileSize:  cfg.MaxFileSizeBytes(),
		maxBatchSize: cfg.MaxBatchSizeBytes(),
		allowEmpty:   cfg.AllowEmpty,
		allowedTypes: allowed,
		blockedExts:  blocked,
	}
}

// ValidateFile applies the gate rules in order; the first failing rule wins.
func (g *Gate) ValidateFile(path, contentType string) Verdict {
	v := Verdict{Path: path, FileName: filepath.Base(path)}

	info, err := os.Stat(path)
	if err != nil {
		v.Err = domain.NewValidationError(domain.KindNotFound, path, "file not found")
		return v
	}
	if info.IsDir() || !info.Mode().IsRegular() {
		v.Err = domain.NewValidationError(domain.KindInvalidPath, path, "path is not a regular file")
		return v
	}

	v.FileSize = info.Size()
	v.Extension = strings.ToLower(filepath.Ext(path))

	if v.FileSize == 0 && !g.allowEmpty {
		v.Err = domain.NewValidationError(domain.KindEmpty, path, "file is empty")
		return v
	}
	if v.FileSize > g.maxFileSize {
		v.Err = domain.NewValidationError(
			domain.KindSizeExceeded, path,
			"file size %.1fMB exceeds maximum %.1fMB",
			mb(v.FileSize), mb(g.maxFileSize),
		)
		return v
	}

	if _, ok := g.blockedExts[v.Extension]; ok {
		v.Err = domain.NewValidationError(
			domain.KindBlockedExtension, path,
			"extension %q is blocked", v.Extension,
		)
		return v
	}

	v.ContentType = resolveContentType(path, contentType)
	if !g.IsTypeAllowed(v.ContentType) {
		v.Err = domain.NewValidationError(
			domain.KindDisallowedType, path,
			"content type %q is not allowed", v.ContentType,
		)
		return v
	}

	return v
}

// ValidateBatch validates each candidate and then applies the aggregate size
// check: when the combined size of the individually valid files exceeds the
// batch limit the whole batch is rejected, even though every file passed on
// its own. Fail-closed to bound aggregate processing cost.
func (g *Gate) ValidateBatch(candidates []Candidate) BatchVerdict {
	var bv BatchVerdict

	for _, c := range candidates {
		v := g.ValidateFile(c.Path, c.ContentType)
		if v.OK() {
			bv.Valid = append(bv.Valid, v)
			bv.TotalSize += v.FileSize
		} else {
			bv.Invalid = append(bv.Invalid, v)
		}
	}

	if bv.TotalSize > g.maxBatchSize {
		bv.Err = domain.NewValidationError(
			domain.KindBatchTooLarge, "",
			"total batch size %.1fMB exceeds maximum %.1fMB",
			mb(bv.TotalSize), mb(g.maxBatchSize),
		)
	}

	return bv
}

// IsTypeAllowed tests allow-set membership using the three match forms:
// exact ("text/plain"), type wildcard ("text/*") and universal ("*/*").
func (g *Gate) IsTypeAllowed(contentType string) bool {
	contentType = strings.ToLower(contentType)
	if _, ok := g.allowedTypes[contentType]; ok {
		return true
	}
	if main, _, found := strings.Cut(contentType, "/"); found {
		if _, ok := g.allowedTypes[main+"/*"]; ok {
			return true
		}
	}
	_, ok := g.allowedTypes["*/*"]
	return ok
}

// Limits reports the gate's effective configuration for the config endpoint.
func (g *Gate) Limits() Limits {
	allowed := make([]string, 0, len(g.allowedTypes))
	for t := range g.allowedTypes {
		allowed = append(allowed, t)
	}
	blocked := make([]string, 0, len(g.blockedExts))
	for e := range g.blockedExts {
		blocked = append(blocked, e)
	}
	sort.Strings(allowed)
	sort.Strings(blocked)
	return Limits{
		MaxFileSizeMB:     mb(g.maxFileSize),
		MaxBatchSizeMB:    mb(g.maxBatchSize),
		AllowEmpty:        g.allowEmpty,
		AllowedTypes:      allowed,
		BlockedExtensions: blocked,
	}
}

// Limits is the externally visible validation configuration.
type Limits struct {
	MaxFileSizeMB     float64  `json:"max_file_size_mb"`
	MaxBatchSizeMB    float64  `json:"max_batch_size_mb"`
	AllowEmpty        bool     `json:"allow_empty_files"`
	AllowedTypes      []string `json:"allowed_types"`
	BlockedExtensions []string `json:"blocked_extensions"`
}

// resolveContentType normalizes the declared type or infers one from the
// file extension, defaulting to application/octet-stream.
func resolveContentType(path, declared string) string {
	if declared != "" {
		return normalizeMediaType(declared)
	}
	if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
		return normalizeMediaType(byExt)
	}
	return fallbackContentType
}

// normalizeMediaType lowercases and strips parameters ("text/plain; charset=utf-8").
func normalizeMediaType(t string) string {
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	base, _, _ := strings.Cut(t, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

func mb(n int64) float64 { return float64(n) / 1024 / 1024 }
