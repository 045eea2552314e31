package domain

import (
	"strconv"
	"time"
)

// Reserved metadata keys written by the adapter on every upload.
// The backend stores metadata values as strings, so numeric fields are
// serialized on write and parsed back on read.
const (
	MetaFileName       = "file_name"
	MetaFileSize       = "file_size"
	MetaContentType    = "content_type"
	MetaUploadedAt     = "uploaded_at"
	MetaEmbeddingModel = "embedding_model"
	MetaSourcePath     = "source_file_path"
)

// FileRecord is the persisted unit: a unique key, its embedding vector and
// a string-valued metadata map. Keys are generated per upload and never reused.
type FileRecord struct {
	Key      string
	Vector   []float32
	Metadata map[string]string
}

// FileSummary is a listing entry reconstructed from stored metadata.
type FileSummary struct {
	Key         string
	FileName    string
	FileSize    int64
	ContentType string
	UploadedAt  time.Time
	Metadata    map[string]string
}

// SummaryFromMetadata rebuilds a FileSummary from a stored metadata map.
// Missing or malformed derived fields degrade to zero values instead of failing.
func SummaryFromMetadata(key string, md map[string]string) FileSummary {
	s := FileSummary{Key: key, Metadata: md}
	if md == nil {
		return s
	}
	s.FileName = md[MetaFileName]
	s.ContentType = md[MetaContentType]
	if v, err := strconv.ParseInt(md[MetaFileSize], 10, 64); err == nil {
		s.FileSize = v
	}
	if t, err := time.Parse(time.RFC3339Nano, md[MetaUploadedAt]); err == nil {
		s.UploadedAt = t
	}
	return s
}

// QueryHit is one similarity match: key, score in similarity space
// (1 - backend distance) and the stored metadata.
type QueryHit struct {
	Key        string
	Similarity float64
	Metadata   map[string]string
}

// DeleteOutcome is the tri-state result of a delete call. The backend may
// lack a delete primitive in some deployments; that case is reported
// explicitly instead of being masked as success.
type DeleteOutcome string

const (
	DeleteOK           DeleteOutcome = "deleted"
	DeleteNotSupported DeleteOutcome = "not_supported"
	DeleteNotFound     DeleteOutcome = "not_found"
)
