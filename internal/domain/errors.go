package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing vector record.
	ErrNotFound = errors.New("not found")
	// ErrValidationFailed is the root of every file validation failure.
	ErrValidationFailed = errors.New("validation failed")
	// ErrInvalidQuery signals a malformed query (vector/text exclusivity, bad bounds).
	ErrInvalidQuery = errors.New("invalid query")
	// ErrVectorDimMismatch signals a vector whose length differs from the index dimension.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrBackendUnavailable signals a vector backend connectivity or service failure.
	ErrBackendUnavailable = errors.New("vector backend unavailable")
)

// ValidationKind identifies which gate rule rejected a file.
type ValidationKind string

const (
	KindNotFound         ValidationKind = "not_found"
	KindInvalidPath      ValidationKind = "invalid_path"
	KindEmpty            ValidationKind = "empty"
	KindSizeExceeded     ValidationKind = "size_exceeded"
	KindBlockedExtension ValidationKind = "blocked_extension"
	KindDisallowedType   ValidationKind = "disallowed_type"
	KindBatchTooLarge    ValidationKind = "batch_too_large"
)

// ValidationError carries the rejecting rule alongside the offending path.
// It unwraps to ErrValidationFailed so transport layers match one sentinel.
type ValidationError struct {
	Kind   ValidationKind
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Path, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// NewValidationError creates a ValidationError for one file.
func NewValidationError(kind ValidationKind, path, format string, args ...any) error {
	return &ValidationError{Kind: kind, Path: path, Reason: fmt.Sprintf(format, args...)}
}

// ValidationKindOf extracts the rule kind from an error chain, or "" if the
// error is not a validation failure.
func ValidationKindOf(err error) ValidationKind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ""
}
