package s3vectors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"

	"github.com/kailas-cloud/filedex/internal/domain"
	"github.com/kailas-cloud/filedex/internal/vectorstore"
)

// classify maps an S3 Vectors API error onto the backend taxonomy. Anything
// that is not one of the two benign classifications below is a fatal backend
// failure and wraps domain.ErrBackendUnavailable.
//
// The one special case: querying an index that holds no vectors fails with a
// ValidationException complaining that the query vector does not match the
// index dimension (the index has not inferred one yet). That is expected
// validation noise, not a connectivity failure, and callers must be able to
// tell the two apart.
func classify(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		msg := apiErr.ErrorMessage()

		if code == "ValidationException" && mentionsDimension(msg) {
			return fmt.Errorf("%s: %s: %w", op, msg, vectorstore.ErrEmptyIndex)
		}
		if code == "NotImplemented" || code == "UnsupportedOperation" {
			return fmt.Errorf("%s: %w", op, vectorstore.ErrDeleteUnsupported)
		}
		return fmt.Errorf("%s: %s: %s: %w: %w", op, code, msg, domain.ErrBackendUnavailable, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrBackendUnavailable, err)
}

func mentionsDimension(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "dimension")
}
