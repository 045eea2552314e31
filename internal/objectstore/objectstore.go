// Package objectstore defines the raw-content store kept alongside the
// vector index. Each stored file's bytes live under the same key as its
// vector record, so the two can be created and removed in step.
package objectstore

import (
	"context"
	"io"
)

// Object is one raw-content item stored alongside a vector record.
type Object struct {
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string
}

// Store persists and removes raw file content.
type Store interface {
	Put(ctx context.Context, obj Object) error
	Delete(ctx context.Context, key string) error
}
