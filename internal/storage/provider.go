// Package storage defines the blob store used for page snapshots and browser
// sessions. Implementations live in the gcs, local and memory subpackages.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by GetObject when no object exists at the path.
var ErrNotFound = errors.New("object not found")

// BlobStore persists opaque objects under slash-separated paths.
type BlobStore interface {
	// PutObject stores the reader's content at path and returns a URI for it.
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	// GetObject returns the content stored at path, or ErrNotFound.
	GetObject(ctx context.Context, path string) ([]byte, error)
}
