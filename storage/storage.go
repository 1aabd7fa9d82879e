package storage

import (
	"context"
	"io"
)

// Storage is the warehouse backend. Paths are slash-separated and
// relative to the backend's root.
type Storage interface {
	Write(ctx context.Context, filepath string, data io.Reader) error
	Read(ctx context.Context, filepath string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)

	// URI resolves a relative path to the form query engines consume
	// directly: an absolute filesystem path or an s3:// URL.
	URI(filepath string) string
}
