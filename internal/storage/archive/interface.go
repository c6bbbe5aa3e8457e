// Package archive provides flat object storage for cache snapshots that must
// outlive the process: a local directory or an S3-compatible bucket.
package archive

import (
	"context"
	"errors"
)

// ErrNotExist is returned by Read and Delete when no object exists at path.
var ErrNotExist = errors.New("archive: object does not exist")

// Storage defines the interface for object storage backends
type Storage interface {
	// Write stores data at the given path, replacing any existing object
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves data from the given path
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths matching the prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the given path
	Delete(ctx context.Context, path string) error
}
