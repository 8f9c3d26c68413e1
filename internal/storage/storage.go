// Package storage provides the object storage used for the aggregate
// export and the converted analytic file.
package storage

import (
	"context"
	"errors"
)

// Sentinel errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts the object store the pipeline reads and
// writes. S3 in production, a local directory in tests.
type ObjectStorage interface {
	// Upload copies a local file to the given object key.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies an object to a local path. Returns
	// ErrObjectNotFound when the object is absent.
	Download(ctx context.Context, objectPath, localPath string) error

	// Exists reports whether an object is present.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// Delete removes an object. Deleting an absent object is not an
	// error.
	Delete(ctx context.Context, objectPath string) error

	// List returns all object keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
