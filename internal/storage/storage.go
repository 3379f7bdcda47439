// Package storage provides object storage backends for database backups.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrObjectNotFound is returned when the requested object does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrUploadFailed is returned when an upload operation fails.
	ErrUploadFailed = errors.New("upload failed")
	// ErrDownloadFailed is returned when a download operation fails.
	ErrDownloadFailed = errors.New("download failed")
	// ErrDeleteFailed is returned when a delete operation fails.
	ErrDeleteFailed = errors.New("delete failed")
)

// Backend abstracts the object store that backup archives are written to.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Upload copies a local file to the given object path.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies an object to a local file. Returns ErrObjectNotFound
	// if the object does not exist.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether an object is present.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix, sorted
	// lexicographically.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}
