package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations must return an error that satisfies
// `errors.Is(err, ErrNotFound)`.
var ErrNotFound = errors.New("blob not found")

// BlobStore is an abstraction for storing immutable data blobs.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)

	// Put writes a blob atomically. A blob is either fully visible under
	// name or not visible at all; partially written blobs must never be
	// observable by Open.
	Put(ctx context.Context, name string, data []byte) error

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names of all blobs with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	io.Closer

	// ReadAt reads len(p) bytes starting at off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)

	// Size returns the size of the blob in bytes.
	Size() int64
}

// ReadAll reads the full contents of a blob.
func ReadAll(ctx context.Context, b Blob) ([]byte, error) {
	data := make([]byte, b.Size())
	if len(data) == 0 {
		return data, nil
	}
	n, err := b.ReadAt(ctx, data, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return data[:n], nil
}
