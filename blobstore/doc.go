// Package blobstore abstracts the storage of immutable index artifacts
// (segments, tombstones, manifests).
//
// Implementations:
//   - LocalStore: local filesystem, atomic writes via temp file + rename
//   - MemoryStore: in-memory, for tests and ephemeral indexes
//   - minio.Store: MinIO / S3-compatible object storage
//
// Blobs are written once via Put and never modified in place; superseded
// blobs are removed with Delete.
package blobstore
