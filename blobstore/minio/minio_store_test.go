package minio

import (
	"context"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lexgo/blobstore"
)

// TestStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestStore_Integration(t *testing.T) {
	endpoint := "localhost:9000"
	accessKey := "minioadmin"
	secretKey := "minioadmin"
	bucket := "test-lexgo"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	// Check if MinIO is reachable
	_, err = client.ListBuckets(ctx)
	if err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	// Ensure bucket exists
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
		require.NoError(t, err)
	}

	store := NewStore(client, bucket, "test-prefix/")

	// Missing blob
	_, err = store.Open(ctx, "absent.seg")
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	// Put and Open
	data := []byte("hello minio world")
	err = store.Put(ctx, "greeting.seg", data)
	require.NoError(t, err)

	blob, err := store.Open(ctx, "greeting.seg")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, len(data))
	n, err := blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, buf)

	// Ranged read
	part := make([]byte, 5)
	n, err = blob.ReadAt(ctx, part, 6)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	assert.Equal(t, "minio", string(part))
	require.NoError(t, blob.Close())

	// ReadAll helper
	blob, err = store.Open(ctx, "greeting.seg")
	require.NoError(t, err)
	got, err := blobstore.ReadAll(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	require.NoError(t, blob.Close())

	// Overwrite replaces content
	err = store.Put(ctx, "greeting.seg", []byte("short"))
	require.NoError(t, err)
	blob, err = store.Open(ctx, "greeting.seg")
	require.NoError(t, err)
	got, err = blobstore.ReadAll(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, []byte("short"), got)
	require.NoError(t, blob.Close())

	// List honors the prefix filter
	err = store.Put(ctx, "manifest.json", []byte("{}"))
	require.NoError(t, err)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "greeting.seg")
	assert.Contains(t, names, "manifest.json")

	names, err = store.List(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, []string{"greeting.seg"}, names)

	// Delete, idempotently
	require.NoError(t, store.Delete(ctx, "greeting.seg"))
	require.NoError(t, store.Delete(ctx, "greeting.seg"))

	_, err = store.Open(ctx, "greeting.seg")
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	// Cleanup
	_ = store.Delete(ctx, "manifest.json")
}
