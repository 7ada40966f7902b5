package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/model"
)

func newTestEngine(t *testing.T, blobs blobstore.BlobStore) *Engine {
	t.Helper()
	if blobs == nil {
		blobs = blobstore.NewMemoryStore()
	}
	e, err := Open(context.Background(), Config{Blobs: blobs})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func mustCommit(t *testing.T, e *Engine) uint64 {
	t.Helper()
	gen, err := e.Commit(context.Background())
	require.NoError(t, err)
	return gen
}

func stageDocs(t *testing.T, e *Engine, docs ...model.Document) {
	t.Helper()
	require.NoError(t, e.StageAddBatch(context.Background(), docs))
}

func TestOpenCreatesIndex(t *testing.T) {
	blobs := blobstore.NewMemoryStore()
	e := newTestEngine(t, blobs)

	assert.Equal(t, uint64(1), e.Generation())

	// Creation persisted a manifest and CURRENT.
	names, err := blobs.List(context.Background(), "")
	require.NoError(t, err)
	assert.Contains(t, names, "CURRENT")
	assert.Contains(t, names, "MANIFEST-000001.json")
}

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()

	e1 := newTestEngine(t, blobs)
	stageDocs(t, e1, model.Document{ID: "a", Text: "hello world"})
	gen := mustCommit(t, e1)
	require.NoError(t, e1.Close())

	// Reopening the same store loads, never re-creates.
	e2, err := Open(ctx, Config{Blobs: blobs})
	require.NoError(t, err)
	defer e2.Close()

	assert.Equal(t, gen, e2.Generation())

	doc, ok, err := e2.GetByID(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello world", doc.Text)
}

func TestStageValidation(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	assert.ErrorIs(t, e.StageAdd(ctx, model.Document{Text: "no id"}), ErrEmptyID)
	assert.ErrorIs(t, e.StageDelete(ctx, ""), ErrEmptyID)

	// Batch validation leaves the staging buffer unchanged.
	err := e.StageAddBatch(ctx, []model.Document{
		{ID: "ok", Text: "fine"},
		{ID: "", Text: "broken"},
	})
	assert.ErrorIs(t, err, ErrEmptyID)
	assert.Equal(t, 0, e.Pending())

	err = e.StageDeleteBatch(ctx, []string{"ok", ""})
	assert.ErrorIs(t, err, ErrEmptyID)
	assert.Equal(t, 0, e.Pending())
}

func TestCommitEmptyIsNoOp(t *testing.T) {
	e := newTestEngine(t, nil)
	before := e.Generation()

	gen := mustCommit(t, e)
	assert.Equal(t, before, gen)
}

func TestCommitPublishesGeneration(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	before := e.Generation()

	stageDocs(t, e,
		model.Document{ID: "a", Text: "first"},
		model.Document{ID: "b", Text: "second"},
	)
	assert.Equal(t, 2, e.Pending())

	gen := mustCommit(t, e)
	assert.Equal(t, before+1, gen)
	assert.Equal(t, 0, e.Pending())

	require.NoError(t, e.Reload(ctx))
	stats, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.DocCount)
	assert.Equal(t, gen, stats.Generation)
}

func TestCommitDoesNotAdvanceReader(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	stageDocs(t, e, model.Document{ID: "a", Text: "hidden until reload"})
	mustCommit(t, e)

	// GetByID reads the stale snapshot.
	_, ok, err := e.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, e.Reload(ctx))
	_, ok, err = e.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateOrInsert(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	stageDocs(t, e, model.Document{ID: "a", Text: "old version"})
	mustCommit(t, e)

	stageDocs(t, e, model.Document{ID: "a", Text: "new version"})
	mustCommit(t, e)
	require.NoError(t, e.Reload(ctx))

	doc, ok, err := e.GetByID(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new version", doc.Text)

	// Exactly one live document.
	stats, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocCount)

	// The old version no longer matches searches.
	results, err := e.Search(ctx, "old", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = e.Search(ctx, "new", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Doc.ID)
}

func TestStagedBatchCollapses(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	// Add, delete, re-add the same identifier in one batch: exactly the
	// final version survives.
	require.NoError(t, e.StageAdd(ctx, model.Document{ID: "a", Text: "v1"}))
	require.NoError(t, e.StageDelete(ctx, "a"))
	require.NoError(t, e.StageAdd(ctx, model.Document{ID: "a", Text: "v2"}))
	require.NoError(t, e.StageAdd(ctx, model.Document{ID: "b", Text: "kept"}))
	require.NoError(t, e.StageDelete(ctx, "gone"))
	mustCommit(t, e)
	require.NoError(t, e.Reload(ctx))

	doc, ok, err := e.GetByID(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", doc.Text)

	stats, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.DocCount)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	stageDocs(t, e,
		model.Document{ID: "a", Text: "stay"},
		model.Document{ID: "b", Text: "leave"},
	)
	mustCommit(t, e)

	require.NoError(t, e.StageDelete(ctx, "b"))
	// Deleting an absent identifier is not an error.
	require.NoError(t, e.StageDelete(ctx, "never-existed"))
	mustCommit(t, e)
	require.NoError(t, e.Reload(ctx))

	_, ok, err := e.GetByID(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = e.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	results, err := e.Search(ctx, "leave", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

// faultStore fails every Put after a threshold, simulating a mid-commit
// storage failure.
type faultStore struct {
	blobstore.BlobStore
	remaining int
	armed     bool
}

var errDiskFull = errors.New("disk full")

func (f *faultStore) Put(ctx context.Context, name string, data []byte) error {
	if f.armed {
		if f.remaining <= 0 {
			return errDiskFull
		}
		f.remaining--
	}
	return f.BlobStore.Put(ctx, name, data)
}

func TestCommitFailureIsAtomic(t *testing.T) {
	ctx := context.Background()
	inner := blobstore.NewMemoryStore()
	fs := &faultStore{BlobStore: inner}
	e := newTestEngine(t, fs)

	stageDocs(t, e, model.Document{ID: "a", Text: "visible"})
	mustCommit(t, e)
	require.NoError(t, e.Reload(ctx))
	committed := e.Generation()

	// Fail the very first write of the next commit.
	fs.armed = true
	fs.remaining = 0

	stageDocs(t, e,
		model.Document{ID: "b", Text: "lost one"},
		model.Document{ID: "c", Text: "lost two"},
	)
	_, err := e.Commit(ctx)
	require.ErrorIs(t, err, errDiskFull)

	// Staged operations survive for retry.
	assert.Equal(t, 2, e.Pending())
	assert.Equal(t, committed, e.Generation())

	// Nothing from the failed batch is visible.
	require.NoError(t, e.Reload(ctx))
	stats, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocCount)
	assert.Equal(t, committed, stats.Generation)

	// Retry succeeds once storage recovers.
	fs.armed = false
	gen := mustCommit(t, e)
	assert.Equal(t, committed+1, gen)
	assert.Equal(t, 0, e.Pending())

	require.NoError(t, e.Reload(ctx))
	_, ok, err := e.GetByID(ctx, "c")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCommitFailureLeavesNoOrphanBlobs(t *testing.T) {
	ctx := context.Background()
	inner := blobstore.NewMemoryStore()
	fs := &faultStore{BlobStore: inner}
	e := newTestEngine(t, fs)

	stageDocs(t, e, model.Document{ID: "a", Text: "one"})
	mustCommit(t, e)

	before, err := inner.List(ctx, "")
	require.NoError(t, err)

	// Let the segment write succeed, then fail the manifest write.
	fs.armed = true
	fs.remaining = 1

	require.NoError(t, e.StageDelete(ctx, "a"))
	stageDocs(t, e, model.Document{ID: "b", Text: "two"})
	_, err = e.Commit(ctx)
	require.Error(t, err)

	after, err := inner.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMergeCollapsesSegments(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	e, err := Open(ctx, Config{
		Blobs:  blobs,
		Policy: &TieredCompactionPolicy{Threshold: 3},
	})
	require.NoError(t, err)
	defer e.Close()

	for i := 0; i < 5; i++ {
		stageDocs(t, e, model.Document{
			ID:   fmt.Sprintf("doc-%d", i),
			Text: fmt.Sprintf("payload number %d", i),
		})
		mustCommit(t, e)
	}
	require.NoError(t, e.Reload(ctx))

	stats, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 5, stats.DocCount)
	assert.Less(t, stats.SegmentCount, 5)

	// All documents survive the merges.
	for i := 0; i < 5; i++ {
		_, ok, err := e.GetByID(ctx, fmt.Sprintf("doc-%d", i))
		require.NoError(t, err)
		assert.True(t, ok, "doc-%d", i)
	}

	// Merged-away segment blobs are removed from storage.
	names, err := blobs.List(ctx, "segment_")
	require.NoError(t, err)
	assert.Equal(t, stats.SegmentCount, len(names))
}

func TestMergeDropsTombstonedRows(t *testing.T) {
	ctx := context.Background()
	e, err := Open(ctx, Config{
		Blobs:  blobstore.NewMemoryStore(),
		Policy: &TieredCompactionPolicy{Threshold: 1},
	})
	require.NoError(t, err)
	defer e.Close()

	stageDocs(t, e,
		model.Document{ID: "a", Text: "keep me"},
		model.Document{ID: "b", Text: "drop me"},
	)
	mustCommit(t, e)

	require.NoError(t, e.StageDelete(ctx, "b"))
	stageDocs(t, e, model.Document{ID: "c", Text: "keep too"})
	mustCommit(t, e)
	require.NoError(t, e.Reload(ctx))

	stats, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.DocCount)

	_, ok, err := e.GetByID(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()

	e1 := newTestEngine(t, blobs)
	stageDocs(t, e1,
		model.Document{ID: "a", Text: "the quick brown fox"},
		model.Document{ID: "b", Text: "lazy dogs sleep"},
	)
	mustCommit(t, e1)
	require.NoError(t, e1.StageDelete(ctx, "b"))
	mustCommit(t, e1)
	require.NoError(t, e1.Close())

	e2, err := Open(ctx, Config{Blobs: blobs})
	require.NoError(t, err)
	defer e2.Close()

	// Deletes survive reopen via persisted tombstones.
	_, ok, err := e2.GetByID(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)

	results, err := e2.Search(ctx, "quick fox", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Doc.ID)
}

func TestReloadConvergesAcrossHandles(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()

	writer := newTestEngine(t, blobs)
	reader, err := Open(ctx, Config{Blobs: blobs})
	require.NoError(t, err)
	defer reader.Close()

	stageDocs(t, writer, model.Document{ID: "a", Text: "published elsewhere"})
	gen, err := writer.Commit(ctx)
	require.NoError(t, err)

	// The reader handle sees the writer's commit after reload.
	require.NoError(t, reader.Reload(ctx))
	stats, err := reader.Stats()
	require.NoError(t, err)
	assert.Equal(t, gen, stats.Generation)

	_, ok, err := reader.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	assert.ErrorIs(t, e.StageAdd(ctx, model.Document{ID: "a"}), ErrClosed)
	_, err := e.Commit(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, _, err = e.GetByID(ctx, "a")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = e.Search(ctx, "a", 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCollapseStaged(t *testing.T) {
	docs, deletes := collapseStaged([]Op{
		{Kind: OpAdd, Doc: model.Document{ID: "a", Text: "v1"}},
		{Kind: OpAdd, Doc: model.Document{ID: "b", Text: "b1"}},
		{Kind: OpDelete, ID: "a"},
		{Kind: OpAdd, Doc: model.Document{ID: "a", Text: "v2"}},
		{Kind: OpDelete, ID: "c"},
	})

	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "v2", docs[0].Text)
	assert.Equal(t, "b", docs[1].ID)

	assert.Len(t, deletes, 3)
	for _, id := range []string{"a", "b", "c"} {
		assert.Contains(t, deletes, id)
	}
}
