// Package engine implements the write/commit protocol and the snapshot
// reader of a lexgo index.
//
// One Engine instance exclusively owns its storage location. All mutations
// go through a staging buffer guarded by a single writer lock; Commit
// publishes the staged operations as the next generation: it writes the new
// segment and tombstone blobs first and then atomically advances the
// manifest, which is the durability boundary. Readers never block on the
// writer: they acquire a ref-counted Snapshot published through an atomic
// pointer, and a concurrent commit leaves in-flight reads on the older
// generation intact.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/internal/segment"
	"github.com/hupe1980/lexgo/manifest"
	"github.com/hupe1980/lexgo/model"
	"github.com/hupe1980/lexgo/schema"
)

// OpKind tags a staged operation.
type OpKind uint8

const (
	// OpAdd stages an add. At commit time it behaves as an unconditional
	// delete of the identifier followed by the add, which is how
	// update-or-insert is achieved.
	OpAdd OpKind = iota + 1
	// OpDelete stages a delete-by-identifier.
	OpDelete
)

// Op is a staged add or delete held by the writer until commit.
type Op struct {
	Kind OpKind
	Doc  model.Document // OpAdd
	ID   string         // OpDelete
}

// Config carries the collaborators of an Engine. Zero-value fields fall
// back to defaults (noop metrics, discard logger, tiered merges); the
// zero Compression stores segments uncompressed.
type Config struct {
	Blobs       blobstore.BlobStore
	Logger      *slog.Logger
	Metrics     MetricsObserver
	Policy      CompactionPolicy
	Compression segment.Compression
}

// Engine is the single-writer, multi-reader core of an index.
type Engine struct {
	mu     sync.Mutex // serializes staging, commit, and close
	staged []Op
	meta   *manifest.Manifest // writer's view of the committed state
	closed bool

	blobs     blobstore.BlobStore
	manifests *manifest.Store

	// open segments shared between the writer and snapshots, keyed by ID.
	segMu    sync.Mutex
	segments map[model.SegmentID]*RefCountedSegment

	// writer's view of the committed tombstone sets.
	tombstones map[model.SegmentID]*roaring.Bitmap

	current atomic.Pointer[Snapshot]
	swapMu  sync.Mutex
	reload  singleflight.Group

	policy      CompactionPolicy
	compression segment.Compression
	metrics     MetricsObserver
	logger      *slog.Logger
}

// Open opens the index at the configured blob store, creating it when no
// manifest exists yet. Creation persists the fixed two-field schema before
// any document write is accepted; reopening validates the persisted schema
// and fails fast on a mismatch. Open is idempotent with respect to creation:
// opening an already-initialized location simply loads it.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Blobs == nil {
		return nil, errors.New("engine: blob store is required")
	}

	e := &Engine{
		blobs:       cfg.Blobs,
		manifests:   manifest.NewStore(cfg.Blobs),
		segments:    make(map[model.SegmentID]*RefCountedSegment),
		tombstones:  make(map[model.SegmentID]*roaring.Bitmap),
		policy:      cfg.Policy,
		compression: cfg.Compression,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
	if e.policy == nil {
		e.policy = &TieredCompactionPolicy{Threshold: 8}
	}
	if e.metrics == nil {
		e.metrics = NoopMetricsObserver{}
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	m, err := e.manifests.Load(ctx)
	if errors.Is(err, manifest.ErrNotExist) {
		m = &manifest.Manifest{
			NextSegmentID: 1,
			Schema:        schema.Default(),
		}
		if err := e.manifests.Save(ctx, m); err != nil {
			return nil, fmt.Errorf("failed to create index: %w", err)
		}
		e.logger.Info("index created", "generation", m.Generation)
	} else if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	} else {
		if err := m.Schema.Validate(); err != nil {
			return nil, err
		}
	}

	views := make([]*segmentView, 0, len(m.Segments))
	for _, info := range m.Segments {
		seg, err := e.openSegment(ctx, info)
		if err != nil {
			return nil, err
		}
		rc := NewRefCountedSegment(seg)
		e.segments[info.ID] = rc

		tomb, err := e.loadTombstones(ctx, info)
		if err != nil {
			return nil, err
		}
		if tomb != nil {
			e.tombstones[info.ID] = tomb
		}

		rc.IncRef() // snapshot's reference
		views = append(views, &segmentView{seg: rc, tombstones: tomb})
	}

	e.meta = m
	e.current.Store(NewSnapshot(m.Generation, views))

	e.logger.Info("index opened",
		"generation", m.Generation,
		"segments", len(m.Segments),
	)

	return e, nil
}

func segmentBlobName(id model.SegmentID) string {
	return fmt.Sprintf("segment_%08d.seg", id)
}

func tombstoneBlobName(id model.SegmentID, generation uint64) string {
	return fmt.Sprintf("segment_%08d.tomb-%06d", id, generation)
}

func (e *Engine) openSegment(ctx context.Context, info manifest.SegmentInfo) (*segment.Segment, error) {
	b, err := e.blobs.Open(ctx, info.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment %d: %w", info.ID, err)
	}
	defer b.Close()

	data, err := blobstore.ReadAll(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to read segment %d: %w", info.ID, err)
	}
	return segment.Open(info.ID, data)
}

func (e *Engine) loadTombstones(ctx context.Context, info manifest.SegmentInfo) (*roaring.Bitmap, error) {
	if info.TombstonePath == "" {
		return nil, nil
	}
	b, err := e.blobs.Open(ctx, info.TombstonePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open tombstones for segment %d: %w", info.ID, err)
	}
	defer b.Close()

	data, err := blobstore.ReadAll(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to read tombstones for segment %d: %w", info.ID, err)
	}
	bm := roaring.New()
	if err := bm.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to decode tombstones for segment %d: %w", info.ID, err)
	}
	return bm, nil
}

// StageAdd stages an update-or-insert of doc. Not visible until Commit.
func (e *Engine) StageAdd(_ context.Context, doc model.Document) error {
	if doc.ID == "" {
		return ErrEmptyID
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.staged = append(e.staged, Op{Kind: OpAdd, Doc: doc})
	return nil
}

// StageDelete stages a delete-by-identifier. Not visible until Commit.
func (e *Engine) StageDelete(_ context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.staged = append(e.staged, Op{Kind: OpDelete, ID: id})
	return nil
}

// StageAddBatch stages all docs under one acquisition of the writer lock.
// Either all items are staged or none: a validation failure leaves the
// staging buffer unchanged.
func (e *Engine) StageAddBatch(_ context.Context, docs []model.Document) error {
	for _, doc := range docs {
		if doc.ID == "" {
			return ErrEmptyID
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	for _, doc := range docs {
		e.staged = append(e.staged, Op{Kind: OpAdd, Doc: doc})
	}
	return nil
}

// StageDeleteBatch stages all deletes under one acquisition of the writer
// lock.
func (e *Engine) StageDeleteBatch(_ context.Context, ids []string) error {
	for _, id := range ids {
		if id == "" {
			return ErrEmptyID
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	for _, id := range ids {
		e.staged = append(e.staged, Op{Kind: OpDelete, ID: id})
	}
	return nil
}

// Commit atomically publishes all staged operations as the next generation
// and clears the staging buffer. On persistence failure the staging buffer
// is left unchanged so the caller may retry or abort. Committing an empty
// staging buffer is a no-op that returns the current generation.
//
// Commit does not advance the reader's snapshot; callers observe the new
// generation after Reload (Search reloads implicitly).
func (e *Engine) Commit(ctx context.Context) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, ErrClosed
	}
	if len(e.staged) == 0 {
		return e.meta.Generation, nil
	}

	start := time.Now()

	newDocs, deletes := collapseStaged(e.staged)

	gen, err := e.commitLocked(ctx, newDocs, deletes)
	e.metrics.OnCommit(time.Since(start), len(newDocs), len(deletes), err)
	if err != nil {
		e.logger.Error("commit failed", "error", err)
		return 0, err
	}

	e.staged = e.staged[:0]
	e.logger.Info("commit published",
		"generation", gen,
		"added", len(newDocs),
		"deleted", len(deletes),
		"duration", time.Since(start),
	)
	return gen, nil
}

// collapseStaged reduces the staged operation sequence to the documents the
// new segment will contain and the set of identifiers to delete from prior
// segments. Every add implies a delete of its identifier, so re-adding an
// identifier within one batch leaves exactly the latest version alive, and
// a delete following an add removes the document entirely.
func collapseStaged(staged []Op) ([]model.Document, map[string]struct{}) {
	adds := make(map[string]model.Document)
	addOrder := make([]string, 0, len(staged))
	deletes := make(map[string]struct{})

	for _, op := range staged {
		switch op.Kind {
		case OpAdd:
			deletes[op.Doc.ID] = struct{}{}
			if _, ok := adds[op.Doc.ID]; !ok {
				addOrder = append(addOrder, op.Doc.ID)
			}
			adds[op.Doc.ID] = op.Doc
		case OpDelete:
			deletes[op.ID] = struct{}{}
			delete(adds, op.ID)
		}
	}

	docs := make([]model.Document, 0, len(adds))
	seen := make(map[string]struct{}, len(adds))
	for _, id := range addOrder {
		doc, ok := adds[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		docs = append(docs, doc)
	}
	return docs, deletes
}

func (e *Engine) commitLocked(ctx context.Context, newDocs []model.Document, deletes map[string]struct{}) (uint64, error) {
	nextGen := e.meta.Generation + 1

	// Extend tombstone sets of prior segments with the staged deletes.
	// Bitmaps are cloned so a failed commit leaves the committed state
	// untouched.
	updated := make(map[model.SegmentID]*roaring.Bitmap)
	e.segMu.Lock()
	for _, info := range e.meta.Segments {
		seg := e.segments[info.ID]
		prior := e.tombstones[info.ID]
		for id := range deletes {
			row, ok := seg.RowOf(id)
			if !ok {
				continue
			}
			if prior != nil && prior.Contains(uint32(row)) {
				continue
			}
			bm := updated[info.ID]
			if bm == nil {
				if prior != nil {
					bm = prior.Clone()
				} else {
					bm = roaring.New()
				}
				updated[info.ID] = bm
			}
			bm.Add(uint32(row))
		}
	}
	e.segMu.Unlock()

	segmentCount := len(e.meta.Segments)
	if len(newDocs) > 0 {
		segmentCount++
	}

	if e.policy.ShouldMerge(segmentCount) && segmentCount > 1 {
		return e.commitMerged(ctx, newDocs, updated)
	}
	return e.commitAppend(ctx, nextGen, newDocs, updated)
}

// commitAppend publishes the staged batch as one additional segment plus
// updated tombstone sets.
func (e *Engine) commitAppend(ctx context.Context, nextGen uint64, newDocs []model.Document, updated map[model.SegmentID]*roaring.Bitmap) (uint64, error) {
	var orphans []string
	cleanup := func() {
		for _, name := range orphans {
			_ = e.blobs.Delete(ctx, name)
		}
	}

	newInfos := make([]manifest.SegmentInfo, len(e.meta.Segments))
	copy(newInfos, e.meta.Segments)

	var superseded []string
	for i := range newInfos {
		bm, ok := updated[newInfos[i].ID]
		if !ok {
			continue
		}
		name := tombstoneBlobName(newInfos[i].ID, nextGen)
		data, err := bm.MarshalBinary()
		if err != nil {
			cleanup()
			return 0, fmt.Errorf("failed to encode tombstones: %w", err)
		}
		if err := e.blobs.Put(ctx, name, data); err != nil {
			cleanup()
			return 0, fmt.Errorf("failed to write tombstones: %w", err)
		}
		orphans = append(orphans, name)
		if newInfos[i].TombstonePath != "" {
			superseded = append(superseded, newInfos[i].TombstonePath)
		}
		newInfos[i].TombstonePath = name
	}

	nextSegmentID := e.meta.NextSegmentID
	var newSeg *segment.Segment
	if len(newDocs) > 0 {
		newSeg = segment.Build(nextSegmentID, newDocs)
		data, err := newSeg.Marshal(e.compression)
		if err != nil {
			cleanup()
			return 0, fmt.Errorf("failed to encode segment: %w", err)
		}
		name := segmentBlobName(newSeg.ID())
		if err := e.blobs.Put(ctx, name, data); err != nil {
			cleanup()
			return 0, fmt.Errorf("failed to write segment: %w", err)
		}
		orphans = append(orphans, name)
		newInfos = append(newInfos, manifest.SegmentInfo{
			ID:       newSeg.ID(),
			DocCount: uint32(newSeg.DocCount()),
			Path:     name,
		})
		nextSegmentID++
	}

	newMeta := &manifest.Manifest{
		Generation:    e.meta.Generation,
		NextSegmentID: nextSegmentID,
		Schema:        e.meta.Schema,
		Segments:      newInfos,
	}
	if err := e.manifests.Save(ctx, newMeta); err != nil {
		cleanup()
		return 0, fmt.Errorf("failed to save manifest: %w", err)
	}

	// Published. Update the writer's view and drop superseded blobs.
	e.segMu.Lock()
	if newSeg != nil {
		e.segments[newSeg.ID()] = NewRefCountedSegment(newSeg)
	}
	for id, bm := range updated {
		e.tombstones[id] = bm
	}
	e.segMu.Unlock()
	e.meta = newMeta

	for _, name := range superseded {
		_ = e.blobs.Delete(ctx, name)
	}

	return newMeta.Generation, nil
}

// commitMerged folds all live rows plus the staged batch into a single
// fresh segment, dropping tombstoned rows for good.
func (e *Engine) commitMerged(ctx context.Context, newDocs []model.Document, updated map[model.SegmentID]*roaring.Bitmap) (uint64, error) {
	start := time.Now()
	inputs := len(e.meta.Segments)

	var docs []model.Document
	e.segMu.Lock()
	for _, info := range e.meta.Segments {
		seg := e.segments[info.ID]
		tomb := updated[info.ID]
		if tomb == nil {
			tomb = e.tombstones[info.ID]
		}
		for row := 0; row < seg.DocCount(); row++ {
			if tomb != nil && tomb.Contains(uint32(row)) {
				continue
			}
			doc, _ := seg.Doc(model.RowID(row))
			docs = append(docs, doc)
		}
	}
	e.segMu.Unlock()
	docs = append(docs, newDocs...)

	newInfos := make([]manifest.SegmentInfo, 0, 1)
	nextSegmentID := e.meta.NextSegmentID
	var newSeg *segment.Segment
	var blobName string

	if len(docs) > 0 {
		newSeg = segment.Build(nextSegmentID, docs)
		data, err := newSeg.Marshal(e.compression)
		if err != nil {
			e.metrics.OnMerge(time.Since(start), inputs, 0, err)
			return 0, fmt.Errorf("failed to encode merged segment: %w", err)
		}
		blobName = segmentBlobName(newSeg.ID())
		if err := e.blobs.Put(ctx, blobName, data); err != nil {
			e.metrics.OnMerge(time.Since(start), inputs, 0, err)
			return 0, fmt.Errorf("failed to write merged segment: %w", err)
		}
		newInfos = append(newInfos, manifest.SegmentInfo{
			ID:       newSeg.ID(),
			DocCount: uint32(newSeg.DocCount()),
			Path:     blobName,
		})
		nextSegmentID++
	}

	oldInfos := e.meta.Segments
	newMeta := &manifest.Manifest{
		Generation:    e.meta.Generation,
		NextSegmentID: nextSegmentID,
		Schema:        e.meta.Schema,
		Segments:      newInfos,
	}
	if err := e.manifests.Save(ctx, newMeta); err != nil {
		if blobName != "" {
			_ = e.blobs.Delete(ctx, blobName)
		}
		e.metrics.OnMerge(time.Since(start), inputs, 0, err)
		return 0, fmt.Errorf("failed to save manifest: %w", err)
	}

	e.segMu.Lock()
	if newSeg != nil {
		e.segments[newSeg.ID()] = NewRefCountedSegment(newSeg)
	}
	for _, info := range oldInfos {
		if rc, ok := e.segments[info.ID]; ok {
			delete(e.segments, info.ID)
			rc.DecRef()
		}
		delete(e.tombstones, info.ID)
	}
	e.segMu.Unlock()
	e.meta = newMeta

	// Snapshots opened before the merge hold the old segments in memory;
	// the blobs themselves are no longer referenced by any manifest.
	for _, info := range oldInfos {
		_ = e.blobs.Delete(ctx, info.Path)
		if info.TombstonePath != "" {
			_ = e.blobs.Delete(ctx, info.TombstonePath)
		}
	}

	rows := 0
	if newSeg != nil {
		rows = newSeg.DocCount()
	}
	e.metrics.OnMerge(time.Since(start), inputs, rows, nil)
	e.logger.Info("segments merged",
		"inputs", inputs,
		"rows", rows,
		"generation", newMeta.Generation,
	)

	return newMeta.Generation, nil
}

// Reload advances the reader's snapshot to the store's current generation.
// Concurrent calls are deduplicated: all converge to at least the
// generation that was current at entry.
func (e *Engine) Reload(ctx context.Context) error {
	start := time.Now()
	_, err, _ := e.reload.Do("reload", func() (any, error) {
		// A merge commit may delete blobs between our manifest read and the
		// segment open; the next manifest read observes the merged state.
		var err error
		for attempt := 0; attempt < 3; attempt++ {
			err = e.doReload(ctx)
			if err == nil || !errors.Is(err, blobstore.ErrNotFound) {
				return nil, err
			}
		}
		return nil, err
	})

	var gen uint64
	if snap := e.current.Load(); snap != nil {
		gen = snap.Generation()
	}
	e.metrics.OnReload(time.Since(start), gen, err)
	return err
}

func (e *Engine) doReload(ctx context.Context) error {
	m, err := e.manifests.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	cur := e.current.Load()
	if cur == nil {
		return ErrClosed
	}
	if m.Generation <= cur.Generation() {
		return nil
	}

	views := make([]*segmentView, 0, len(m.Segments))
	release := func() {
		for _, v := range views {
			v.seg.DecRef()
		}
	}

	for _, info := range m.Segments {
		rc, err := e.acquireSegment(ctx, info)
		if err != nil {
			release()
			return err
		}
		tomb, err := e.loadTombstones(ctx, info)
		if err != nil {
			rc.DecRef()
			release()
			return err
		}
		views = append(views, &segmentView{seg: rc, tombstones: tomb})
	}

	e.swapMu.Lock()
	defer e.swapMu.Unlock()

	cur = e.current.Load()
	if cur == nil {
		release()
		return ErrClosed
	}
	if m.Generation <= cur.Generation() {
		release()
		return nil
	}

	e.current.Store(NewSnapshot(m.Generation, views))
	cur.DecRef()

	e.logger.Debug("snapshot reloaded", "generation", m.Generation, "segments", len(views))
	return nil
}

// acquireSegment returns the open segment for info with a reference for the
// caller, opening it from the blob store when it is not cached.
func (e *Engine) acquireSegment(ctx context.Context, info manifest.SegmentInfo) (*RefCountedSegment, error) {
	e.segMu.Lock()
	if rc, ok := e.segments[info.ID]; ok {
		rc.IncRef()
		e.segMu.Unlock()
		return rc, nil
	}
	e.segMu.Unlock()

	seg, err := e.openSegment(ctx, info)
	if err != nil {
		return nil, err
	}

	e.segMu.Lock()
	defer e.segMu.Unlock()
	if rc, ok := e.segments[info.ID]; ok {
		rc.IncRef()
		return rc, nil
	}
	rc := NewRefCountedSegment(seg)
	e.segments[info.ID] = rc
	rc.IncRef()
	return rc, nil
}

// acquireSnapshot returns the current snapshot with a reference for the
// caller.
func (e *Engine) acquireSnapshot() (*Snapshot, error) {
	for {
		s := e.current.Load()
		if s == nil {
			return nil, ErrClosed
		}
		if s.TryIncRef() {
			return s, nil
		}
	}
}

// Generation returns the most recently committed generation.
func (e *Engine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meta.Generation
}

// Pending returns the number of staged, uncommitted operations.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.staged)
}

// Stats reports the state of the reader's current snapshot.
func (e *Engine) Stats() (model.Stats, error) {
	snap, err := e.acquireSnapshot()
	if err != nil {
		return model.Stats{}, err
	}
	defer snap.DecRef()

	return model.Stats{
		Generation:   snap.Generation(),
		SegmentCount: len(snap.views),
		DocCount:     snap.DocCount(),
	}, nil
}

// Close releases the engine. In-flight reads against acquired snapshots
// remain valid; all subsequent operations fail with ErrClosed. Staged,
// uncommitted operations are dropped.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.staged = nil

	e.swapMu.Lock()
	if cur := e.current.Swap(nil); cur != nil {
		cur.DecRef()
	}
	e.swapMu.Unlock()

	e.segMu.Lock()
	for id, rc := range e.segments {
		delete(e.segments, id)
		rc.DecRef()
	}
	e.segMu.Unlock()

	e.logger.Info("index closed")
	return nil
}
