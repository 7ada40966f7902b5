package engine

import (
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/lexgo/internal/segment"
	"github.com/hupe1980/lexgo/model"
)

// RefCountedSegment wraps an immutable segment with a reference count so
// that snapshots can share it across generations.
type RefCountedSegment struct {
	*segment.Segment
	refs int64
}

// NewRefCountedSegment wraps seg with an initial reference.
func NewRefCountedSegment(seg *segment.Segment) *RefCountedSegment {
	return &RefCountedSegment{Segment: seg, refs: 1}
}

// IncRef adds a reference.
func (r *RefCountedSegment) IncRef() {
	atomic.AddInt64(&r.refs, 1)
}

// DecRef drops a reference. At zero the segment is unreachable and its
// memory is reclaimed by the garbage collector.
func (r *RefCountedSegment) DecRef() {
	atomic.AddInt64(&r.refs, -1)
}

// segmentView pairs a segment with the tombstone set and live stats that
// apply to it at one generation.
type segmentView struct {
	seg *RefCountedSegment

	// tombstones marks deleted rows. Nil means no deletes. The bitmap is
	// immutable once the snapshot is published.
	tombstones *roaring.Bitmap

	liveDocs   int
	liveTokens uint64
}

// deleted reports whether a row is tombstoned in this view.
func (v *segmentView) deleted(row model.RowID) bool {
	return v.tombstones != nil && v.tombstones.Contains(uint32(row))
}

// Snapshot is a consistent, immutable view of one generation. Readers
// acquire it with TryIncRef and may use it for any number of lookups; a
// concurrent commit never invalidates it.
type Snapshot struct {
	refs       int64
	generation uint64

	// views are ordered by ascending segment ID, which is insertion order.
	views []*segmentView

	liveDocs   int
	liveTokens uint64
}

// NewSnapshot builds a snapshot over the given views. Each view's segment
// must already carry a reference owned by the snapshot.
func NewSnapshot(generation uint64, views []*segmentView) *Snapshot {
	s := &Snapshot{
		refs:       1,
		generation: generation,
		views:      views,
	}
	for _, v := range s.views {
		v.liveDocs = v.seg.DocCount()
		v.liveTokens = v.seg.TotalTokens()
		if v.tombstones != nil {
			it := v.tombstones.Iterator()
			for it.HasNext() {
				row := it.Next()
				v.liveDocs--
				v.liveTokens -= uint64(v.seg.Length(model.RowID(row)))
			}
		}
		s.liveDocs += v.liveDocs
		s.liveTokens += v.liveTokens
	}
	return s
}

// Generation returns the generation this snapshot observes.
func (s *Snapshot) Generation() uint64 {
	return s.generation
}

// DocCount returns the number of live documents.
func (s *Snapshot) DocCount() int {
	return s.liveDocs
}

// avgDocLen returns the mean token count of live documents.
func (s *Snapshot) avgDocLen() float64 {
	if s.liveDocs == 0 {
		return 0
	}
	return float64(s.liveTokens) / float64(s.liveDocs)
}

// TryIncRef attempts to acquire a reference.
// Returns false if the snapshot has already been released.
func (s *Snapshot) TryIncRef() bool {
	for {
		refs := atomic.LoadInt64(&s.refs)
		if refs <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&s.refs, refs, refs+1) {
			return true
		}
	}
}

// DecRef drops a reference, releasing the segment references when the last
// holder is gone.
func (s *Snapshot) DecRef() {
	if atomic.AddInt64(&s.refs, -1) == 0 {
		for _, v := range s.views {
			v.seg.DecRef()
		}
	}
}
