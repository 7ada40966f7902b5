// Package segment implements the immutable on-disk representation of a
// committed batch of documents: stored fields, per-document token lengths,
// an identifier dictionary for exact lookup, and an inverted index with
// term frequencies for ranked search.
//
// A segment is built once, serialized to a single blob, and never mutated.
// Deletes against a published segment are recorded externally as tombstone
// bitmaps; superseded segments are dropped during merges.
package segment

import (
	"sort"

	"github.com/hupe1980/lexgo/lexical"
	"github.com/hupe1980/lexgo/model"
)

// Posting records one document's occurrences of a term.
type Posting struct {
	Row  model.RowID
	Freq uint32
}

// Segment is an immutable, fully materialized segment.
type Segment struct {
	id model.SegmentID

	ids     []string
	texts   []string
	lengths []uint32

	totalTokens uint64

	idRows   map[string]model.RowID
	postings map[string][]Posting
}

// Build creates a segment from documents. Row ordinals follow the order of
// docs; callers must not pass two documents with the same identifier.
func Build(id model.SegmentID, docs []model.Document) *Segment {
	s := &Segment{
		id:       id,
		ids:      make([]string, 0, len(docs)),
		texts:    make([]string, 0, len(docs)),
		lengths:  make([]uint32, 0, len(docs)),
		idRows:   make(map[string]model.RowID, len(docs)),
		postings: make(map[string][]Posting),
	}

	for _, doc := range docs {
		row := model.RowID(len(s.ids))
		s.ids = append(s.ids, doc.ID)
		s.texts = append(s.texts, doc.Text)
		s.idRows[doc.ID] = row

		tokens := lexical.Tokenize(doc.Text)
		s.lengths = append(s.lengths, uint32(len(tokens)))
		s.totalTokens += uint64(len(tokens))

		tf := make(map[string]uint32, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		for t, count := range tf {
			s.postings[t] = append(s.postings[t], Posting{Row: row, Freq: count})
		}
	}

	// Rows are appended in order per term, but make the invariant explicit.
	for _, plist := range s.postings {
		sort.Slice(plist, func(i, j int) bool { return plist[i].Row < plist[j].Row })
	}

	return s
}

// ID returns the segment identifier.
func (s *Segment) ID() model.SegmentID {
	return s.id
}

// DocCount returns the number of rows in the segment, including rows that
// a later generation may have tombstoned.
func (s *Segment) DocCount() int {
	return len(s.ids)
}

// Doc returns the stored document at the given row.
func (s *Segment) Doc(row model.RowID) (model.Document, bool) {
	if int(row) >= len(s.ids) {
		return model.Document{}, false
	}
	return model.Document{ID: s.ids[row], Text: s.texts[row]}, true
}

// RowOf returns the row holding the document with the given identifier.
func (s *Segment) RowOf(id string) (model.RowID, bool) {
	row, ok := s.idRows[id]
	return row, ok
}

// Postings returns the posting list for a term, ordered by row.
// The returned slice is owned by the segment and must not be modified.
func (s *Segment) Postings(term string) []Posting {
	return s.postings[term]
}

// Length returns the token count of the document at the given row.
func (s *Segment) Length(row model.RowID) int {
	return int(s.lengths[row])
}

// TotalTokens returns the sum of all row token counts.
func (s *Segment) TotalTokens() uint64 {
	return s.totalTokens
}
