package model

// SegmentID is the unique identifier for a segment within an index.
// IDs are assigned monotonically by the engine and never reused.
type SegmentID uint64

// RowID is a dense, segment-local ordinal for a document.
// It is transient and may change when segments are merged.
type RowID uint32

// Document is the unit of indexing: an externally assigned identifier and
// a text body. The identifier is the natural key; re-adding a document with
// an existing identifier replaces the prior version.
type Document struct {
	ID   string
	Text string
}

// SearchResult pairs a relevance score with the matching document.
// Scores are non-negative; higher means more relevant. Scores are only
// comparable within a single query.
type SearchResult struct {
	Score float64
	Doc   Document
}

// Stats describes the state of an index at one generation.
type Stats struct {
	Generation   uint64
	SegmentCount int
	DocCount     int
}
