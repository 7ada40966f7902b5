package engine

// CompactionPolicy decides when a commit should merge the live segments
// into one instead of appending another small segment.
type CompactionPolicy interface {
	// ShouldMerge is called with the number of segments the index would
	// have after the pending commit.
	ShouldMerge(segmentCount int) bool
}

// TieredCompactionPolicy merges once the segment count exceeds a fixed
// threshold.
type TieredCompactionPolicy struct {
	Threshold int
}

// ShouldMerge implements CompactionPolicy.
func (p *TieredCompactionPolicy) ShouldMerge(segmentCount int) bool {
	return p.Threshold > 0 && segmentCount > p.Threshold
}

// NeverMerge disables merging; every commit appends a segment.
type NeverMerge struct{}

// ShouldMerge implements CompactionPolicy.
func (NeverMerge) ShouldMerge(int) bool { return false }
