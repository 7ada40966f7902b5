package lexgo

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/lexgo/internal/engine"
)

// MetricsObserver receives engine events (commits, merges, reloads and
// searches). Implement it to integrate with monitoring systems like
// Prometheus; see examples/observability for a complete adapter.
type MetricsObserver = engine.MetricsObserver

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver = engine.NoopMetricsObserver

// BasicMetricsObserver provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsObserver struct {
	CommitCount      atomic.Int64
	CommitErrors     atomic.Int64
	CommitTotalNanos atomic.Int64
	DocsAdded        atomic.Int64
	DocsDeleted      atomic.Int64
	MergeCount       atomic.Int64
	MergeErrors      atomic.Int64
	ReloadCount      atomic.Int64
	ReloadErrors     atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
}

// OnCommit implements MetricsObserver.
func (b *BasicMetricsObserver) OnCommit(duration time.Duration, docsAdded, docsDeleted int, err error) {
	b.CommitCount.Add(1)
	b.CommitTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CommitErrors.Add(1)
		return
	}
	b.DocsAdded.Add(int64(docsAdded))
	b.DocsDeleted.Add(int64(docsDeleted))
}

// OnMerge implements MetricsObserver.
func (b *BasicMetricsObserver) OnMerge(duration time.Duration, inputSegments, outputRows int, err error) {
	b.MergeCount.Add(1)
	if err != nil {
		b.MergeErrors.Add(1)
	}
}

// OnReload implements MetricsObserver.
func (b *BasicMetricsObserver) OnReload(duration time.Duration, generation uint64, err error) {
	b.ReloadCount.Add(1)
	if err != nil {
		b.ReloadErrors.Add(1)
	}
}

// OnSearch implements MetricsObserver.
func (b *BasicMetricsObserver) OnSearch(duration time.Duration, results int, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// AvgCommitLatency returns the mean commit duration observed so far.
func (b *BasicMetricsObserver) AvgCommitLatency() time.Duration {
	n := b.CommitCount.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(b.CommitTotalNanos.Load() / n)
}

// AvgSearchLatency returns the mean search duration observed so far.
func (b *BasicMetricsObserver) AvgSearchLatency() time.Duration {
	n := b.SearchCount.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(b.SearchTotalNanos.Load() / n)
}
