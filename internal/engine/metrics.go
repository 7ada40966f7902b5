package engine

import "time"

// MetricsObserver defines the interface for observing engine events.
type MetricsObserver interface {
	// OnCommit is called when a commit completes.
	OnCommit(duration time.Duration, docsAdded, docsDeleted int, err error)

	// OnMerge is called when a commit merged segments.
	OnMerge(duration time.Duration, inputSegments, outputRows int, err error)

	// OnReload is called when a reload completes.
	OnReload(duration time.Duration, generation uint64, err error)

	// OnSearch is called when a ranked search completes.
	OnSearch(duration time.Duration, results int, err error)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (NoopMetricsObserver) OnCommit(duration time.Duration, docsAdded, docsDeleted int, err error) {}
func (NoopMetricsObserver) OnMerge(duration time.Duration, inputSegments, outputRows int, err error) {
}
func (NoopMetricsObserver) OnReload(duration time.Duration, generation uint64, err error) {}
func (NoopMetricsObserver) OnSearch(duration time.Duration, results int, err error)       {}
