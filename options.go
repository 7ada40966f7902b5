package lexgo

import (
	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/internal/segment"
)

// Compression selects the block compression used for segment blobs.
type Compression = segment.Compression

// Compression choices.
const (
	CompressionNone = segment.CompressionNone
	CompressionLZ4  = segment.CompressionLZ4
	CompressionZSTD = segment.CompressionZSTD
)

type options struct {
	store       blobstore.BlobStore
	logger      *Logger
	metrics     MetricsObserver
	compression Compression
	mergeFactor int
	mergeSet    bool
}

// Option configures Open behavior.
type Option func(*options)

// WithBlobStore overrides the blob store used for all persisted state
// (segments, tombstones, manifests). Use this for in-memory indexes or
// object-store backends; by default Open uses the local filesystem at the
// given directory.
func WithBlobStore(st blobstore.BlobStore) Option {
	return func(o *options) {
		if st != nil {
			o.store = st
		}
	}
}

// WithLogger sets the logger. By default all output is discarded.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsObserver sets the metrics observer for engine events.
func WithMetricsObserver(observer MetricsObserver) Option {
	return func(o *options) {
		if observer != nil {
			o.metrics = observer
		}
	}
}

// WithCompression sets the segment block compression. Defaults to ZSTD.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithMergeFactor sets the segment-count threshold above which a commit
// merges all live segments into one. Defaults to 8; zero disables merging.
func WithMergeFactor(n int) Option {
	return func(o *options) {
		o.mergeFactor = n
		o.mergeSet = true
	}
}
