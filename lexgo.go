package lexgo

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/internal/engine"
	"github.com/hupe1980/lexgo/model"
)

// Index is a handle to one full-text index. A process constructs it once
// per storage location via Open and passes it to every operation; the
// location is exclusively owned by this instance.
//
// All methods are safe for concurrent use. Writes are serialized behind a
// single writer lock; reads never block on writes.
type Index struct {
	engine *engine.Engine
}

// Open opens the index stored in dir, creating it with the fixed two-field
// schema (identifier + text) when the directory holds no index yet. Open is
// idempotent: opening an existing index loads it and validates its schema.
//
// Use WithBlobStore to back the index by memory or object storage instead
// of the local filesystem; dir is ignored in that case.
func Open(ctx context.Context, dir string, opts ...Option) (*Index, error) {
	o := options{
		compression: CompressionZSTD,
	}
	for _, fn := range opts {
		fn(&o)
	}

	if o.store == nil {
		st, err := blobstore.NewLocalStore(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStorage, err)
		}
		o.store = st
	}

	var policy engine.CompactionPolicy
	if o.mergeSet {
		if o.mergeFactor > 0 {
			policy = &engine.TieredCompactionPolicy{Threshold: o.mergeFactor}
		} else {
			policy = engine.NeverMerge{}
		}
	}

	var logger *Logger
	if o.logger != nil {
		logger = o.logger
	} else {
		logger = NoopLogger()
	}

	eng, err := engine.Open(ctx, engine.Config{
		Blobs:       o.store,
		Logger:      logger.Logger,
		Metrics:     o.metrics,
		Policy:      policy,
		Compression: o.compression,
	})
	if err != nil {
		return nil, storageError(err)
	}

	return &Index{engine: eng}, nil
}

// Add indexes doc with update-or-insert semantics and commits immediately:
// any prior document with the same identifier is deleted first. For bulk
// loads prefer AddBatch or the staging API, which pay one commit for many
// documents.
func (i *Index) Add(ctx context.Context, doc model.Document) error {
	if i == nil || i.engine == nil {
		return ErrNotInitialized
	}
	if err := i.engine.StageAdd(ctx, doc); err != nil {
		return translateError(err)
	}
	_, err := i.engine.Commit(ctx)
	return commitError(err)
}

// AddBatch indexes all docs and commits once. Either all documents become
// visible or, on failure, none.
func (i *Index) AddBatch(ctx context.Context, docs []model.Document) error {
	if i == nil || i.engine == nil {
		return ErrNotInitialized
	}
	if err := i.engine.StageAddBatch(ctx, docs); err != nil {
		return translateError(err)
	}
	_, err := i.engine.Commit(ctx)
	return commitError(err)
}

// Update replaces the document with doc's identifier. Update and Add are
// the same operation at this layer: every add deletes the prior version
// first, so update and insert are indistinguishable.
func (i *Index) Update(ctx context.Context, doc model.Document) error {
	return i.Add(ctx, doc)
}

// Delete removes the document with the given identifier and commits
// immediately. Deleting an absent identifier is not an error.
func (i *Index) Delete(ctx context.Context, id string) error {
	if i == nil || i.engine == nil {
		return ErrNotInitialized
	}
	if err := i.engine.StageDelete(ctx, id); err != nil {
		return translateError(err)
	}
	_, err := i.engine.Commit(ctx)
	return commitError(err)
}

// DeleteBatch removes all identified documents with one commit.
func (i *Index) DeleteBatch(ctx context.Context, ids []string) error {
	if i == nil || i.engine == nil {
		return ErrNotInitialized
	}
	if err := i.engine.StageDeleteBatch(ctx, ids); err != nil {
		return translateError(err)
	}
	_, err := i.engine.Commit(ctx)
	return commitError(err)
}

// StageAdd stages an update-or-insert without committing. Staged
// operations are invisible until Commit; nothing auto-commits them.
func (i *Index) StageAdd(ctx context.Context, doc model.Document) error {
	if i == nil || i.engine == nil {
		return ErrNotInitialized
	}
	return translateError(i.engine.StageAdd(ctx, doc))
}

// StageDelete stages a delete-by-identifier without committing.
func (i *Index) StageDelete(ctx context.Context, id string) error {
	if i == nil || i.engine == nil {
		return ErrNotInitialized
	}
	return translateError(i.engine.StageDelete(ctx, id))
}

// Commit publishes all staged operations as the next generation and
// returns its number. On failure the staged operations are preserved for
// retry or abort.
func (i *Index) Commit(ctx context.Context) (uint64, error) {
	if i == nil || i.engine == nil {
		return 0, ErrNotInitialized
	}
	gen, err := i.engine.Commit(ctx)
	return gen, commitError(err)
}

// Search runs a ranked full-text query against the text field and returns
// up to topK results by descending relevance. The reader is reloaded first,
// so a search always observes the most recent commit.
func (i *Index) Search(ctx context.Context, query string, topK int) ([]model.SearchResult, error) {
	if i == nil || i.engine == nil {
		return nil, ErrNotInitialized
	}
	results, err := i.engine.Search(ctx, query, topK)
	return results, searchError(err)
}

// GetByID returns the document with the given identifier from the reader's
// current snapshot, or false when absent. It does not reload: the view may
// trail the latest commit until Reload (or any Search) advances it.
func (i *Index) GetByID(ctx context.Context, id string) (model.Document, bool, error) {
	if i == nil || i.engine == nil {
		return model.Document{}, false, ErrNotInitialized
	}
	doc, ok, err := i.engine.GetByID(ctx, id)
	return doc, ok, translateError(err)
}

// Reload advances the reader's snapshot to the latest committed
// generation. Safe for concurrent invocation; concurrent calls converge to
// at least the generation current at entry.
func (i *Index) Reload(ctx context.Context) error {
	if i == nil || i.engine == nil {
		return ErrNotInitialized
	}
	return storageError(i.engine.Reload(ctx))
}

// Generation returns the most recently committed generation number.
func (i *Index) Generation() (uint64, error) {
	if i == nil || i.engine == nil {
		return 0, ErrNotInitialized
	}
	return i.engine.Generation(), nil
}

// Stats reports document and segment counts for the reader's current
// snapshot.
func (i *Index) Stats() (model.Stats, error) {
	if i == nil || i.engine == nil {
		return model.Stats{}, ErrNotInitialized
	}
	stats, err := i.engine.Stats()
	return stats, translateError(err)
}

// Close releases the index handle. In-flight reads complete against their
// acquired snapshots; staged, uncommitted operations are dropped.
func (i *Index) Close() error {
	if i == nil || i.engine == nil {
		return nil
	}
	return i.engine.Close()
}

// storageError wraps non-public errors as storage failures.
func storageError(err error) error {
	return wrapDefault(err, ErrStorage)
}

// commitError wraps non-public errors as commit failures.
func commitError(err error) error {
	return wrapDefault(err, ErrCommit)
}

// searchError keeps parse errors intact and wraps the rest as storage
// failures.
func searchError(err error) error {
	return wrapDefault(err, ErrStorage)
}

func wrapDefault(err error, sentinel error) error {
	if err == nil {
		return nil
	}
	err = translateError(err)
	for _, known := range []error{
		ErrNotInitialized, ErrSchemaMismatch, ErrQueryParse,
		ErrEmptyID, ErrInvalidTopK, ErrStorage, ErrCommit,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
