// Package manifest persists the commit log of an index: which segments are
// live, which tombstone sets apply, the schema, and the current generation.
//
// A manifest file is written per commit and a CURRENT pointer names the
// active one. Both writes go through BlobStore.Put, which is atomic, so the
// durability boundary of a commit is the CURRENT update: a crash before it
// leaves the previous generation intact, a crash after it leaves the new
// generation fully visible.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/model"
	"github.com/hupe1980/lexgo/schema"
)

const (
	// ManifestPrefix is the name prefix of manifest blobs.
	ManifestPrefix = "MANIFEST"

	// CurrentFileName is the blob holding the name of the active manifest.
	CurrentFileName = "CURRENT"

	// CurrentVersion is the supported manifest format version.
	CurrentVersion = 1
)

// ErrNotExist is returned by Load when no manifest has been written yet.
var ErrNotExist = errors.New("manifest does not exist")

// Manifest describes the state of the index at one generation.
type Manifest struct {
	Version       int             `json:"version"`
	Generation    uint64          `json:"generation"`
	NextSegmentID model.SegmentID `json:"next_segment_id"`
	Schema        *schema.Schema  `json:"schema"`
	Segments      []SegmentInfo   `json:"segments"`
}

// SegmentInfo describes a single live segment.
type SegmentInfo struct {
	ID       model.SegmentID `json:"id"`
	DocCount uint32          `json:"doc_count"`
	Path     string          `json:"path"`

	// TombstonePath names the serialized tombstone bitmap for this segment,
	// or is empty when no rows are deleted.
	TombstonePath string `json:"tombstone_path,omitempty"`
}

// Store manages manifest blobs and the CURRENT pointer.
type Store struct {
	mu    sync.Mutex
	blobs blobstore.BlobStore
}

// NewStore creates a new manifest store on top of the given blob store.
func NewStore(blobs blobstore.BlobStore) *Store {
	return &Store{blobs: blobs}
}

// Load loads the manifest named by CURRENT.
// Returns ErrNotExist when the store holds no index yet.
func (s *Store) Load(ctx context.Context) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.readAll(ctx, CurrentFileName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, ErrNotExist
		}
		return nil, err
	}

	data, err := s.readAll(ctx, string(current))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %q: %w", current, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if m.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported manifest version: %d (expected %d)", m.Version, CurrentVersion)
	}

	return &m, nil
}

// Save bumps the generation and atomically publishes m as the new current
// manifest. On success the previous manifest blob is removed best-effort.
func (s *Store) Save(ctx context.Context, m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, _ := s.readAll(ctx, CurrentFileName)

	m.Version = CurrentVersion
	m.Generation++

	name := fmt.Sprintf("%s-%06d.json", ManifestPrefix, m.Generation)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		m.Generation--
		return err
	}

	if err := s.blobs.Put(ctx, name, data); err != nil {
		m.Generation--
		return err
	}
	if err := s.blobs.Put(ctx, CurrentFileName, []byte(name)); err != nil {
		m.Generation--
		_ = s.blobs.Delete(ctx, name)
		return err
	}

	if len(prev) > 0 && string(prev) != name {
		_ = s.blobs.Delete(ctx, string(prev))
	}

	return nil
}

func (s *Store) readAll(ctx context.Context, name string) ([]byte, error) {
	b, err := s.blobs.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()
	return blobstore.ReadAll(ctx, b)
}
