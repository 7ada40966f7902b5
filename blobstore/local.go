package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore implements BlobStore using the local file system.
// Blob names map to files under the root directory. Put writes to a temp
// file, fsyncs, and renames so that a crash never leaves a partially
// written blob under its final name.
type LocalStore struct {
	root string
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
// The directory is created if it does not exist.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Root returns the root directory of the store.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) path(name string) string {
	return filepath.Join(s.root, name)
}

// Open opens a blob for reading.
func (s *LocalStore) Open(_ context.Context, name string) (Blob, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &localBlob{f: f, size: st.Size()}, nil
}

// Put writes a blob atomically via temp file + rename.
func (s *LocalStore) Put(_ context.Context, name string, data []byte) error {
	path := s.path(name)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return s.syncDir()
}

// Delete removes a blob.
func (s *LocalStore) Delete(_ context.Context, name string) error {
	err := os.Remove(s.path(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns the names of all blobs with the given prefix, sorted.
func (s *LocalStore) List(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".tmp") {
			continue
		}
		if prefix == "" || strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// syncDir persists renames at the directory level.
func (s *LocalStore) syncDir() error {
	d, err := os.Open(s.root)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

type localBlob struct {
	f    *os.File
	size int64
}

func (b *localBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	n, err := b.f.ReadAt(p, off)
	if err == io.EOF && n > 0 {
		return n, io.EOF
	}
	return n, err
}

func (b *localBlob) Size() int64 {
	return b.size
}

func (b *localBlob) Close() error {
	return b.f.Close()
}
