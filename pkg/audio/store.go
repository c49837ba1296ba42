// Package audio provides persistent storage for recorded audio and the
// capture devices that produce it.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists raw recorded audio bytes keyed by meeting id.
//
// Contract: bytes retrieved are byte-identical to what was stored; Delete on
// a missing id is a no-op; Retrieve on a missing id returns (nil, nil).
type Store interface {
	Store(ctx context.Context, id string, data []byte) error
	Retrieve(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}

// FSStore is a filesystem-backed blob store. Each recording is one file
// under the root directory.
type FSStore struct {
	root string
}

// NewFSStore creates an FSStore rooted at dir.
func NewFSStore(dir string) *FSStore {
	return &FSStore{root: dir}
}

func (s *FSStore) path(id string) string {
	// Meeting ids are UUIDs, but never trust them as path components.
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(id)
	return filepath.Join(s.root, safe+".audio")
}

// Store writes the audio bytes for the given meeting id.
func (s *FSStore) Store(ctx context.Context, id string, data []byte) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("creating audio directory: %w", err)
	}
	if err := os.WriteFile(s.path(id), data, 0o644); err != nil {
		return fmt.Errorf("writing audio %s: %w", id, err)
	}
	return nil
}

// Retrieve reads the audio bytes for the given meeting id, or (nil, nil) if
// nothing was stored under it.
func (s *FSStore) Retrieve(ctx context.Context, id string) ([]byte, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading audio %s: %w", id, err)
	}
	return data, nil
}

// Delete removes the audio for the given meeting id. Missing ids are a no-op.
func (s *FSStore) Delete(ctx context.Context, id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting audio %s: %w", id, err)
	}
	return nil
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	blobs map[string][]byte
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

func (s *MemStore) Store(ctx context.Context, id string, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[id] = cp
	return nil
}

func (s *MemStore) Retrieve(ctx context.Context, id string) ([]byte, error) {
	data, ok := s.blobs[id]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *MemStore) Delete(ctx context.Context, id string) error {
	delete(s.blobs, id)
	return nil
}
