// Package memory keeps the library snapshot in-memory for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/tubeshelf/internal/library"
)

// SnapshotStore holds the most recent snapshot.
type SnapshotStore struct {
	mu    sync.RWMutex
	data  []byte
	saves int
	err   error
}

var _ library.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore creates an empty in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// NewSnapshotStoreWith creates a store preloaded with data.
func NewSnapshotStoreWith(data []byte) *SnapshotStore {
	return &SnapshotStore{data: append([]byte{}, data...)}
}

// Load returns a copy of the last saved snapshot.
func (s *SnapshotStore) Load(_ context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return nil, library.ErrNoSnapshot
	}
	return append([]byte(nil), s.data...), nil
}

// Save replaces the stored snapshot.
func (s *SnapshotStore) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data = append([]byte{}, data...)
	s.saves++
	return nil
}

// Saves reports how many times Save has been called.
func (s *SnapshotStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// FailWith makes every later Save return err. A nil err restores normal saves.
func (s *SnapshotStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
