package storage

import (
	"context"
	"maps"
	"sync"
)

// MemoryStorage is a volatile Storage.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	data []byte
	meta Metadata
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{entries: make(map[string]memoryEntry)}
}

// ReadMetadata implements Storage.
func (s *MemoryStorage) ReadMetadata(_ context.Context, name string) (Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok {
		return Metadata{}, ErrNotFound
	}
	meta := e.meta
	meta.Attributes = maps.Clone(meta.Attributes)
	return meta, nil
}

// Write implements Storage.
func (s *MemoryStorage) Write(_ context.Context, name string, data []byte, meta Metadata) error {
	buf := append([]byte(nil), data...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = memoryEntry{data: buf, meta: complete(buf, meta)}
	return nil
}

// Read implements Storage.
func (s *MemoryStorage) Read(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok {
		return nil, ErrNotFound
	}
	if err := verify(e.data, e.meta); err != nil {
		return nil, err
	}
	return append([]byte(nil), e.data...), nil
}
