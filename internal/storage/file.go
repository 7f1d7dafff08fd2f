package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	dirPermissions  = 0755
	filePermissions = 0644

	accessTestFile = "access-test"
)

// FileStorage stores each item as two files under a directory:
//
//	<name>.data  the raw bytes
//	<name>.meta  {"md5": "...", "length": N} as JSON
type FileStorage struct {
	dir string
	mu  sync.Mutex
}

// NewFileStorage creates dir if needed and verifies it is writable.
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, accessTestFile), []byte("true"), filePermissions); err != nil {
		return nil, fmt.Errorf("storage directory %s not writable: %w", dir, err)
	}
	return &FileStorage{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *FileStorage) Dir() string {
	return s.dir
}

func (s *FileStorage) dataPath(name string) string {
	return filepath.Join(s.dir, name+".data")
}

func (s *FileStorage) metaPath(name string) string {
	return filepath.Join(s.dir, name+".meta")
}

// ReadMetadata implements Storage.
func (s *FileStorage) ReadMetadata(_ context.Context, name string) (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readMeta(name)
}

func (s *FileStorage) readMeta(name string) (Metadata, error) {
	raw, err := os.ReadFile(s.metaPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Metadata{}, ErrNotFound
		}
		return Metadata{}, fmt.Errorf("reading metadata for %s: %w", name, err)
	}

	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, errors.Join(ErrIntegrity, fmt.Errorf("decoding metadata for %s: %w", name, err))
	}
	return meta, nil
}

// Write implements Storage.
func (s *FileStorage) Write(_ context.Context, name string, data []byte, meta Metadata) error {
	meta = complete(data, meta)
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding metadata for %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.dataPath(name), data, filePermissions); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := os.WriteFile(s.metaPath(name), raw, filePermissions); err != nil {
		return fmt.Errorf("writing metadata for %s: %w", name, err)
	}
	return nil
}

// Read implements Storage.
func (s *FileStorage) Read(_ context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.readMeta(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.dataPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	if err := verify(data, meta); err != nil {
		return nil, err
	}
	return data, nil
}
