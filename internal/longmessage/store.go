package longmessage

import (
	"context"
	"fmt"

	"github.com/nerrad567/rover-core/internal/storage"
)

// Store routes each message type to the durable or the volatile backend
// and answers status queries.
type Store struct {
	durable  storage.Storage
	volatile storage.Storage
}

// NewStore returns a Store using durable for firmware and framework
// packages and volatile for everything else.
func NewStore(durable, volatile storage.Storage) *Store {
	return &Store{durable: durable, volatile: volatile}
}

func (s *Store) backend(t Type) storage.Storage {
	if t.Durable() {
		return s.durable
	}
	return s.volatile
}

// ReadStatus returns READY with the stored digest and length, or UNUSED
// when nothing usable is stored. Storage errors never propagate.
func (s *Store) ReadStatus(ctx context.Context, t Type) (StatusInfo, error) {
	if !t.Valid() {
		return StatusInfo{}, fmt.Errorf("%w: %d", ErrInvalidType, t)
	}

	meta, err := s.backend(t).ReadMetadata(ctx, t.Key())
	if err != nil {
		return StatusInfo{Status: StatusUnused}, nil //nolint:nilerr // Missing or corrupt reads as unused
	}
	digest, ok := decodeDigest(meta.MD5)
	if !ok {
		return StatusInfo{Status: StatusUnused}, nil
	}
	return StatusInfo{Status: StatusReady, HasDigest: true, MD5: digest, Length: meta.Length}, nil
}

// Set persists a verified message.
func (s *Store) Set(ctx context.Context, t Type, data []byte, md5Hex string) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidType, t)
	}
	return s.backend(t).Write(ctx, t.Key(), data, storage.Metadata{MD5: md5Hex})
}

// Get returns the stored message after integrity verification.
// Errors wrap storage.ErrNotFound or storage.ErrIntegrity.
func (s *Store) Get(ctx context.Context, t Type) ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidType, t)
	}
	return s.backend(t).Read(ctx, t.Key())
}
