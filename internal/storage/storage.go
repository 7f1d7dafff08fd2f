package storage

import (
	"context"
	"crypto/md5" //nolint:gosec // Digest format fixed by the upload protocol
	"encoding/hex"
	"errors"
	"maps"
)

var (
	// ErrNotFound is returned when no item is stored under the name.
	ErrNotFound = errors.New("storage: not found")

	// ErrIntegrity is returned when stored bytes do not match their metadata.
	ErrIntegrity = errors.New("storage: integrity check failed")
)

// Metadata describes a stored item.
type Metadata struct {
	// MD5 is the lowercase hex digest of the data.
	MD5 string `json:"md5"`

	// Length is the data length in bytes.
	Length int `json:"length"`

	// Attributes holds optional caller-defined values kept alongside.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Storage is a named blob store with integrity metadata.
type Storage interface {
	// ReadMetadata returns the metadata without touching the data.
	ReadMetadata(ctx context.Context, name string) (Metadata, error)

	// Write stores data under name. An empty meta.MD5 is computed from
	// data; meta.Length is always set from data.
	Write(ctx context.Context, name string, data []byte, meta Metadata) error

	// Read returns the data after checking length and digest.
	Read(ctx context.Context, name string) ([]byte, error)
}

// Digest returns the lowercase hex MD5 of data.
func Digest(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec // Integrity check, not security
	return hex.EncodeToString(sum[:])
}

// complete fills the derived metadata fields for data.
func complete(data []byte, meta Metadata) Metadata {
	if meta.MD5 == "" {
		meta.MD5 = Digest(data)
	}
	meta.Length = len(data)
	meta.Attributes = maps.Clone(meta.Attributes)
	return meta
}

// verify checks data against its recorded metadata.
func verify(data []byte, meta Metadata) error {
	if len(data) != meta.Length {
		return errors.Join(ErrIntegrity, errors.New("length mismatch"))
	}
	if Digest(data) != meta.MD5 {
		return errors.Join(ErrIntegrity, errors.New("checksum mismatch"))
	}
	return nil
}
