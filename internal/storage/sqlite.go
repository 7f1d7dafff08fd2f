package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/rover-core/internal/infrastructure/database"
)

// SQLiteStorage keeps items in the long_messages table.
type SQLiteStorage struct {
	db *database.DB
}

// NewSQLiteStorage wraps an open, migrated database.
func NewSQLiteStorage(db *database.DB) *SQLiteStorage {
	return &SQLiteStorage{db: db}
}

// ReadMetadata implements Storage.
func (s *SQLiteStorage) ReadMetadata(ctx context.Context, name string) (Metadata, error) {
	var meta Metadata
	var attrs string
	err := s.db.QueryRowContext(ctx,
		"SELECT md5, length, metadata FROM long_messages WHERE name = ?", name,
	).Scan(&meta.MD5, &meta.Length, &attrs)
	if errors.Is(err, sql.ErrNoRows) {
		return Metadata{}, ErrNotFound
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("querying metadata for %s: %w", name, err)
	}
	if err := decodeAttributes(attrs, &meta); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// Write implements Storage.
func (s *SQLiteStorage) Write(ctx context.Context, name string, data []byte, meta Metadata) error {
	meta = complete(data, meta)
	attrs, err := json.Marshal(meta.Attributes)
	if err != nil {
		return fmt.Errorf("encoding attributes for %s: %w", name, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO long_messages (name, data, md5, length, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			data = excluded.data,
			md5 = excluded.md5,
			length = excluded.length,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		name, data, meta.MD5, meta.Length, string(attrs), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// Read implements Storage.
func (s *SQLiteStorage) Read(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	var meta Metadata
	err := s.db.QueryRowContext(ctx,
		"SELECT data, md5, length FROM long_messages WHERE name = ?", name,
	).Scan(&data, &meta.MD5, &meta.Length)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	if err := verify(data, meta); err != nil {
		return nil, err
	}
	return data, nil
}

func decodeAttributes(raw string, meta *Metadata) error {
	if raw == "" || raw == "null" || raw == "{}" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &meta.Attributes); err != nil {
		return errors.Join(ErrIntegrity, fmt.Errorf("decoding attributes: %w", err))
	}
	return nil
}
