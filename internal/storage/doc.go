// Package storage keeps named binary blobs together with their MD5 digest
// and length, and re-verifies both on every read.
//
// Three backends implement Storage:
//   - FileStorage: <name>.data plus <name>.meta (JSON) under a directory
//   - SQLiteStorage: one row per name in the long_messages table
//   - MemoryStorage: process-local, lost on restart
//
// Callers distinguish a missing item (ErrNotFound) from corrupt data
// (ErrIntegrity) with errors.Is.
package storage
