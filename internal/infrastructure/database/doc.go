// Package database provides SQLite connectivity for Rover Core.
//
// The robot keeps a single local database file holding durable long
// messages (firmware and framework packages) when the sqlite storage
// backend is selected. Migrations are forward-only .up.sql files
// embedded by the top-level migrations package.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
