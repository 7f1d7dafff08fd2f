// Package migrations holds the SQLite schema of the durable storage backend.
// Importing it registers the files with the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/rover-core/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.MigrationsFS = files
	database.MigrationsDir = "."
}
