// Package migrations ships the registry schema inside the binary, so a
// deployment needs no SQL files on disk.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed *.up.sql
var files embed.FS

// Files returns the embedded migration files for database.Migrate.
func Files() fs.FS {
	return files
}
