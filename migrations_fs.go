package billing

import (
	"embed"
	"io/fs"
)

// migrationsFS carries the billing schema for both dialects; SQLite
// alternatives live under data/sql/migrations/sqlite.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the embedded migration tree.
func GetMigrationsFS() fs.FS {
	return migrationsFS
}
