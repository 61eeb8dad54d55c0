// Package migrations exposes the embedded billing schema to host
// applications. The schema ships per dialect: Postgres files at the root of
// the tree, SQLite alternatives under sqlite/. Hosts register whichever
// dialects they run against their own migrator (go-persistence-bun in the
// reference wiring).
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	billing "github.com/protocolguide/go-billing"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// FilesystemSpec is one dialect's migration tree.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// Registration records what was handed to the host migrator.
type Registration struct {
	SourceLabel string
	Dialects    []string
	Filesystems []FilesystemSpec
}

// RegisterFunc receives one dialect's migration filesystem.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

// WithSourceLabel overrides the label migrations are attributed to.
func WithSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

// WithDialects restricts registration to the named dialects.
func WithDialects(dialects ...string) Option {
	return func(r *Registration) {
		next := make([]string, 0, len(dialects))
		for _, dialect := range dialects {
			if trimmed := strings.TrimSpace(strings.ToLower(dialect)); trimmed != "" {
				next = append(next, trimmed)
			}
		}
		if len(next) > 0 {
			r.Dialects = next
		}
	}
}

// Filesystems resolves the per-dialect migration trees from the embedded
// schema (or an override passed by tests) and verifies each tree actually
// carries *.up.sql files.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := billing.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	base, basePath, err := migrationsRoot(root)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	filesystems := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: basePath + "/sqlite", FS: sqliteFS},
	}
	for _, spec := range filesystems {
		matches, globErr := fs.Glob(spec.FS, "*.up.sql")
		if globErr != nil {
			return nil, fmt.Errorf("migrations: glob %s %s: %w", spec.Dialect, spec.Path, globErr)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", spec.Dialect, spec.Path)
		}
	}
	return filesystems, nil
}

// Register hands each requested dialect's filesystem to registerFn.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel: "go-billing",
		Dialects:    []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&reg)
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}

	filesystems, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems

	wanted := map[string]struct{}{}
	for _, dialect := range reg.Dialects {
		wanted[dialect] = struct{}{}
	}
	for _, spec := range reg.Filesystems {
		if _, ok := wanted[spec.Dialect]; !ok {
			continue
		}
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", spec.Dialect, spec.Path, err)
		}
	}
	return reg, nil
}

func migrationsRoot(root fs.FS) (fs.FS, string, error) {
	sub, err := fs.Sub(root, "data/sql/migrations")
	if err == nil {
		return sub, "data/sql/migrations", nil
	}
	entries, readErr := fs.ReadDir(root, ".")
	if readErr == nil {
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
				return root, ".", nil
			}
		}
	}
	return nil, "", fmt.Errorf("migrations: data/sql/migrations not found: %w", err)
}
