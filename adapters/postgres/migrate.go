package postgres

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"hoopval/internal"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationFile is one versioned schema script
type MigrationFile struct {
	Version  string
	Name     string
	Checksum string
	SQL      string
}

// MigrationStatus pairs a migration with whether it has been applied
type MigrationStatus struct {
	Version string
	Name    string
	Applied bool
}

// Migrator applies the embedded schema scripts in version order
type Migrator struct {
	db     *sqlx.DB
	files  fs.FS
	logger *internal.Logger
}

// NewMigrator creates a migrator over the embedded migrations
func NewMigrator(db *sqlx.DB, logger *internal.Logger) *Migrator {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	sub, _ := fs.Sub(migrationFiles, "migrations")
	return &Migrator{db: db, files: sub, logger: logger}
}

// Up executes all pending migrations. A migration whose applied checksum
// differs from the embedded script is an error.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	files, err := findMigrationFiles(m.files)
	if err != nil {
		return fmt.Errorf("failed to find migration files: %w", err)
	}

	for _, file := range files {
		if checksum, ok := applied[file.Version]; ok {
			if checksum != file.Checksum {
				return fmt.Errorf("migration %s was modified after it was applied", file.Version)
			}
			continue
		}
		if err := m.apply(ctx, file); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file.Version, err)
		}
		m.logger.Info("applied migration %s (%s)", file.Version, file.Name)
	}
	return nil
}

// Status lists every embedded migration and whether it has been applied
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	files, err := findMigrationFiles(m.files)
	if err != nil {
		return nil, fmt.Errorf("failed to find migration files: %w", err)
	}

	status := make([]MigrationStatus, len(files))
	for i, file := range files {
		_, ok := applied[file.Version]
		status[i] = MigrationStatus{Version: file.Version, Name: file.Name, Applied: ok}
	}
	return status, nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// applied maps version to recorded checksum
func (m *Migrator) applied(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Version  string `db:"version"`
		Checksum string `db:"checksum"`
	}
	if err := m.db.SelectContext(ctx, &rows, "SELECT version, checksum FROM schema_migrations"); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Version] = row.Checksum
	}
	return out, nil
}

func (m *Migrator) apply(ctx context.Context, file MigrationFile) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, file.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, checksum) VALUES ($1, $2)", file.Version, file.Checksum); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

// findMigrationFiles reads NNN_name.sql scripts from fsys sorted by version.
// Files without a version prefix are skipped.
func findMigrationFiles(fsys fs.FS) ([]MigrationFile, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}

	var files []MigrationFile
	seen := make(map[string]string)
	for _, entry := range entries {
		base := entry.Name()
		if entry.IsDir() || path.Ext(base) != ".sql" {
			continue
		}
		version, name, ok := strings.Cut(strings.TrimSuffix(base, ".sql"), "_")
		if !ok || version == "" {
			continue
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %s", other, base, version)
		}
		seen[version] = base

		data, err := fs.ReadFile(fsys, base)
		if err != nil {
			return nil, err
		}
		files = append(files, MigrationFile{
			Version:  version,
			Name:     name,
			Checksum: calculateChecksum(data),
			SQL:      string(data),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Version < files[j].Version
	})
	return files, nil
}

// calculateChecksum computes the SHA256 checksum of a script
func calculateChecksum(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}
