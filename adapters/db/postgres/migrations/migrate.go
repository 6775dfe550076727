package migrations

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"path"
	"sort"
	"strings"
)

//go:embed sql/*.sql
var embedded embed.FS

// Migrator handles database schema migrations
type Migrator struct {
	db    *sql.DB
	files fs.FS
}

// NewMigrator creates a migrator over the embedded migration files
func NewMigrator(db *sql.DB) *Migrator {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err) // embedded path is fixed at build time
	}
	return NewMigratorFS(db, sub)
}

// NewMigratorFS creates a migrator reading NNN_name.up.sql / NNN_name.down.sql from files
func NewMigratorFS(db *sql.DB, files fs.FS) *Migrator {
	return &Migrator{db: db, files: files}
}

// MigrationFile represents one version's up and optional down script
type MigrationFile struct {
	Version  string
	Name     string
	UpPath   string
	DownPath string
}

// MigrationStatus reports whether a version has been applied
type MigrationStatus struct {
	Version string
	Name    string
	Applied bool
}

// Up executes all pending migrations
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}

	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	files, err := m.FindMigrationFiles()
	if err != nil {
		return fmt.Errorf("failed to find migration files: %w", err)
	}

	for _, file := range files {
		if applied[file.Version] {
			continue
		}
		if err := m.applyMigration(ctx, file); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file.Version, err)
		}
		log.Printf("[Migrator] Applied migration %s_%s", file.Version, file.Name)
	}

	return nil
}

// Down rolls back the most recently applied migration
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}

	var version string
	err := m.db.QueryRowContext(ctx, `
		SELECT version FROM schema_migrations
		ORDER BY version DESC LIMIT 1`).Scan(&version)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("no migrations to rollback")
		}
		return fmt.Errorf("failed to get last migration: %w", err)
	}

	files, err := m.FindMigrationFiles()
	if err != nil {
		return fmt.Errorf("failed to find migration files: %w", err)
	}

	var target *MigrationFile
	for i := range files {
		if files[i].Version == version {
			target = &files[i]
		}
	}
	if target == nil || target.DownPath == "" {
		return fmt.Errorf("no down migration for version %s", version)
	}

	script, err := fs.ReadFile(m.files, target.DownPath)
	if err != nil {
		return fmt.Errorf("failed to read down migration: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		return fmt.Errorf("failed to execute down migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = $1", version); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollback: %w", err)
	}

	log.Printf("[Migrator] Rolled back migration %s_%s", target.Version, target.Name)
	return nil
}

// Status lists every known migration and whether it has been applied
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	files, err := m.FindMigrationFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to find migration files: %w", err)
	}

	statuses := make([]MigrationStatus, 0, len(files))
	for _, file := range files {
		statuses = append(statuses, MigrationStatus{
			Version: file.Version,
			Name:    file.Name,
			Applied: applied[file.Version],
		})
	}
	return statuses, nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// getAppliedMigrations returns map of applied migration versions
func (m *Migrator) getAppliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

// calculateChecksum computes SHA256 checksum of migration content
func calculateChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

// FindMigrationFiles pairs up and down scripts by version, sorted by version.
// Files not named NNN_name.up.sql or NNN_name.down.sql are ignored.
func (m *Migrator) FindMigrationFiles() ([]MigrationFile, error) {
	byVersion := make(map[string]*MigrationFile)

	err := fs.WalkDir(m.files, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		base := path.Base(p)
		var stem, direction string
		switch {
		case strings.HasSuffix(base, ".up.sql"):
			stem, direction = strings.TrimSuffix(base, ".up.sql"), "up"
		case strings.HasSuffix(base, ".down.sql"):
			stem, direction = strings.TrimSuffix(base, ".down.sql"), "down"
		default:
			return nil
		}

		parts := strings.SplitN(stem, "_", 2)
		if len(parts) < 2 {
			return nil // skip invalid filenames
		}

		file, ok := byVersion[parts[0]]
		if !ok {
			file = &MigrationFile{Version: parts[0], Name: parts[1]}
			byVersion[parts[0]] = file
		}
		if direction == "up" {
			file.UpPath = p
		} else {
			file.DownPath = p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	files := make([]MigrationFile, 0, len(byVersion))
	for _, file := range byVersion {
		if file.UpPath == "" {
			return nil, fmt.Errorf("migration %s has a down script but no up script", file.Version)
		}
		files = append(files, *file)
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Version < files[j].Version
	})

	return files, nil
}

// applyMigration executes a single migration file and records its checksum
func (m *Migrator) applyMigration(ctx context.Context, file MigrationFile) error {
	script, err := fs.ReadFile(m.files, file.UpPath)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, checksum) VALUES ($1, $2)",
		file.Version, calculateChecksum(script))
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
