package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
	Filename    string
}

// MigrationStatus reports whether a migration has been applied
type MigrationStatus struct {
	Migration
	Applied bool
}

// Migrator handles database migrations
type Migrator struct {
	db  *sql.DB
	dir string
}

// OpenMigrator opens a lib/pq connection for running migrations
func OpenMigrator(ctx context.Context, dsn, dir string) (*Migrator, func() error, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewMigrator(conn, dir), conn.Close, nil
}

// NewMigrator creates a new migration runner reading files from dir
func NewMigrator(db *sql.DB, dir string) *Migrator {
	return &Migrator{db: db, dir: dir}
}

// ensureSchemaVersionTable creates the schema_version table if it doesn't exist
func (m *Migrator) ensureSchemaVersionTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW(),
			description TEXT
		);
	`
	_, err := m.db.ExecContext(ctx, query)
	return err
}

// currentVersion returns the current schema version
func (m *Migrator) currentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// LoadMigrations loads the up migrations from the migrations directory, ordered by version
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") || strings.HasSuffix(name, "_down.sql") {
			continue
		}

		var version int
		var description string
		if _, err := fmt.Sscanf(name, "%d_%s", &version, &description); err != nil {
			return nil, fmt.Errorf("invalid migration filename format: %s (expected: NNN_description.sql)", name)
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", version, prev, name)
		}
		seen[version] = name

		cleanPath := filepath.Clean(filepath.Join(m.dir, name))
		if !strings.HasPrefix(cleanPath, filepath.Clean(m.dir)) {
			return nil, fmt.Errorf("invalid migration file path: %s", name)
		}
		content, err := os.ReadFile(cleanPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", name, err)
		}

		description = strings.TrimSuffix(description, ".sql")
		description = strings.ReplaceAll(description, "_", " ")

		migrations = append(migrations, Migration{
			Version:     version,
			Description: description,
			SQL:         string(content),
			Filename:    name,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// Migrate runs all pending migrations and returns how many were applied
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.ensureSchemaVersionTable(ctx); err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := m.currentVersion(ctx)
	if err != nil {
		return 0, err
	}

	migrations, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}

	pending := Pending(migrations, current)
	if len(pending) == 0 {
		log.Info().Int("version", current).Msg("Database is up to date")
		return 0, nil
	}

	log.Info().
		Int("version", current).
		Int("pending", len(pending)).
		Msg("Applying migrations")

	for _, migration := range pending {
		if err := m.applyMigration(ctx, migration); err != nil {
			return 0, fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	return len(pending), nil
}

// Pending returns the migrations newer than the current version
func Pending(migrations []Migration, current int) []Migration {
	pending := []Migration{}
	for _, migration := range migrations {
		if migration.Version > current {
			pending = append(pending, migration)
		}
	}
	return pending
}

// applyMigration applies a single migration in a transaction
func (m *Migrator) applyMigration(ctx context.Context, migration Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, description) VALUES ($1, $2) ON CONFLICT (version) DO NOTHING",
		migration.Version,
		migration.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to record migration version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", migration.Version).
		Str("description", migration.Description).
		Msg("Migration applied")

	return nil
}

// Status returns the current version and the state of every known migration
func (m *Migrator) Status(ctx context.Context) (int, []MigrationStatus, error) {
	if err := m.ensureSchemaVersionTable(ctx); err != nil {
		return 0, nil, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := m.currentVersion(ctx)
	if err != nil {
		return 0, nil, err
	}

	migrations, err := m.LoadMigrations()
	if err != nil {
		return 0, nil, err
	}

	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, migration := range migrations {
		statuses = append(statuses, MigrationStatus{
			Migration: migration,
			Applied:   migration.Version <= current,
		})
	}
	return current, statuses, nil
}
