package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationsDir = "migrations"

// Migrate applies every pending *.up.sql migration in name order and
// returns the names it applied.
func Migrate(ctx context.Context, db *sql.DB) ([]string, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(migrationFiles, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var applied []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}

		ok, err := applyOnce(ctx, db, entry.Name())
		if err != nil {
			return applied, err
		}
		if ok {
			applied = append(applied, entry.Name())
		}
	}
	return applied, nil
}

// RunMigration executes the single migration file whose name ends with
// name+".sql" (e.g. "rate_limit_buckets.down"). Running a down migration
// forgets its up counterpart so Migrate applies it again.
func RunMigration(ctx context.Context, db *sql.DB, name string) (string, error) {
	file, err := migrationFilePath(name)
	if err != nil {
		return "", err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return "", err
	}

	content, err := migrationFiles.ReadFile(path.Join(migrationsDir, file))
	if err != nil {
		return "", fmt.Errorf("failed to read migration file %s: %w", file, err)
	}

	if _, err := db.ExecContext(ctx, string(content)); err != nil {
		return "", fmt.Errorf("failed to execute migration %s: %w", file, err)
	}

	if strings.HasSuffix(file, ".down.sql") {
		up := strings.TrimSuffix(file, ".down.sql") + ".up.sql"
		if _, err := db.ExecContext(ctx, `DELETE FROM schema_migrations WHERE name = $1`, up); err != nil {
			return "", fmt.Errorf("failed to unrecord migration %s: %w", up, err)
		}
	}
	return file, nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	return nil
}

func applyOnce(ctx context.Context, db *sql.DB, name string) (bool, error) {
	content, err := migrationFiles.ReadFile(path.Join(migrationsDir, name))
	if err != nil {
		return false, fmt.Errorf("failed to read migration file %s: %w", name, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin migration %s: %w", name, err)
	}
	defer tx.Rollback()

	// Serializes concurrent migrators; released on commit.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('schema_migrations'))`); err != nil {
		return false, fmt.Errorf("failed to lock migrations: %w", err)
	}

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, name,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check migration %s: %w", name, err)
	}
	if exists {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return false, fmt.Errorf("failed to execute migration %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
		return false, fmt.Errorf("failed to record migration %s: %w", name, err)
	}

	return true, tx.Commit()
}

func migrationFilePath(name string) (string, error) {
	regex, err := regexp.Compile(fmt.Sprintf(`^.*%s\.sql$`, regexp.QuoteMeta(name)))
	if err != nil {
		return "", fmt.Errorf("invalid migration name: %w", err)
	}

	entries, err := fs.ReadDir(migrationFiles, migrationsDir)
	if err != nil {
		return "", fmt.Errorf("failed to read migrations directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if regex.MatchString(entry.Name()) {
			return entry.Name(), nil
		}
	}

	return "", fmt.Errorf("migration file not found: %s", name)
}
