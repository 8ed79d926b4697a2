package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migration is one embedded *.up.sql file.
type migration struct {
	version int64
	file    string
}

// Migrate applies the embedded Postgres migrations that have not been
// applied yet and returns how many ran. Versions are recorded in a
// golang-migrate compatible schema_migrations table (bigint version, dirty
// flag). Each migration and its version row commit in one transaction, so a
// failed migration leaves no trace and is retried on the next run.
func Migrate(ctx context.Context, db *pgxpool.Pool, logger *zap.Logger) (int, error) {
	if _, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version bigint  NOT NULL PRIMARY KEY,
			dirty   boolean NOT NULL
		)`); err != nil {
		return 0, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	pending, err := pendingMigrations(ctx, db)
	if err != nil {
		return 0, err
	}
	for i, m := range pending {
		if err := applyMigration(ctx, db, m); err != nil {
			return i, err
		}
		logger.Info("ledger migration applied",
			zap.Int64("version", m.version),
			zap.String("file", m.file),
		)
	}
	return len(pending), nil
}

// pendingMigrations lists the embedded migrations without a clean
// schema_migrations row, in version order.
func pendingMigrations(ctx context.Context, db *pgxpool.Pool) ([]migration, error) {
	files, err := migrationFiles()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, "SELECT version FROM schema_migrations WHERE NOT dirty")
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	done, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	applied := make(map[int64]bool, len(done))
	for _, v := range done {
		applied[v] = true
	}

	var pending []migration
	for _, f := range files {
		v, err := versionFromFile(f)
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", f, err)
		}
		if !applied[v] {
			pending = append(pending, migration{version: v, file: f})
		}
	}
	return pending, nil
}

func applyMigration(ctx context.Context, db *pgxpool.Pool, m migration) error {
	body, err := migrationFS.ReadFile("migrations/" + m.file)
	if err != nil {
		return fmt.Errorf("migration %s: %w", m.file, err)
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("migration %s: begin: %w", m.file, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, string(body)); err != nil {
		return fmt.Errorf("migration %s: %w", m.file, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO schema_migrations (version, dirty) VALUES ($1, false)
		 ON CONFLICT (version) DO UPDATE SET dirty = false`, m.version,
	); err != nil {
		return fmt.Errorf("migration %s: record version: %w", m.file, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("migration %s: commit: %w", m.file, err)
	}
	return nil
}

// migrationFiles returns the embedded *.up.sql names in lexical order.
func migrationFiles() ([]string, error) {
	names, err := fs.Glob(migrationFS, "migrations/*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("list embedded migrations: %w", err)
	}
	files := make([]string, len(names))
	for i, n := range names {
		files[i] = path.Base(n)
	}
	sort.Strings(files)
	return files, nil
}

// versionFromFile parses the numeric prefix of names like "001_ledger.up.sql".
func versionFromFile(name string) (int64, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("migration name %q has no version prefix", name)
	}
	v, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("migration name %q: %w", name, err)
	}
	return v, nil
}
