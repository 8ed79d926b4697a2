package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ledger_meta (
    ledger_id      TEXT PRIMARY KEY,
    genesis_anchor TEXT NOT NULL,
    created_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_events (
    idx      INTEGER PRIMARY KEY,
    event_id TEXT NOT NULL UNIQUE,
    category TEXT NOT NULL,
    entity   TEXT NOT NULL,
    anchor   TEXT NOT NULL,
    body     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_events_entity ON ledger_events (entity);
`

// SQLiteStore keeps a ledger in a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens (creating if needed) the SQLite database at path.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection serialises writers inside this process.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	logger.Debug("sqlite store opened", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

// sqliteDSN builds a file: URI for path. The path is made absolute and
// percent-escaped, so '?', '#' and '%' in file names do not leak into the
// query string.
func sqliteDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve sqlite path: %w", err)
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: q.Encode()}
	return u.String(), nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT ledger_id, genesis_anchor FROM ledger_meta LIMIT 1",
	).Scan(&id, &snap.Genesis)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrEmpty
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read ledger meta: %w", err)
	}
	if snap.LedgerID, err = uuid.Parse(id); err != nil {
		return Snapshot{}, fmt.Errorf("parse ledger id: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT idx, event_id, category, entity, anchor, body FROM ledger_events ORDER BY idx ASC",
	)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query ledger events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r row
		if err := rows.Scan(&r.Index, &r.EventID, &r.Category, &r.Entity, &r.Anchor, &r.Body); err != nil {
			return Snapshot{}, fmt.Errorf("scan ledger row: %w", err)
		}
		if r.Index != len(snap.Events) {
			return Snapshot{}, fmt.Errorf("ledger rows not contiguous: expected idx %d, got %d", len(snap.Events), r.Index)
		}
		e, err := decodeRow(r)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Events = append(snap.Events, e)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("read ledger rows: %w", err)
	}
	return snap, nil
}

// Sync implements Store.
func (s *SQLiteStore) Sync(ctx context.Context, snap Snapshot) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var genesis string
	err = tx.QueryRowContext(ctx, "SELECT genesis_anchor FROM ledger_meta LIMIT 1").Scan(&genesis)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if snap.LedgerID == uuid.Nil {
			snap.LedgerID = uuid.New()
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO ledger_meta (ledger_id, genesis_anchor, created_at) VALUES (?, ?, ?)",
			snap.LedgerID.String(), snap.Genesis, time.Now().UTC().Format(time.RFC3339Nano),
		); err != nil {
			return 0, fmt.Errorf("insert ledger meta: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("read ledger meta: %w", err)
	case genesis != snap.Genesis:
		return 0, fmt.Errorf("%w: stored %q, snapshot %q", ErrGenesisMismatch, genesis, snap.Genesis)
	}

	var stored int
	var tail sql.NullString
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*), (SELECT anchor FROM ledger_events ORDER BY idx DESC LIMIT 1) FROM ledger_events",
	).Scan(&stored, &tail); err != nil {
		return 0, fmt.Errorf("read ledger tail: %w", err)
	}
	if err := checkExtends(snap, stored, tail.String); err != nil {
		return 0, err
	}

	for i := stored; i < len(snap.Events); i++ {
		r, err := encodeRow(i, snap.Events[i])
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_events (idx, event_id, category, entity, anchor, body)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.Index, r.EventID, r.Category, r.Entity, r.Anchor, r.Body,
		); err != nil {
			return 0, fmt.Errorf("insert ledger event %s: %w", r.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit ledger tx: %w", err)
	}

	written := len(snap.Events) - stored
	s.logger.Debug("ledger synced",
		zap.String("store", "sqlite"),
		zap.Int("written", written),
		zap.Int("total", len(snap.Events)),
	)
	return written, nil
}
