package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey serialises concurrent Sync calls across processes. The
// value is arbitrary but must be the same for every writer.
const advisoryLockKey = int64(2_061_478_113)

// PostgresStore persists a ledger to PostgreSQL. Run Migrate first.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// OpenPostgres connects to dsn and returns a PostgresStore owning the pool.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Debug("connected to postgres")
	return NewPostgresStore(pool, logger), nil
}

// Pool returns the underlying connection pool.
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.pool.QueryRow(ctx,
		"SELECT ledger_id, genesis_anchor FROM ledger_meta LIMIT 1",
	).Scan(&snap.LedgerID, &snap.Genesis)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, ErrEmpty
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read ledger meta: %w", err)
	}

	rows, err := s.pool.Query(ctx,
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
// It takes a transaction-scoped advisory lock, checks that snap extends the
// stored tail and inserts the missing events, all in one transaction.
func (s *PostgresStore) Sync(ctx context.Context, snap Snapshot) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return 0, fmt.Errorf("acquire advisory lock: %w", err)
	}

	var genesis string
	err = tx.QueryRow(ctx, "SELECT genesis_anchor FROM ledger_meta LIMIT 1").Scan(&genesis)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if snap.LedgerID == uuid.Nil {
			snap.LedgerID = uuid.New()
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO ledger_meta (ledger_id, genesis_anchor) VALUES ($1, $2)",
			snap.LedgerID, snap.Genesis,
		); err != nil {
			return 0, fmt.Errorf("insert ledger meta: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("read ledger meta: %w", err)
	case genesis != snap.Genesis:
		return 0, fmt.Errorf("%w: stored %q, snapshot %q", ErrGenesisMismatch, genesis, snap.Genesis)
	}

	var stored int
	var tail *string
	if err := tx.QueryRow(ctx,
		"SELECT COUNT(*), (SELECT anchor FROM ledger_events ORDER BY idx DESC LIMIT 1) FROM ledger_events",
	).Scan(&stored, &tail); err != nil {
		return 0, fmt.Errorf("read ledger tail: %w", err)
	}
	tailAnchor := ""
	if tail != nil {
		tailAnchor = *tail
	}
	if err := checkExtends(snap, stored, tailAnchor); err != nil {
		return 0, err
	}

	batch := &pgx.Batch{}
	for i := stored; i < len(snap.Events); i++ {
		r, err := encodeRow(i, snap.Events[i])
		if err != nil {
			return 0, err
		}
		batch.Queue(
			`INSERT INTO ledger_events (idx, event_id, category, entity, anchor, body)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			r.Index, r.EventID, r.Category, r.Entity, r.Anchor, r.Body,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return 0, fmt.Errorf("insert ledger events: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit ledger tx: %w", err)
	}

	written := len(snap.Events) - stored
	s.logger.Debug("ledger synced",
		zap.String("store", "postgres"),
		zap.Int("written", written),
		zap.Int("total", len(snap.Events)),
	)
	return written, nil
}
