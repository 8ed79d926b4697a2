// Package store persists ledger events outside the process.
//
// A Store holds one ledger: its genesis anchor, a stable ledger id and every
// event in chain order. Writes are append-only: Sync only ever adds events
// after the stored tail and refuses snapshots that disagree with the stored
// history. Stores never verify anchors; restoring a snapshot and running
// VerifyChain is the caller's job, so a tampered store still loads and is
// then reported.
//
// Two implementations are provided:
//   - SQLiteStore: a single file, the CLI default.
//   - PostgresStore: shared, durable storage.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jmerrifield20/fieldledger/internal/ledger"
)

var (
	// ErrEmpty is returned by Load when nothing has been synced yet.
	ErrEmpty = errors.New("store: no ledger stored")

	// ErrGenesisMismatch is returned when a snapshot's genesis anchor differs
	// from the stored one.
	ErrGenesisMismatch = errors.New("store: genesis anchor mismatch")

	// ErrDiverged is returned when a snapshot does not extend the stored
	// history.
	ErrDiverged = errors.New("store: snapshot diverges from stored ledger")
)

// Snapshot is the persisted form of a ledger.
type Snapshot struct {
	LedgerID uuid.UUID      `json:"ledger_id"`
	Genesis  string         `json:"genesis_anchor"`
	Events   []ledger.Event `json:"events"`
}

// SnapshotOf captures the current state of l under the given ledger id.
func SnapshotOf(id uuid.UUID, l *ledger.Ledger) Snapshot {
	return Snapshot{LedgerID: id, Genesis: l.Genesis(), Events: l.Events()}
}

// Store is implemented by SQLiteStore and PostgresStore.
type Store interface {
	// Load returns the stored ledger, or ErrEmpty.
	Load(ctx context.Context) (Snapshot, error)

	// Sync writes the events of snap that are not stored yet and returns how
	// many were written.
	Sync(ctx context.Context, snap Snapshot) (int, error)

	// Close releases the underlying connections.
	Close() error
}

// row is a stored event.
type row struct {
	Index    int
	EventID  string
	Category string
	Entity   string
	Anchor   string
	Body     string
}

func encodeRow(index int, e ledger.Event) (row, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return row{}, fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	return row{
		Index:    index,
		EventID:  e.ID,
		Category: string(e.Category),
		Entity:   e.Entity,
		Anchor:   e.Anchor,
		Body:     string(body),
	}, nil
}

func decodeRow(r row) (ledger.Event, error) {
	var e ledger.Event
	if err := json.Unmarshal([]byte(r.Body), &e); err != nil {
		return ledger.Event{}, fmt.Errorf("decode event at idx %d: %w", r.Index, err)
	}
	return e, nil
}

// checkExtends reports whether snap can be appended onto a stored ledger
// with storedLen events whose last anchor is tailAnchor.
func checkExtends(snap Snapshot, storedLen int, tailAnchor string) error {
	if len(snap.Events) < storedLen {
		return fmt.Errorf("%w: stored ledger has %d events, snapshot has %d",
			ErrDiverged, storedLen, len(snap.Events))
	}
	if storedLen > 0 && snap.Events[storedLen-1].Anchor != tailAnchor {
		return fmt.Errorf("%w: anchor at idx %d is %q, stored %q",
			ErrDiverged, storedLen-1, snap.Events[storedLen-1].Anchor, tailAnchor)
	}
	return nil
}
