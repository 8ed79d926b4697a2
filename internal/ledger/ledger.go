// Package ledger implements an append-only, hash-chained event ledger.
//
// Every event carries an anchor: a digest over the event's content and the
// anchor of the event before it. The first event chains from a configured
// genesis anchor, so altering or reordering any stored event breaks every
// anchor from that point on and is caught by VerifyChain.
//
// A Ledger lives in memory. Persistence, reporting and metrics are separate
// collaborators that read ledger state and never modify it except through
// Append.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultGenesis is the root anchor used when none is configured.
	DefaultGenesis = "foundation-bloom-001"

	// DefaultIDWidth is the minimum number of digits in an event id sequence.
	DefaultIDWidth = 3
)

// Observer is notified after appends and chain verifications. It is called
// outside the ledger's lock and must not block.
type Observer interface {
	EventAppended(Event)
	ChainVerified(Result)
}

// Ledger is an in-memory, thread-safe, append-only event log.
type Ledger struct {
	mu       sync.RWMutex
	events   []Event
	counters map[Category]int

	genesis    string
	categories CategorySet
	scheme     AnchorScheme
	idWidth    int
	clock      func() time.Time
	logger     *zap.Logger
	observer   Observer
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithGenesis sets the genesis anchor.
func WithGenesis(anchor string) Option {
	return func(l *Ledger) { l.genesis = anchor }
}

// WithCategories sets the closed category set. An empty set is ignored.
func WithCategories(s CategorySet) Option {
	return func(l *Ledger) {
		if s.Len() > 0 {
			l.categories = s
		}
	}
}

// WithAnchorScheme sets the digest algorithm and anchor width.
func WithAnchorScheme(s AnchorScheme) Option {
	return func(l *Ledger) { l.scheme = s }
}

// WithIDWidth sets the zero-padding width of event id sequence numbers.
func WithIDWidth(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.idWidth = n
		}
	}
}

// WithClock overrides the timestamp source, mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(l *Ledger) { l.observer = o }
}

// New creates an empty Ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		genesis:    DefaultGenesis,
		categories: DefaultCategories(),
		scheme:     DefaultScheme(),
		idWidth:    DefaultIDWidth,
		clock:      time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.counters = make(map[Category]int, l.categories.Len())
	for _, c := range l.categories.Codes() {
		l.counters[c] = 0
	}
	return l
}

// Restore rebuilds a Ledger from previously appended events, in order.
// Sequence counters are recovered by replaying event ids; a gap or repeat
// is logged at warn and the counter keeps the highest sequence seen. Anchors
// are not checked here; call VerifyChain on the result.
func Restore(events []Event, opts ...Option) (*Ledger, error) {
	l := New(opts...)
	l.events = make([]Event, 0, len(events))
	for i, e := range events {
		if !l.categories.Contains(e.Category) {
			return nil, fmt.Errorf("event %d: %w: %q", i, ErrInvalidCategory, e.Category)
		}
		c, seq, err := ParseEventID(e.ID)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if c != e.Category {
			return nil, fmt.Errorf("event %d: %w: %q does not match category %q", i, ErrMalformedEventID, e.ID, e.Category)
		}
		if want := l.counters[c] + 1; seq != want {
			l.logger.Warn("ledger sequence out of order on restore",
				zap.Int("index", i),
				zap.String("event_id", e.ID),
				zap.Int("expected_seq", want),
			)
		}
		if seq > l.counters[c] {
			l.counters[c] = seq
		}
		l.events = append(l.events, e.Clone())
	}
	l.logger.Debug("ledger restored", zap.Int("events", len(l.events)))
	return l, nil
}

// Append records a new event chained to the current head and returns it.
// On error the ledger is left unchanged.
func (l *Ledger) Append(category Category, entity string, payload Payload) (Event, error) {
	if !l.categories.Contains(category) {
		return Event{}, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	for key := range payload {
		if IsReserved(key) {
			return Event{}, fmt.Errorf("%w: %q", ErrReservedField, key)
		}
	}

	l.mu.Lock()
	seq := l.counters[category] + 1
	e := Event{
		ID:        FormatEventID(category, seq, l.idWidth),
		Timestamp: l.clock().UTC(),
		Category:  category,
		Entity:    entity,
		Payload:   payload.clone(),
	}
	anchor, err := l.scheme.Compute(e, l.headLocked())
	if err != nil {
		l.mu.Unlock()
		return Event{}, fmt.Errorf("compute anchor for %s: %w", e.ID, err)
	}
	e.Anchor = anchor
	l.counters[category] = seq
	l.events = append(l.events, e)
	l.mu.Unlock()

	l.logger.Debug("ledger event appended",
		zap.String("event_id", e.ID),
		zap.String("category", string(e.Category)),
		zap.String("entity", e.Entity),
	)
	if l.observer != nil {
		l.observer.EventAppended(e.Clone())
	}
	return e.Clone(), nil
}

// snapshot returns the events appended so far. Stored events are never
// modified after append, so the returned prefix is safe to read unlocked.
func (l *Ledger) snapshot() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.events[:len(l.events):len(l.events)]
}

func (l *Ledger) headLocked() string {
	if len(l.events) == 0 {
		return l.genesis
	}
	return l.events[len(l.events)-1].Anchor
}

// Get returns a copy of the event at the given zero-based index.
func (l *Ledger) Get(index int) (Event, error) {
	events := l.snapshot()
	if index < 0 || index >= len(events) {
		return Event{}, fmt.Errorf("%w: index %d", ErrEventNotFound, index)
	}
	return events[index].Clone(), nil
}

// Events returns copies of all events in chain order.
func (l *Ledger) Events() []Event {
	events := l.snapshot()
	out := make([]Event, len(events))
	for i, e := range events {
		out[i] = e.Clone()
	}
	return out
}

// Len returns the number of events.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Head returns the anchor of the newest event, or the genesis anchor when
// the ledger is empty.
func (l *Ledger) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headLocked()
}

// Genesis returns the genesis anchor.
func (l *Ledger) Genesis() string { return l.genesis }

// Categories returns the ledger's category set.
func (l *Ledger) Categories() CategorySet { return l.categories }

// SequenceCounters returns the last used sequence number per category.
func (l *Ledger) SequenceCounters() map[Category]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[Category]int, len(l.counters))
	for c, n := range l.counters {
		out[c] = n
	}
	return out
}

// Entities returns the distinct entities in order of first appearance.
func (l *Ledger) Entities() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range l.snapshot() {
		if !seen[e.Entity] {
			seen[e.Entity] = true
			out = append(out, e.Entity)
		}
	}
	return out
}
