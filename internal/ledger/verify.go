package ledger

import (
	"fmt"

	"go.uber.org/zap"
)

// Result is the outcome of verifying one event or the whole chain.
// A failed verification is a Result, not an error.
type Result struct {
	Valid bool
	// Index is the event checked, or the first broken event of a chain.
	// It is -1 for a chain that verified.
	Index int
	// Verified counts the events whose anchors matched.
	Verified int
	// Anchor is the stored anchor, Expected the recomputed one.
	Anchor   string
	Expected string
	Detail   string
	// Err is set when the event could not be checked at all.
	Err error
}

func (r Result) String() string { return r.Detail }

// VerifyEvent recomputes the anchor of the event at index and compares it
// with the stored one. An out-of-range index gives an invalid Result
// wrapping ErrEventNotFound.
func (l *Ledger) VerifyEvent(index int) Result {
	return l.verifyAt(l.snapshot(), index)
}

func (l *Ledger) verifyAt(events []Event, index int) Result {
	if index < 0 || index >= len(events) {
		return Result{
			Index:  index,
			Detail: fmt.Sprintf("event %d not found", index),
			Err:    fmt.Errorf("%w: index %d", ErrEventNotFound, index),
		}
	}

	prev := l.genesis
	if index > 0 {
		prev = events[index-1].Anchor
	}
	e := events[index]

	expected, err := l.scheme.Compute(e, prev)
	if err != nil {
		return Result{
			Index:  index,
			Anchor: e.Anchor,
			Detail: fmt.Sprintf("anchor not computable: %v", err),
			Err:    err,
		}
	}

	r := Result{
		Valid:    expected == e.Anchor,
		Index:    index,
		Anchor:   e.Anchor,
		Expected: expected,
	}
	if r.Valid {
		r.Verified = 1
		r.Detail = "anchor valid: " + e.Anchor
	} else {
		r.Detail = "anchor invalid: " + e.Anchor
	}
	return r
}

// VerifyChain verifies every event in order over a snapshot taken at call
// start and stops at the first mismatch.
func (l *Ledger) VerifyChain() Result {
	events := l.snapshot()

	r := Result{Valid: true, Index: -1, Verified: len(events)}
	for i := range events {
		er := l.verifyAt(events, i)
		if er.Valid {
			continue
		}
		er.Verified = i
		er.Detail = fmt.Sprintf("chain broken at event %d: %s", i, er.Detail)
		r = er
		break
	}

	if r.Valid {
		r.Detail = fmt.Sprintf("%d events verified", len(events))
	} else {
		l.logger.Warn("ledger chain verification failed",
			zap.Int("index", r.Index),
			zap.String("anchor", r.Anchor),
			zap.String("expected", r.Expected),
		)
	}
	if l.observer != nil {
		l.observer.ChainVerified(r)
	}
	return r
}
