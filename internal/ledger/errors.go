package ledger

import "errors"

var (
	// ErrInvalidCategory is returned when an event names a category outside
	// the ledger's closed category set.
	ErrInvalidCategory = errors.New("ledger: invalid category")

	// ErrReservedField is returned when a payload tries to set one of the
	// structural fields (event_id, timestamp, category, entity, anchor).
	ErrReservedField = errors.New("ledger: payload uses reserved field")

	// ErrEventNotFound is returned (or carried in a Result) for an index
	// outside the ledger.
	ErrEventNotFound = errors.New("ledger: event not found")

	// ErrSerialization is returned when an event cannot be canonically
	// encoded, e.g. because a payload value is NaN or not valid UTF-8.
	ErrSerialization = errors.New("ledger: event not serializable")

	// ErrMalformedEventID is returned by Restore and ParseEventID for an
	// event_id that is not of the form <CATEGORY>-<N>.
	ErrMalformedEventID = errors.New("ledger: malformed event id")
)
