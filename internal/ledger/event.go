package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Structural field names. Payloads may not use them.
const (
	FieldEventID   = "event_id"
	FieldTimestamp = "timestamp"
	FieldCategory  = "category"
	FieldEntity    = "entity"
	FieldAnchor    = "anchor"
)

// IsReserved reports whether key names a structural event field.
func IsReserved(key string) bool {
	switch key {
	case FieldEventID, FieldTimestamp, FieldCategory, FieldEntity, FieldAnchor:
		return true
	}
	return false
}

// Payload is the caller-supplied, open part of an event.
type Payload map[string]Value

func (p Payload) clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Event is a single record in the ledger. Its JSON form is flat: the
// structural fields and the payload keys share one object.
type Event struct {
	ID        string
	Timestamp time.Time
	Category  Category
	Entity    string
	Payload   Payload
	Anchor    string
}

// Clone returns a copy of e that shares no payload map with it.
func (e Event) Clone() Event {
	e.Payload = e.Payload.clone()
	return e
}

// fields returns the flat field set of e without its anchor. Every string
// must be valid UTF-8: json.Marshal would replace bad bytes with U+FFFD and
// give different events the same canonical form.
func (e Event) fields() (map[string]any, error) {
	for name, s := range map[string]string{
		FieldEventID:  e.ID,
		FieldCategory: string(e.Category),
		FieldEntity:   e.Entity,
	} {
		if !utf8.ValidString(s) {
			return nil, fmt.Errorf("%w: %s %q is not valid UTF-8", ErrSerialization, name, s)
		}
	}

	out := make(map[string]any, len(e.Payload)+4)
	for k, v := range e.Payload {
		if !utf8.ValidString(k) {
			return nil, fmt.Errorf("%w: payload key %q is not valid UTF-8", ErrSerialization, k)
		}
		if IsReserved(k) {
			return nil, fmt.Errorf("%w: %q", ErrReservedField, k)
		}
		c, err := v.canonical()
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = c
	}
	out[FieldEventID] = e.ID
	out[FieldTimestamp] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	out[FieldCategory] = string(e.Category)
	out[FieldEntity] = e.Entity
	return out, nil
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	out, err := e.fields()
	if err != nil {
		return nil, err
	}
	if e.Anchor != "" {
		out[FieldAnchor] = e.Anchor
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var ev Event
	var ts string
	structural := map[string]*string{
		FieldEventID:   &ev.ID,
		FieldTimestamp: &ts,
		FieldEntity:    &ev.Entity,
		FieldAnchor:    &ev.Anchor,
	}
	for key, msg := range raw {
		if key == FieldCategory {
			if err := json.Unmarshal(msg, &ev.Category); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
			continue
		}
		if dst, ok := structural[key]; ok {
			if err := json.Unmarshal(msg, dst); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
			continue
		}
		var v Value
		if err := v.UnmarshalJSON(msg); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		if ev.Payload == nil {
			ev.Payload = make(Payload)
		}
		ev.Payload[key] = v
	}

	if ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return fmt.Errorf("decode %s: %w", FieldTimestamp, err)
		}
		ev.Timestamp = t.UTC()
	}
	*e = ev
	return nil
}

// FormatEventID builds "<category>-<seq>" with seq zero-padded to width digits.
// Sequences wider than width are printed in full.
func FormatEventID(c Category, seq, width int) string {
	return fmt.Sprintf("%s-%0*d", c, width, seq)
}

// ParseEventID splits an event id into its category and sequence number.
func ParseEventID(id string) (Category, int, error) {
	i := strings.LastIndexByte(id, '-')
	if i <= 0 || i == len(id)-1 {
		return "", 0, fmt.Errorf("%w: %q", ErrMalformedEventID, id)
	}
	seq, err := strconv.Atoi(id[i+1:])
	if err != nil || seq < 1 {
		return "", 0, fmt.Errorf("%w: %q", ErrMalformedEventID, id)
	}
	return Category(id[:i]), seq, nil
}
