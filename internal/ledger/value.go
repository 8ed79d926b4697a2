package ledger

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
	"unicode/utf8"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
	KindTime
)

// Value is a single payload value: a string, a number, a boolean or a
// timestamp. The zero Value is invalid and fails serialization.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	t    time.Time
}

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric Value. NaN and infinities cannot be serialized.
// Negative zero is stored as zero, since both canonicalize to 0.
func Number(f float64) Value {
	if f == 0 {
		f = 0
	}
	return Value{kind: KindNumber, num: f}
}

// Int returns a numeric Value holding i. Integers beyond 2^53 lose precision.
func Int(i int64) Value { return Number(float64(i)) }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Time returns a timestamp Value. It serializes as an RFC 3339 UTC string,
// so a persisted timestamp reloads as a string Value with the same anchor input.
func Time(t time.Time) Value { return Value{kind: KindTime, t: t.UTC()} }

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// String returns the display form of v.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// canonical returns the JSON-native form of v used for hashing and storage.
func (v Value) canonical() (any, error) {
	switch v.kind {
	case KindString:
		if !utf8.ValidString(v.str) {
			return nil, fmt.Errorf("%w: invalid UTF-8 string", ErrSerialization)
		}
		return v.str, nil
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("%w: non-finite number %v", ErrSerialization, v.num)
		}
		return v.num, nil
	case KindBool:
		return v.b, nil
	case KindTime:
		return v.t.Format(time.RFC3339Nano), nil
	default:
		return nil, fmt.Errorf("%w: empty value", ErrSerialization)
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	c, err := v.canonical()
	if err != nil {
		return nil, err
	}
	return json.Marshal(c)
}

// UnmarshalJSON implements json.Unmarshaler. Only JSON strings, numbers and
// booleans are accepted.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case string:
		*v = String(x)
	case float64:
		*v = Number(x)
	case bool:
		*v = Bool(x)
	default:
		return fmt.Errorf("%w: unsupported payload value %s", ErrSerialization, data)
	}
	return nil
}
