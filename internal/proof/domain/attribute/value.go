// Package attribute holds the canonical representation of credential attribute values.
//
// Values are normalized once, when they are constructed or decoded. A value keeps
// its wire kind (string, integer, timestamp) for round-tripping and display, and
// additionally carries the comparison keys derived from it: a canonical decimal
// string also carries its integer, an RFC 3339 string also carries its instant.
// Comparisons only ever look at those keys, so an attribute stored as a number
// compares equal to the same value written as a string in a statement set.
package attribute

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Kind is the wire representation of a value.
type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindInteger
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindTimestamp:
		return "timestamp"
	default:
		return "invalid"
	}
}

const dateTimeType = "date-time"

// ErrInvalidValue is returned when a JSON value cannot be an attribute value.
var ErrInvalidValue = errors.New("invalid attribute value")

// Value is an immutable attribute value.
type Value struct {
	kind Kind
	str  string
	num  *big.Int
	ts   time.Time
	hasT bool
}

// String builds a string value.
func String(s string) Value {
	v := Value{kind: KindString, str: s}
	if n, ok := canonicalInteger(s); ok {
		v.num = n
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		v.ts, v.hasT = t.UTC(), true
	}
	return v
}

// Integer builds an integer value. The argument is copied.
func Integer(n *big.Int) Value {
	return Value{kind: KindInteger, num: new(big.Int).Set(n)}
}

// Int64 builds an integer value from an int64.
func Int64(n int64) Value {
	return Value{kind: KindInteger, num: big.NewInt(n)}
}

// Timestamp builds a timestamp value.
func Timestamp(t time.Time) Value {
	return Value{kind: KindTimestamp, ts: t.UTC(), hasT: true}
}

// Kind returns the wire kind of the value.
func (v Value) Kind() Kind { return v.kind }

// IsZero reports whether v was never assigned.
func (v Value) IsZero() bool { return v.kind == KindInvalid }

// String renders the value for display.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInteger:
		return v.num.String()
	case KindTimestamp:
		return v.ts.Format(time.RFC3339)
	default:
		return ""
	}
}

// Compare orders a against b. ok is false when the two values have no common
// comparison key; callers treat that as "predicate not satisfied".
func Compare(a, b Value) (cmp int, ok bool) {
	if a.IsZero() || b.IsZero() {
		return 0, false
	}
	switch {
	case a.num != nil && b.num != nil:
		return a.num.Cmp(b.num), true
	case a.hasT && b.hasT:
		return a.ts.Compare(b.ts), true
	case a.kind == KindString && b.kind == KindString:
		return strings.Compare(a.str, b.str), true
	default:
		return 0, false
	}
}

// Equal reports whether a and b denote the same value.
func Equal(a, b Value) bool {
	c, ok := Compare(a, b)
	return ok && c == 0
}

// canonicalInteger accepts only the form big.Int would print: no sign on zero,
// no leading zeros, no plus sign. "007" therefore stays a plain string.
func canonicalInteger(s string) (*big.Int, bool) {
	if s == "" || len(s) > 78 {
		return nil, false
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.String() != s {
		return nil, false
	}
	return n, true
}

type dateTime struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// MarshalJSON keeps the wire kind: strings as JSON strings, integers as JSON
// numbers, timestamps as {"type":"date-time","timestamp":...}.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindInteger:
		return []byte(v.num.String()), nil
	case KindTimestamp:
		return json.Marshal(dateTime{Type: dateTimeType, Timestamp: v.ts.Format(time.RFC3339)})
	default:
		return nil, ErrInvalidValue
	}
}

// UnmarshalJSON decodes any of the three wire forms.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ErrInvalidValue
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case '{':
		var dt dateTime
		if err := json.Unmarshal(data, &dt); err != nil {
			return err
		}
		if dt.Type != dateTimeType {
			return fmt.Errorf("%w: unsupported object type %q", ErrInvalidValue, dt.Type)
		}
		t, err := time.Parse(time.RFC3339, dt.Timestamp)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		*v = Timestamp(t)
		return nil
	default:
		n, ok := new(big.Int).SetString(string(data), 10)
		if !ok {
			return fmt.Errorf("%w: %s is not an integer", ErrInvalidValue, data)
		}
		*v = Integer(n)
		return nil
	}
}

// Map is a read-only attribute map keyed by attribute tag.
type Map map[string]Value

// Get returns the value stored under tag.
func (m Map) Get(tag string) (Value, bool) {
	v, ok := m[tag]
	return v, ok && !v.IsZero()
}

// Has reports whether tag is present.
func (m Map) Has(tag string) bool {
	_, ok := m.Get(tag)
	return ok
}

// Strings builds a map of string values.
func Strings(values map[string]string) Map {
	m := make(Map, len(values))
	for k, v := range values {
		m[k] = String(v)
	}
	return m
}
