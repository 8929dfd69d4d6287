// Package value implements the engine's tagged value model: the dynamic
// Value type carried by rows, comparators over it, key tuples, and the
// Ordering/Constraint types the source and operator layers use to describe
// sort order and scan predicates (§3.1 of the design).
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind tags the dynamic type carried by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int64"
	case KindFloat:
		return "float64"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindJSON:
		return "json"
	default:
		return "unknown"
	}
}

// Value is one of null | bool | int64 | float64 | string | bytes | json.
// It is a small value type so rows can share Values freely without
// indirection.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	by   []byte
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a bool value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an int64 value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a float64 value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Bytes returns a bytes value. The slice is not copied; callers must treat
// rows as immutable once constructed.
func Bytes(b []byte) Value { return Value{kind: KindBytes, by: b} }

// JSON returns a json value wrapping raw, already-validated JSON bytes.
func JSON(raw json.RawMessage) Value { return Value{kind: KindJSON, by: []byte(raw)} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool)          { return v.b, v.kind == KindBool }
func (v Value) AsInt() (int64, bool)          { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool)      { return v.f, v.kind == KindFloat }
func (v Value) AsString() (string, bool)      { return v.s, v.kind == KindString }
func (v Value) AsBytes() ([]byte, bool)       { return v.by, v.kind == KindBytes }
func (v Value) AsJSON() (json.RawMessage, bool) { return json.RawMessage(v.by), v.kind == KindJSON }

// numeric reports whether v carries int64 or float64 and returns it widened
// to float64 for cross-type comparison.
func (v Value) numeric() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// Compare orders two Values: null sorts below every non-null value; numerics
// compare numerically regardless of int/float tagging; strings compare by
// UTF-8 code-point order (equivalent to Go's native byte-wise string
// comparison for valid UTF-8); bytes/json compare byte-wise. Comparing across
// unrelated non-null kinds is deterministic but otherwise unspecified by the
// design; this implementation orders by Kind as a tiebreaker so the total
// order requirement (§3.1) still holds.
func Compare(a, b Value) int {
	if a.kind == KindNull && b.kind == KindNull {
		return 0
	}
	if a.kind == KindNull {
		return -1
	}
	if b.kind == KindNull {
		return 1
	}

	if an, aok := a.numeric(); aok {
		if bn, bok := b.numeric(); bok {
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			default:
				return 0
			}
		}
	}

	if a.kind == b.kind {
		switch a.kind {
		case KindBool:
			switch {
			case a.b == b.b:
				return 0
			case !a.b:
				return -1
			default:
				return 1
			}
		case KindString:
			return compareStrings(a.s, b.s)
		case KindBytes, KindJSON:
			return bytes.Compare(a.by, b.by)
		}
	}

	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	return 0
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Equal reports whether a and b compare equal under Compare.
func Equal(a, b Value) bool { return Compare(a, b) == 0 }

// MarshalJSON encodes v as its natural JSON representation: a bytes value
// becomes a base64 string (Go's default []byte encoding), a json value is
// emitted inline unescaped.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindBytes:
		return json.Marshal(v.by)
	case KindJSON:
		if len(v.by) == 0 {
			return []byte("null"), nil
		}
		return v.by, nil
	default:
		return []byte("null"), nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%v", v.f)
	case KindString:
		return v.s
	case KindBytes:
		return fmt.Sprintf("0x%x", v.by)
	case KindJSON:
		return string(v.by)
	default:
		return ""
	}
}
