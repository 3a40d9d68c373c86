package value

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Kind identifies which variant of the Value union is active.
type Kind int

const (
	// KindNull is the null marker. It is the kind of the zero Value and is
	// distinct from an absent field in a struct.
	KindNull Kind = iota
	// KindString holds a UTF-8 string.
	KindString
	// KindInt64 holds a signed 64-bit integer.
	KindInt64
	// KindDouble holds an IEEE-754 double.
	KindDouble
	// KindBool holds a boolean.
	KindBool
	// KindTimestamp holds a point in time with nanosecond precision.
	KindTimestamp
	// KindBytes holds an opaque byte sequence.
	KindBytes
	// KindStruct holds a string-keyed mapping of Values. Key order is not
	// significant.
	KindStruct
	// KindList holds an ordered sequence of Values.
	KindList
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt64:
		return "int64"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	case KindTimestamp:
		return "timestamp"
	case KindBytes:
		return "bytes"
	case KindStruct:
		return "struct"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is a dynamically-typed datum. Exactly one variant is active,
// identified by Kind(). The zero Value is the null Value.
//
// Struct and list payloads are map and slice headers, which gives the
// recursion the heap indirection it needs while keeping Value itself a small
// fixed-size struct that can be passed by value.
type Value struct {
	kind Kind

	str    string
	num    int64
	dbl    float64
	bl     bool
	ts     time.Time
	raw    []byte
	fields map[string]Value
	items  []Value
}

// Null returns the null Value. It is identical to the zero Value.
func Null() Value {
	return Value{}
}

// String returns a string Value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Int64 returns an integer Value.
func Int64(n int64) Value {
	return Value{kind: KindInt64, num: n}
}

// Double returns a double Value.
func Double(f float64) Value {
	return Value{kind: KindDouble, dbl: f}
}

// Bool returns a boolean Value.
func Bool(b bool) Value {
	return Value{kind: KindBool, bl: b}
}

// Timestamp returns a timestamp Value.
func Timestamp(t time.Time) Value {
	return Value{kind: KindTimestamp, ts: t}
}

// Bytes returns a bytes Value. The slice is used directly, not copied.
func Bytes(b []byte) Value {
	return Value{kind: KindBytes, raw: b}
}

// Struct returns a struct Value over the given fields. The map is used
// directly, not copied; callers must not mutate it afterwards.
func Struct(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindStruct, fields: fields}
}

// List returns a list Value over the given items. The slice is used
// directly, not copied.
func List(items []Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, items: items}
}

// Kind reports which variant is active.
func (v Value) Kind() Kind {
	return v.kind
}

// IsNull reports whether the Value is the null Value.
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// StringVal returns the string payload. The second return is false when the
// Value is not a string.
func (v Value) StringVal() (string, bool) {
	return v.str, v.kind == KindString
}

// Int64Val returns the integer payload.
func (v Value) Int64Val() (int64, bool) {
	return v.num, v.kind == KindInt64
}

// DoubleVal returns the double payload.
func (v Value) DoubleVal() (float64, bool) {
	return v.dbl, v.kind == KindDouble
}

// BoolVal returns the boolean payload.
func (v Value) BoolVal() (bool, bool) {
	return v.bl, v.kind == KindBool
}

// TimestampVal returns the timestamp payload.
func (v Value) TimestampVal() (time.Time, bool) {
	return v.ts, v.kind == KindTimestamp
}

// BytesVal returns the bytes payload. Callers must not mutate the slice.
func (v Value) BytesVal() ([]byte, bool) {
	return v.raw, v.kind == KindBytes
}

// StructVal returns the struct payload. Callers must not mutate the map.
func (v Value) StructVal() (map[string]Value, bool) {
	return v.fields, v.kind == KindStruct
}

// ListVal returns the list payload. Callers must not mutate the slice.
func (v Value) ListVal() ([]Value, bool) {
	return v.items, v.kind == KindList
}

// Field returns the named struct field. The second return is false when the
// Value is not a struct or the field is absent.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindStruct {
		return Value{}, false
	}
	f, ok := v.fields[name]
	return f, ok
}

// Equal reports structural, type-strict equality. Values of different kinds
// are never equal, so Int64(3) is not equal to Double(3). Struct comparison
// ignores key order; list comparison respects element order. Double NaN
// payloads compare equal to each other so Equal stays reflexive.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindInt64:
		return v.num == o.num
	case KindDouble:
		if math.IsNaN(v.dbl) && math.IsNaN(o.dbl) {
			return true
		}
		return v.dbl == o.dbl
	case KindBool:
		return v.bl == o.bl
	case KindTimestamp:
		return v.ts.Equal(o.ts)
	case KindBytes:
		if len(v.raw) != len(o.raw) {
			return false
		}
		for i := range v.raw {
			if v.raw[i] != o.raw[i] {
				return false
			}
		}
		return true
	case KindStruct:
		if len(v.fields) != len(o.fields) {
			return false
		}
		for k, f := range v.fields {
			of, ok := o.fields[k]
			if !ok || !f.Equal(of) {
				return false
			}
		}
		return true
	case KindList:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders the Value for logs and error messages. Bytes payloads are
// summarized by length rather than dumped.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return fmt.Sprintf("%q", v.str)
	case KindInt64:
		return fmt.Sprintf("%d", v.num)
	case KindDouble:
		return fmt.Sprintf("%g", v.dbl)
	case KindBool:
		return fmt.Sprintf("%t", v.bl)
	case KindTimestamp:
		return v.ts.UTC().Format(time.RFC3339Nano)
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.raw))
	case KindStruct:
		keys := make([]string, 0, len(v.fields))
		for k := range v.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%q: %s", k, v.fields[k].String())
		}
		b.WriteByte('}')
		return b.String()
	case KindList:
		parts := make([]string, len(v.items))
		for i, it := range v.items {
			parts[i] = it.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "unknown"
	}
}
