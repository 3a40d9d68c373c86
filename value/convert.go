package value

import (
	"fmt"
	"time"
)

// FromNative converts a native Go representation into a Value. Supported
// inputs are nil, string, bool, []byte, time.Time, the common integer and
// float widths, map[string]any, []any, and the typed forms map[string]Value
// and []Value. Integer inputs become int64 Values and float inputs become
// double Values; the distinction is preserved across the wire.
func FromNative(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int64(int64(t)), nil
	case int32:
		return Int64(int64(t)), nil
	case int64:
		return Int64(t), nil
	case uint32:
		return Int64(int64(t)), nil
	case float32:
		return Double(float64(t)), nil
	case float64:
		return Double(t), nil
	case []byte:
		return Bytes(t), nil
	case time.Time:
		return Timestamp(t), nil
	case map[string]Value:
		return Struct(t), nil
	case []Value:
		return List(t), nil
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, raw := range t {
			fv, err := FromNative(raw)
			if err != nil {
				return Value{}, fmt.Errorf("struct field %q: %w", k, err)
			}
			fields[k] = fv
		}
		return Struct(fields), nil
	case []any:
		items := make([]Value, len(t))
		for i, raw := range t {
			iv, err := FromNative(raw)
			if err != nil {
				return Value{}, fmt.Errorf("list index %d: %w", i, err)
			}
			items[i] = iv
		}
		return List(items), nil
	default:
		return Value{}, fmt.Errorf("unsupported native type %T", v)
	}
}

// MustFromNative is FromNative that panics on unsupported input. Intended for
// literals in tests and static configuration.
func MustFromNative(v any) Value {
	val, err := FromNative(v)
	if err != nil {
		panic(err)
	}
	return val
}

// Native converts the Value back to a native Go representation: nil, string,
// int64, float64, bool, time.Time, []byte, map[string]any, or []any.
func (v Value) Native() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindString:
		return v.str
	case KindInt64:
		return v.num
	case KindDouble:
		return v.dbl
	case KindBool:
		return v.bl
	case KindTimestamp:
		return v.ts
	case KindBytes:
		return v.raw
	case KindStruct:
		out := make(map[string]any, len(v.fields))
		for k, f := range v.fields {
			out[k] = f.Native()
		}
		return out
	case KindList:
		out := make([]any, len(v.items))
		for i, it := range v.items {
			out[i] = it.Native()
		}
		return out
	default:
		return nil
	}
}
