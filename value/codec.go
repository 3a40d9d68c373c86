package value

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// wireValue is the CBOR layout of a Value. The kind tag disambiguates the
// payload fields, so zero payloads can be omitted from the encoding without
// losing type information. Timestamps travel as separate second/nanosecond
// components so any time.Time round-trips exactly, including the zero time.
type wireValue struct {
	Kind   uint8                 `cbor:"k"`
	Str    string                `cbor:"s,omitempty"`
	Int    int64                 `cbor:"i,omitempty"`
	Dbl    float64               `cbor:"d,omitempty"`
	Bool   bool                  `cbor:"b,omitempty"`
	Sec    int64                 `cbor:"ts,omitempty"`
	Nsec   int64                 `cbor:"tn,omitempty"`
	Raw    []byte                `cbor:"r,omitempty"`
	Fields map[string]*wireValue `cbor:"f,omitempty"`
	Items  []*wireValue          `cbor:"l,omitempty"`
}

func (v Value) toWire() *wireValue {
	w := &wireValue{Kind: uint8(v.kind)}
	switch v.kind {
	case KindString:
		w.Str = v.str
	case KindInt64:
		w.Int = v.num
	case KindDouble:
		w.Dbl = v.dbl
	case KindBool:
		w.Bool = v.bl
	case KindTimestamp:
		w.Sec = v.ts.Unix()
		w.Nsec = int64(v.ts.Nanosecond())
	case KindBytes:
		w.Raw = v.raw
	case KindStruct:
		w.Fields = make(map[string]*wireValue, len(v.fields))
		for k, f := range v.fields {
			w.Fields[k] = f.toWire()
		}
	case KindList:
		w.Items = make([]*wireValue, len(v.items))
		for i, it := range v.items {
			w.Items[i] = it.toWire()
		}
	}
	return w
}

func (w *wireValue) toValue() (Value, error) {
	switch Kind(w.Kind) {
	case KindNull:
		return Null(), nil
	case KindString:
		return String(w.Str), nil
	case KindInt64:
		return Int64(w.Int), nil
	case KindDouble:
		return Double(w.Dbl), nil
	case KindBool:
		return Bool(w.Bool), nil
	case KindTimestamp:
		return Timestamp(time.Unix(w.Sec, w.Nsec).UTC()), nil
	case KindBytes:
		raw := w.Raw
		if raw == nil {
			raw = []byte{}
		}
		return Bytes(raw), nil
	case KindStruct:
		fields := make(map[string]Value, len(w.Fields))
		for k, fw := range w.Fields {
			if fw == nil {
				return Value{}, fmt.Errorf("struct field %q: nil node", k)
			}
			f, err := fw.toValue()
			if err != nil {
				return Value{}, fmt.Errorf("struct field %q: %w", k, err)
			}
			fields[k] = f
		}
		return Struct(fields), nil
	case KindList:
		items := make([]Value, len(w.Items))
		for i, iw := range w.Items {
			if iw == nil {
				return Value{}, fmt.Errorf("list index %d: nil node", i)
			}
			it, err := iw.toValue()
			if err != nil {
				return Value{}, fmt.Errorf("list index %d: %w", i, err)
			}
			items[i] = it
		}
		return List(items), nil
	default:
		return Value{}, fmt.Errorf("unknown value kind %d", w.Kind)
	}
}

// MarshalCBOR implements cbor.Marshaler so Values can be embedded directly
// in larger wire envelopes.
func (v Value) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(v.toWire())
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (v *Value) UnmarshalCBOR(data []byte) error {
	var w wireValue
	if err := cbor.Unmarshal(data, &w); err != nil {
		return err
	}
	decoded, err := w.toValue()
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// Encode serializes the Value to wire bytes.
func (v Value) Encode() ([]byte, error) {
	data, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return data, nil
}

// Decode deserializes wire bytes produced by Encode.
func Decode(data []byte) (Value, error) {
	var v Value
	if err := cbor.Unmarshal(data, &v); err != nil {
		return Value{}, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}
