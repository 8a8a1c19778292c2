package codec

import (
	"fmt"
	"math"
	"strconv"
)

// Kind identifies which member of the closed Value variant is set.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindUint // only for integers above math.MaxInt64
	KindFloat
	KindText
	KindBytes
	KindArray
	KindMap
)

var kindNames = [...]string{
	KindNull:  "null",
	KindBool:  "bool",
	KindInt:   "int",
	KindUint:  "uint",
	KindFloat: "float",
	KindText:  "text",
	KindBytes: "bytes",
	KindArray: "array",
	KindMap:   "map",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a claim value: integer, text, byte string, boolean, null,
// floating point, array of values or map of values. The zero Value is null.
type Value struct {
	kind  Kind
	b     bool
	i     int64
	u     uint64
	f     float64
	s     string
	raw   []byte
	items []Value
	m     *Map
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Uint returns an unsigned integer value. Values that fit in an int64 are
// stored as Int so both spellings of the same number compare equal.
func Uint(u uint64) Value {
	if u <= math.MaxInt64 {
		return Int(int64(u))
	}
	return Value{kind: KindUint, u: u}
}

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Text returns a UTF-8 text value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Bytes returns a byte string value holding a copy of b.
func Bytes(b []byte) Value {
	raw := make([]byte, len(b))
	copy(raw, b)
	return Value{kind: KindBytes, raw: raw}
}

// Array returns an array value holding the given items in order.
func Array(items ...Value) Value {
	list := make([]Value, len(items))
	copy(list, items)
	return Value{kind: KindArray, items: list}
}

// MapValue wraps m as a Value. A nil map is treated as empty.
func MapValue(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: KindMap, m: m}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }

func (v Value) AsText() (string, bool) { return v.s, v.kind == KindText }

// AsBytes returns a copy of the byte string.
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	out := make([]byte, len(v.raw))
	copy(out, v.raw)
	return out, true
}

// Items returns a copy of the array members.
func (v Value) Items() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	out := make([]Value, len(v.items))
	copy(out, v.items)
	return out, true
}

func (v Value) AsMap() (*Map, bool) { return v.m, v.kind == KindMap }

// MarshalCBOR lets a Value sit inside any structure passed to Marshal.
func (v Value) MarshalCBOR() ([]byte, error) {
	return encMode.Marshal(v.native())
}

// String renders the value in CBOR diagnostic notation.
func (v Value) String() string {
	data, err := Encode(v)
	if err != nil {
		return fmt.Sprintf("<%s: %v>", v.kind, err)
	}
	diag, err := Diagnose(data)
	if err != nil {
		return fmt.Sprintf("<%s: %v>", v.kind, err)
	}
	return diag
}

// native converts the value into the plain Go shapes the CBOR encoder
// understands. Containers are never nil so they encode as empty rather than
// as null.
func (v Value) native() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindUint:
		return v.u
	case KindFloat:
		return v.f
	case KindText:
		return v.s
	case KindBytes:
		if v.raw == nil {
			return []byte{}
		}
		return v.raw
	case KindArray:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.native()
		}
		return out
	case KindMap:
		return v.m.native()
	default:
		return nil
	}
}
