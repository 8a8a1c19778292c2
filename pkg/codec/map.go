package codec

import (
	"sort"
	"strconv"
)

// Key is a map key: either an integer label or a text label.
type Key struct {
	text bool
	i    int64
	s    string
}

// IntKey returns an integer map key.
func IntKey(i int64) Key { return Key{i: i} }

// TextKey returns a text map key.
func TextKey(s string) Key { return Key{text: true, s: s} }

func (k Key) IsInt() bool  { return !k.text }
func (k Key) Int() int64   { return k.i }
func (k Key) Text() string { return k.s }

func (k Key) String() string {
	if k.text {
		return strconv.Quote(k.s)
	}
	return strconv.FormatInt(k.i, 10)
}

func (k Key) native() any {
	if k.text {
		return k.s
	}
	return k.i
}

// less orders keys the way their deterministic encodings sort bytewise:
// unsigned integers ascending, then negative integers by ascending magnitude,
// then text by length and content.
func (k Key) less(other Key) bool {
	if k.text != other.text {
		return !k.text
	}
	if k.text {
		if len(k.s) != len(other.s) {
			return len(k.s) < len(other.s)
		}
		return k.s < other.s
	}
	kNeg, oNeg := k.i < 0, other.i < 0
	switch {
	case kNeg != oNeg:
		return !kNeg
	case kNeg:
		return k.i > other.i
	default:
		return k.i < other.i
	}
}

// Map is a CBOR map with unique keys. Keys are kept in deterministic encoding
// order, so iteration order matches the byte order of the encoded map.
type Map struct {
	keys   []Key
	values map[Key]Value
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{values: make(map[Key]Value)}
}

// Set stores value under key, replacing any previous value.
func (m *Map) Set(key Key, value Value) {
	if _, exists := m.values[key]; !exists {
		idx := sort.Search(len(m.keys), func(i int) bool { return !m.keys[i].less(key) })
		m.keys = append(m.keys, Key{})
		copy(m.keys[idx+1:], m.keys[idx:])
		m.keys[idx] = key
	}
	m.values[key] = value
}

// Get returns the value stored under key.
func (m *Map) Get(key Key) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map) Has(key Key) bool {
	_, ok := m.Get(key)
	return ok
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in deterministic encoding order.
func (m *Map) Keys() []Key {
	if m == nil {
		return nil
	}
	out := make([]Key, len(m.keys))
	copy(out, m.keys)
	return out
}

// Range calls fn for each entry in key order until fn returns false.
func (m *Map) Range(fn func(Key, Value) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// Clone returns a shallow copy; nested values are shared, which is safe
// because values are never mutated in place.
func (m *Map) Clone() *Map {
	out := NewMap()
	if m == nil {
		return out
	}
	out.keys = append(out.keys, m.keys...)
	for k, v := range m.values {
		out.values[k] = v
	}
	return out
}

// MarshalCBOR encodes the map; a nil map encodes as an empty map.
func (m *Map) MarshalCBOR() ([]byte, error) {
	return encMode.Marshal(m.native())
}

func (m *Map) native() map[any]any {
	if m == nil {
		return map[any]any{}
	}
	out := make(map[any]any, len(m.keys))
	for _, k := range m.keys {
		out[k.native()] = m.values[k].native()
	}
	return out
}
