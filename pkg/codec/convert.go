package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// UnsupportedValueTypeError reports a Go value that has no place in the
// closed Value variant. Path locates it inside the input tree.
type UnsupportedValueTypeError struct {
	Type string
	Path string
}

func (e *UnsupportedValueTypeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("codec: unsupported value type %s", e.Type)
	}
	return fmt.Sprintf("codec: unsupported value type %s at %s", e.Type, e.Path)
}

// FromGo converts a decoded JSON or CBOR tree (or a hand-built one) into a
// Value. Anything outside the recognized shapes is rejected with
// *UnsupportedValueTypeError.
func FromGo(x any) (Value, error) {
	return FromGoAt(x, "")
}

// FromGoAt is FromGo with a path prefix used in error reports.
func FromGoAt(x any, path string) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case *Map:
		return MapValue(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Uint(uint64(t)), nil
	case uint8:
		return Uint(uint64(t)), nil
	case uint16:
		return Uint(uint64(t)), nil
	case uint32:
		return Uint(uint64(t)), nil
	case uint64:
		return Uint(t), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case json.Number:
		return fromNumber(t, path)
	case string:
		return Text(t), nil
	case []byte:
		return Bytes(t), nil
	case []string:
		items := make([]Value, len(t))
		for i, s := range t {
			items[i] = Text(s)
		}
		return Array(items...), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := FromGoAt(item, indexPath(path, i))
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Array(items...), nil
	case map[string]any:
		m := NewMap()
		for _, name := range sortedNames(t) {
			v, err := FromGoAt(t[name], fieldPath(path, name))
			if err != nil {
				return Value{}, err
			}
			m.Set(TextKey(name), v)
		}
		return MapValue(m), nil
	case map[int64]any:
		m := NewMap()
		for k, item := range t {
			v, err := FromGoAt(item, fieldPath(path, strconv.FormatInt(k, 10)))
			if err != nil {
				return Value{}, err
			}
			m.Set(IntKey(k), v)
		}
		return MapValue(m), nil
	case map[any]any:
		m := NewMap()
		for k, item := range t {
			key, err := keyFromGo(k, path)
			if err != nil {
				return Value{}, err
			}
			v, err := FromGoAt(item, fieldPath(path, key.String()))
			if err != nil {
				return Value{}, err
			}
			m.Set(key, v)
		}
		return MapValue(m), nil
	default:
		return fromReflect(x, path)
	}
}

// fromReflect handles typed sequences and mappings such as []int or
// map[string]string that the fast path above does not name.
func fromReflect(x any, path string) (Value, error) {
	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null(), nil
		}
		items := make([]Value, rv.Len())
		for i := range items {
			v, err := FromGoAt(rv.Index(i).Interface(), indexPath(path, i))
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Array(items...), nil
	case reflect.Map:
		if rv.IsNil() {
			return Null(), nil
		}
		m := NewMap()
		iter := rv.MapRange()
		for iter.Next() {
			key, err := keyFromReflect(iter.Key(), path)
			if err != nil {
				return Value{}, err
			}
			name := key.Text()
			if key.IsInt() {
				name = key.String()
			}
			v, err := FromGoAt(iter.Value().Interface(), fieldPath(path, name))
			if err != nil {
				return Value{}, err
			}
			m.Set(key, v)
		}
		return MapValue(m), nil
	}
	return Value{}, &UnsupportedValueTypeError{Type: fmt.Sprintf("%T", x), Path: path}
}

func keyFromReflect(k reflect.Value, path string) (Key, error) {
	if k.Kind() == reflect.Interface {
		if k.IsNil() {
			return Key{}, &UnsupportedValueTypeError{Type: "map key <nil>", Path: path}
		}
		k = k.Elem()
	}
	switch k.Kind() {
	case reflect.String:
		return TextKey(k.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return IntKey(k.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if u := k.Uint(); u <= math.MaxInt64 {
			return IntKey(int64(u)), nil
		}
	}
	return keyFromGo(k.Interface(), path)
}

func keyFromGo(k any, path string) (Key, error) {
	switch t := k.(type) {
	case string:
		return TextKey(t), nil
	case int:
		return IntKey(int64(t)), nil
	case int64:
		return IntKey(t), nil
	case uint64:
		if t <= math.MaxInt64 {
			return IntKey(int64(t)), nil
		}
	}
	return Key{}, &UnsupportedValueTypeError{Type: fmt.Sprintf("map key %T", k), Path: path}
}

// fromNumber keeps integers exact; only numbers with a fraction or exponent
// become floats.
func fromNumber(n json.Number, path string) (Value, error) {
	if i, err := n.Int64(); err == nil {
		return Int(i), nil
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return Uint(u), nil
	}
	f, err := n.Float64()
	if err != nil {
		return Value{}, &UnsupportedValueTypeError{Type: "json.Number " + strconv.Quote(n.String()), Path: path}
	}
	return Float(f), nil
}

func sortedNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func fieldPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func indexPath(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}
