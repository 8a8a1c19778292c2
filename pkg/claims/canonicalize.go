package claims

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/boogy/aws-cwt-issuer/pkg/codec"
)

// UnknownClaimNameError reports a claim name that is neither registered nor
// present in the Registry.
type UnknownClaimNameError struct {
	Name string
	Path string
}

func (e *UnknownClaimNameError) Error() string {
	if e.Path == "" || e.Path == e.Name {
		return fmt.Sprintf("claims: unknown claim name %q", e.Name)
	}
	return fmt.Sprintf("claims: unknown claim name %q at %s", e.Name, e.Path)
}

// Canonicalize converts a name-keyed payload into a claim set keyed by
// integers. Names are processed in sorted order so the first failure is the
// same on every run. On error no claim set is returned.
func Canonicalize(payload map[string]any, reg *Registry) (*codec.Map, error) {
	return canonicalize(payload, reg, "")
}

func canonicalize(payload map[string]any, reg *Registry, path string) (*codec.Map, error) {
	names := make([]string, 0, len(payload))
	for name := range payload {
		names = append(names, name)
	}
	sort.Strings(names)

	set := codec.NewMap()
	for _, name := range names {
		at := joinPath(path, name)

		key, ok := reg.Lookup(name)
		if !ok {
			return nil, &UnknownClaimNameError{Name: name, Path: at}
		}

		value, err := claimValue(name, key, payload[name], reg, at)
		if err != nil {
			return nil, err
		}
		set.Set(codec.IntKey(key), value)
	}

	return set, nil
}

func claimValue(name string, key int64, raw any, reg *Registry, path string) (codec.Value, error) {
	if key == CWTID {
		// cti is a byte string on the wire.
		if s, ok := raw.(string); ok {
			return codec.Bytes([]byte(s)), nil
		}
	}

	if pc, ok := reg.Private(name); ok && pc.Structured {
		if nested, ok := nameMap(raw); ok {
			m, err := canonicalize(nested, reg, path)
			if err != nil {
				return codec.Value{}, err
			}
			return codec.MapValue(m), nil
		}
	}

	return codec.FromGoAt(raw, path)
}

// nameMap views any string-keyed map as map[string]any.
func nameMap(raw any) (map[string]any, bool) {
	if m, ok := raw.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	m := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		m[iter.Key().String()] = iter.Value().Interface()
	}
	return m, true
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
