package claims

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrReservedClaimKey  = errors.New("claims: private claim key is reserved")
	ErrReservedClaimName = errors.New("claims: private claim name shadows a registered claim")
	ErrDuplicateClaim    = errors.New("claims: duplicate private claim")
	ErrEmptyClaimName    = errors.New("claims: private claim name is empty")
)

// Keys in [ReservedMin, ReservedMax] are assigned by IANA Standards Action
// and may not be claimed privately.
const (
	ReservedMin int64 = -256
	ReservedMax int64 = 255
)

// PrivateClaim binds an application claim name to an integer key.
type PrivateClaim struct {
	Name string `mapstructure:"name" json:"name"`
	Key  int64  `mapstructure:"key" json:"key"`
	// Structured claims have their nested text keys resolved with the same
	// rules as the top level.
	Structured bool `mapstructure:"structured" json:"structured,omitempty"`
}

// Registry resolves private claim names. It is read-only once built and
// safe for concurrent use.
type Registry struct {
	byName map[string]PrivateClaim
	byKey  map[int64]string
}

// NewRegistry validates the private claims and builds a Registry.
func NewRegistry(private ...PrivateClaim) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]PrivateClaim, len(private)),
		byKey:  make(map[int64]string, len(private)),
	}

	for _, pc := range private {
		if pc.Name == "" {
			return nil, ErrEmptyClaimName
		}
		if _, ok := registered[pc.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrReservedClaimName, pc.Name)
		}
		if name, ok := registeredNames[pc.Key]; ok {
			return nil, fmt.Errorf("%w: %d is registered to %q", ErrReservedClaimKey, pc.Key, name)
		}
		if pc.Key >= ReservedMin && pc.Key <= ReservedMax {
			return nil, fmt.Errorf("%w: %d is in the range [%d, %d]", ErrReservedClaimKey, pc.Key, ReservedMin, ReservedMax)
		}
		if _, ok := r.byName[pc.Name]; ok {
			return nil, fmt.Errorf("%w: name %q", ErrDuplicateClaim, pc.Name)
		}
		if other, ok := r.byKey[pc.Key]; ok {
			return nil, fmt.Errorf("%w: key %d used by %q and %q", ErrDuplicateClaim, pc.Key, other, pc.Name)
		}
		r.byName[pc.Name] = pc
		r.byKey[pc.Key] = pc.Name
	}

	return r, nil
}

// FromNames builds a Registry from a plain name to key mapping.
func FromNames(names map[string]int64) (*Registry, error) {
	private := make([]PrivateClaim, 0, len(names))
	for name, key := range names {
		private = append(private, PrivateClaim{Name: name, Key: key})
	}
	sort.Slice(private, func(i, j int) bool { return private[i].Name < private[j].Name })
	return NewRegistry(private...)
}

// Lookup resolves name to its integer key. Registered names win; a nil
// Registry knows only the registered names.
func (r *Registry) Lookup(name string) (int64, bool) {
	if key, ok := registered[name]; ok {
		return key, true
	}
	if r == nil {
		return 0, false
	}
	pc, ok := r.byName[name]
	return pc.Key, ok
}

// Private returns the private claim registered under name.
func (r *Registry) Private(name string) (PrivateClaim, bool) {
	if r == nil {
		return PrivateClaim{}, false
	}
	pc, ok := r.byName[name]
	return pc, ok
}

// Names returns the private claim names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of private claims.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byName)
}
