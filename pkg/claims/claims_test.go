package claims

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boogy/aws-cwt-issuer/pkg/codec"
)

func TestRegisteredTable(t *testing.T) {
	tests := map[string]int64{
		"iss": 1, "sub": 2, "aud": 3, "exp": 4, "nbf": 5, "iat": 6, "cti": 7,
		"cnf": 8, "scope": 9, "nonce": 10, "ueid": 256, "eat_profile": 265,
	}

	for name, want := range tests {
		key, ok := RegisteredKey(name)
		require.True(t, ok, name)
		assert.Equal(t, want, key, name)

		back, ok := RegisteredName(want)
		require.True(t, ok)
		assert.Equal(t, name, back)
	}

	_, ok := RegisteredKey("ga4gh_visa_v1")
	assert.False(t, ok)
}

func TestNewRegistry(t *testing.T) {
	tests := []struct {
		name    string
		private []PrivateClaim
		wantErr error
	}{
		{
			name:    "valid private claim",
			private: []PrivateClaim{{Name: "ga4gh_visa_v1", Key: -70001}},
		},
		{
			name:    "positive private key above band",
			private: []PrivateClaim{{Name: "tenant", Key: 70001}},
		},
		{
			name:    "collides with registered key",
			private: []PrivateClaim{{Name: "issuer", Key: 1}},
			wantErr: ErrReservedClaimKey,
		},
		{
			name:    "inside reserved band",
			private: []PrivateClaim{{Name: "x", Key: -256}},
			wantErr: ErrReservedClaimKey,
		},
		{
			name:    "band upper bound",
			private: []PrivateClaim{{Name: "x", Key: 255}},
			wantErr: ErrReservedClaimKey,
		},
		{
			name:    "shadows registered name",
			private: []PrivateClaim{{Name: "exp", Key: -70002}},
			wantErr: ErrReservedClaimName,
		},
		{
			name:    "duplicate name",
			private: []PrivateClaim{{Name: "a", Key: -1000}, {Name: "a", Key: -1001}},
			wantErr: ErrDuplicateClaim,
		},
		{
			name:    "duplicate key",
			private: []PrivateClaim{{Name: "a", Key: -1000}, {Name: "b", Key: -1000}},
			wantErr: ErrDuplicateClaim,
		},
		{
			name:    "empty name",
			private: []PrivateClaim{{Name: "", Key: -1000}},
			wantErr: ErrEmptyClaimName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := NewRegistry(tt.private...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, reg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.private), reg.Len())
		})
	}
}

func TestFromNames(t *testing.T) {
	reg, err := FromNames(map[string]int64{"ga4gh_visa_v1": -70001, "tenant": 70001})
	require.NoError(t, err)

	assert.Equal(t, []string{"ga4gh_visa_v1", "tenant"}, reg.Names())

	key, ok := reg.Lookup("ga4gh_visa_v1")
	assert.True(t, ok)
	assert.Equal(t, int64(-70001), key)

	key, ok = reg.Lookup("iss")
	assert.True(t, ok)
	assert.Equal(t, int64(1), key)

	_, ok = reg.Lookup("unknown")
	assert.False(t, ok)
}

func TestNilRegistryKnowsRegisteredNames(t *testing.T) {
	var reg *Registry
	key, ok := reg.Lookup("exp")
	assert.True(t, ok)
	assert.Equal(t, int64(4), key)
	assert.Empty(t, reg.Names())
}

func TestCanonicalizeRegistered(t *testing.T) {
	set, err := Canonicalize(map[string]any{
		"iss": "https://example.org",
		"exp": int64(1949052270),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []codec.Key{codec.IntKey(1), codec.IntKey(4)}, set.Keys())

	iss, _ := set.Get(codec.IntKey(1))
	s, _ := iss.AsText()
	assert.Equal(t, "https://example.org", s)
}

func TestCanonicalizePrivateClaim(t *testing.T) {
	reg, err := NewRegistry(PrivateClaim{Name: "ga4gh_visa_v1", Key: -70001})
	require.NoError(t, err)

	visa := map[string]any{
		"type":     "AffiliationAndRole",
		"asserted": json.Number("1549680000"),
		"value":    "faculty@med.stanford.edu",
		"source":   "https://grid.ac/institutes/grid.240952.8",
		"by":       "so",
	}

	set, err := Canonicalize(map[string]any{
		"iss":           "https://example.org",
		"ga4gh_visa_v1": visa,
	}, reg)
	require.NoError(t, err)

	got, ok := set.Get(codec.IntKey(-70001))
	require.True(t, ok)

	gotBytes, err := codec.Encode(got)
	require.NoError(t, err)

	want, err := codec.FromGo(visa)
	require.NoError(t, err)
	wantBytes, err := codec.Encode(want)
	require.NoError(t, err)

	assert.Equal(t, wantBytes, gotBytes)
}

func TestCanonicalizeUnknownName(t *testing.T) {
	reg, err := NewRegistry(PrivateClaim{Name: "known", Key: -70001})
	require.NoError(t, err)

	set, err := Canonicalize(map[string]any{"iss": "x", "zzz": 1, "aaa": 2}, reg)
	assert.Nil(t, set)

	var unknown *UnknownClaimNameError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "aaa", unknown.Name)
}

func TestCanonicalizeUnsupportedValue(t *testing.T) {
	set, err := Canonicalize(map[string]any{"sub": []any{"ok", struct{}{}}}, nil)
	assert.Nil(t, set)

	var typeErr *codec.UnsupportedValueTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "sub[1]", typeErr.Path)
}

func TestCanonicalizeCTIText(t *testing.T) {
	set, err := Canonicalize(map[string]any{"cti": "abc"}, nil)
	require.NoError(t, err)

	cti, _ := set.Get(codec.IntKey(CWTID))
	b, ok := cti.AsBytes()
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), b)
}

func TestCanonicalizeStructured(t *testing.T) {
	reg, err := NewRegistry(
		PrivateClaim{Name: "envelope", Key: -70010, Structured: true},
		PrivateClaim{Name: "inner", Key: -70011},
	)
	require.NoError(t, err)

	set, err := Canonicalize(map[string]any{
		"envelope": map[string]any{"inner": "v", "iat": 10},
	}, reg)
	require.NoError(t, err)

	env, _ := set.Get(codec.IntKey(-70010))
	m, ok := env.AsMap()
	require.True(t, ok)
	assert.Equal(t, []codec.Key{codec.IntKey(6), codec.IntKey(-70011)}, m.Keys())

	_, err = Canonicalize(map[string]any{
		"envelope": map[string]any{"nope": 1},
	}, reg)
	var unknown *UnknownClaimNameError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "envelope.nope", unknown.Path)

	set, err = Canonicalize(map[string]any{
		"envelope": map[string]string{"inner": "v"},
	}, reg)
	require.NoError(t, err)
	env, _ = set.Get(codec.IntKey(-70010))
	m, _ = env.AsMap()
	assert.Equal(t, []codec.Key{codec.IntKey(-70011)}, m.Keys())
}

func TestCanonicalizeTypedContainers(t *testing.T) {
	reg, err := NewRegistry(PrivateClaim{Name: "ga4gh_visa_v1", Key: -70001})
	require.NoError(t, err)

	set, err := Canonicalize(map[string]any{
		"aud":           []string{"a", "b"},
		"ga4gh_visa_v1": []map[string]any{{"asserted": 1}},
		"scope":         []int{1, 2, 3},
	}, reg)
	require.NoError(t, err)

	v, _ := set.Get(codec.IntKey(-70001))
	items, ok := v.Items()
	require.True(t, ok)
	require.Len(t, items, 1)
	inner, ok := items[0].AsMap()
	require.True(t, ok)
	assert.True(t, inner.Has(codec.TextKey("asserted")))
}

func TestCanonicalizeOpaqueNested(t *testing.T) {
	reg, err := NewRegistry(PrivateClaim{Name: "visa", Key: -70001})
	require.NoError(t, err)

	set, err := Canonicalize(map[string]any{"visa": map[string]any{"iss": "kept as text"}}, reg)
	require.NoError(t, err)

	v, _ := set.Get(codec.IntKey(-70001))
	m, _ := v.AsMap()
	assert.True(t, m.Has(codec.TextKey("iss")))
	assert.False(t, m.Has(codec.IntKey(1)))
}
