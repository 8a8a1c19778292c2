package cose

import (
	"bytes"
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/boogy/aws-cwt-issuer/pkg/types"
)

type ecCurve struct {
	cose  Curve
	ecdh  ecdh.Curve
	curve elliptic.Curve
	size  int
}

var ecCurves = map[string]ecCurve{
	"P-256": {cose: CurveP256, ecdh: ecdh.P256(), curve: elliptic.P256(), size: 32},
	"P-384": {cose: CurveP384, ecdh: ecdh.P384(), curve: elliptic.P384(), size: 48},
	"P-521": {cose: CurveP521, ecdh: ecdh.P521(), curve: elliptic.P521(), size: 66},
}

// ImportJWK turns a private JSON Web Key into a signing key.
func ImportJWK(jwk types.JSONWebKey) (*Key, error) {
	kid := jwk.KeyID

	if jwk.Use != "" && jwk.Use != "sig" {
		return nil, &KeyFormatError{KeyID: kid, Reason: fmt.Sprintf("key use %q is not sig", jwk.Use)}
	}
	if len(jwk.KeyOps) > 0 && !slices.Contains(jwk.KeyOps, "sign") {
		return nil, &KeyFormatError{KeyID: kid, Reason: "key_ops does not allow sign"}
	}

	var alg Algorithm
	if jwk.Algorithm != "" {
		var err error
		if alg, err = AlgorithmFromName(jwk.Algorithm); err != nil {
			return nil, &KeyFormatError{KeyID: kid, Reason: "unknown alg", Err: err}
		}
	}

	var (
		priv crypto.PrivateKey
		err  error
	)
	switch jwk.KeyType {
	case "":
		return nil, &KeyFormatError{KeyID: kid, Reason: "missing kty"}
	case "EC":
		priv, err = ecPrivateKey(jwk)
	case "OKP":
		priv, err = okpPrivateKey(jwk)
	case "RSA":
		priv, err = rsaPrivateKey(jwk)
	case "oct":
		priv, err = decodeMember(jwk, "k", jwk.K)
	default:
		return nil, &KeyFormatError{KeyID: kid, Reason: fmt.Sprintf("unsupported kty %q", jwk.KeyType)}
	}
	if err != nil {
		return nil, err
	}

	return FromPrivateKey(priv, alg, kid)
}

func ecPrivateKey(jwk types.JSONWebKey) (*ecdsa.PrivateKey, error) {
	if jwk.Crv == "" {
		return nil, &KeyFormatError{KeyID: jwk.KeyID, Reason: "missing crv"}
	}
	curve, ok := ecCurves[jwk.Crv]
	if !ok {
		return nil, &KeyFormatError{KeyID: jwk.KeyID, Reason: fmt.Sprintf("unsupported EC curve %q", jwk.Crv)}
	}

	d, err := decodeMember(jwk, "d", jwk.D)
	if err != nil {
		return nil, err
	}
	if len(d) > curve.size {
		return nil, &KeyFormatError{KeyID: jwk.KeyID, Reason: "private scalar is longer than the curve order"}
	}
	scalar := leftPad(d, curve.size)

	// ecdh validates the scalar range and derives the public point.
	ecdhKey, err := curve.ecdh.NewPrivateKey(scalar)
	if err != nil {
		return nil, &KeyFormatError{KeyID: jwk.KeyID, Reason: "invalid private scalar", Err: err}
	}
	point := ecdhKey.PublicKey().Bytes()
	x, y := point[1:1+curve.size], point[1+curve.size:]

	if err := matchCoordinate(jwk, "x", jwk.X, x); err != nil {
		return nil, err
	}
	if err := matchCoordinate(jwk, "y", jwk.Y, y); err != nil {
		return nil, err
	}

	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: curve.curve,
			X:     new(big.Int).SetBytes(x),
			Y:     new(big.Int).SetBytes(y),
		},
		D: new(big.Int).SetBytes(scalar),
	}, nil
}

func okpPrivateKey(jwk types.JSONWebKey) (ed25519.PrivateKey, error) {
	if jwk.Crv != "Ed25519" {
		return nil, &KeyFormatError{KeyID: jwk.KeyID, Reason: fmt.Sprintf("unsupported OKP curve %q", jwk.Crv)}
	}

	seed, err := decodeMember(jwk, "d", jwk.D)
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, &KeyFormatError{KeyID: jwk.KeyID, Reason: fmt.Sprintf("Ed25519 private key must be %d bytes", ed25519.SeedSize)}
	}

	priv := ed25519.NewKeyFromSeed(seed)
	if err := matchCoordinate(jwk, "x", jwk.X, priv.Public().(ed25519.PublicKey)); err != nil {
		return nil, err
	}
	return priv, nil
}

func rsaPrivateKey(jwk types.JSONWebKey) (*rsa.PrivateKey, error) {
	members := []struct {
		name, value string
	}{
		{"n", jwk.N}, {"e", jwk.E}, {"d", jwk.D}, {"p", jwk.P}, {"q", jwk.Q},
	}
	ints := make([]*big.Int, len(members))
	for i, m := range members {
		b, err := decodeMember(jwk, m.name, m.value)
		if err != nil {
			return nil, err
		}
		ints[i] = new(big.Int).SetBytes(b)
	}

	e := ints[1]
	if !e.IsInt64() || e.Int64() < 3 || e.Int64() > 1<<31-1 {
		return nil, &KeyFormatError{KeyID: jwk.KeyID, Reason: "RSA public exponent out of range"}
	}

	priv := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: ints[0], E: int(e.Int64())},
		D:         ints[2],
		Primes:    []*big.Int{ints[3], ints[4]},
	}
	if err := priv.Validate(); err != nil {
		return nil, &KeyFormatError{KeyID: jwk.KeyID, Reason: "inconsistent RSA key", Err: err}
	}
	priv.Precompute()
	return priv, nil
}

func decodeMember(jwk types.JSONWebKey, name, value string) ([]byte, error) {
	if value == "" {
		return nil, &KeyFormatError{KeyID: jwk.KeyID, Reason: fmt.Sprintf("missing %q", name)}
	}
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(value, "="))
	if err != nil {
		return nil, &KeyFormatError{KeyID: jwk.KeyID, Reason: fmt.Sprintf("invalid base64url in %q", name), Err: err}
	}
	if len(b) == 0 {
		return nil, &KeyFormatError{KeyID: jwk.KeyID, Reason: fmt.Sprintf("empty %q", name)}
	}
	return b, nil
}

// matchCoordinate checks an optional public member against the value derived
// from the private key.
func matchCoordinate(jwk types.JSONWebKey, name, value string, derived []byte) error {
	if value == "" {
		return nil
	}
	b, err := decodeMember(jwk, name, value)
	if err != nil {
		return err
	}
	if len(b) > len(derived) || !bytes.Equal(leftPad(b, len(derived)), derived) {
		return &KeyFormatError{KeyID: jwk.KeyID, Reason: fmt.Sprintf("%q does not match the private key", name)}
	}
	return nil
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}

// KeySet is an ordered collection of signing keys.
type KeySet struct {
	keys []*Key
}

// ParseKeySet parses a JWKS document, or a single JWK object, into a
// KeySet. Every key in the document must be a usable private key.
func ParseKeySet(data []byte) (*KeySet, error) {
	var doc struct {
		types.JWKS
		types.JSONWebKey
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &KeyFormatError{Reason: "invalid JSON", Err: err}
	}

	jwks := doc.Keys
	if len(jwks) == 0 && doc.KeyType != "" {
		jwks = []types.JSONWebKey{doc.JSONWebKey}
	}
	if len(jwks) == 0 {
		return nil, ErrEmptyKeySet
	}

	set := &KeySet{keys: make([]*Key, 0, len(jwks))}
	for i, jwk := range jwks {
		key, err := ImportJWK(jwk)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		set.keys = append(set.keys, key)
	}
	return set, nil
}

// Lookup returns the key with the given kid, or the first key when kid is
// empty.
func (s *KeySet) Lookup(kid string) (*Key, error) {
	if s == nil || len(s.keys) == 0 {
		return nil, ErrEmptyKeySet
	}
	if kid == "" {
		return s.keys[0], nil
	}
	for _, k := range s.keys {
		if string(k.kid) == kid {
			return k, nil
		}
	}
	return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

// Len returns the number of keys in the set.
func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// KeyIDs lists the key identifiers in document order.
func (s *KeySet) KeyIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, len(s.keys))
	for i, k := range s.keys {
		ids[i] = string(k.kid)
	}
	return ids
}

// ImportJWKS parses a JWKS document and selects the key with the given kid.
func ImportJWKS(data []byte, kid string) (*Key, error) {
	set, err := ParseKeySet(data)
	if err != nil {
		return nil, err
	}
	return set.Lookup(kid)
}

// ImportPEM parses a PEM encoded EC (SEC 1 or PKCS #8), RSA (PKCS #1 or
// PKCS #8) or Ed25519 (PKCS #8) private key.
func ImportPEM(data []byte, alg Algorithm, kid string) (*Key, error) {
	if ecKey, err := jwt.ParseECPrivateKeyFromPEM(data); err == nil {
		return FromPrivateKey(ecKey, alg, kid)
	} else if errors.Is(err, jwt.ErrKeyMustBePEMEncoded) {
		return nil, &KeyFormatError{KeyID: kid, Reason: "not PEM encoded", Err: err}
	}
	if rsaKey, err := jwt.ParseRSAPrivateKeyFromPEM(data); err == nil {
		return FromPrivateKey(rsaKey, alg, kid)
	}
	if edKey, err := jwt.ParseEdPrivateKeyFromPEM(data); err == nil {
		return FromPrivateKey(edKey, alg, kid)
	}
	return nil, &KeyFormatError{KeyID: kid, Reason: "unrecognized PEM private key"}
}
