package cose

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Algorithm is a COSE algorithm identifier (IANA "COSE Algorithms").
type Algorithm int64

const (
	AlgorithmES256   Algorithm = -7
	AlgorithmEdDSA   Algorithm = -8
	AlgorithmES384   Algorithm = -35
	AlgorithmES512   Algorithm = -36
	AlgorithmPS256   Algorithm = -37
	AlgorithmPS384   Algorithm = -38
	AlgorithmPS512   Algorithm = -39
	AlgorithmRS256   Algorithm = -257
	AlgorithmRS384   Algorithm = -258
	AlgorithmRS512   Algorithm = -259
	AlgorithmHMAC256 Algorithm = 5
	AlgorithmHMAC384 Algorithm = 6
	AlgorithmHMAC512 Algorithm = 7
)

type algorithmSpec struct {
	name    string // COSE registry name
	jose    string // JOSE name accepted in JWK "alg" members
	method  jwt.SigningMethod
	keyType KeyType
	curve   Curve // zero when any curve of keyType is acceptable
	mac     bool
	// deterministic primitives produce the same bytes for the same input
	deterministic bool
}

var algorithms = map[Algorithm]algorithmSpec{
	AlgorithmES256:   {name: "ES256", jose: "ES256", method: jwt.SigningMethodES256, keyType: KeyTypeEC2, curve: CurveP256},
	AlgorithmES384:   {name: "ES384", jose: "ES384", method: jwt.SigningMethodES384, keyType: KeyTypeEC2, curve: CurveP384},
	AlgorithmES512:   {name: "ES512", jose: "ES512", method: jwt.SigningMethodES512, keyType: KeyTypeEC2, curve: CurveP521},
	AlgorithmEdDSA:   {name: "EdDSA", jose: "EdDSA", method: jwt.SigningMethodEdDSA, keyType: KeyTypeOKP, curve: CurveEd25519, deterministic: true},
	AlgorithmPS256:   {name: "PS256", jose: "PS256", method: jwt.SigningMethodPS256, keyType: KeyTypeRSA},
	AlgorithmPS384:   {name: "PS384", jose: "PS384", method: jwt.SigningMethodPS384, keyType: KeyTypeRSA},
	AlgorithmPS512:   {name: "PS512", jose: "PS512", method: jwt.SigningMethodPS512, keyType: KeyTypeRSA},
	AlgorithmRS256:   {name: "RS256", jose: "RS256", method: jwt.SigningMethodRS256, keyType: KeyTypeRSA, deterministic: true},
	AlgorithmRS384:   {name: "RS384", jose: "RS384", method: jwt.SigningMethodRS384, keyType: KeyTypeRSA, deterministic: true},
	AlgorithmRS512:   {name: "RS512", jose: "RS512", method: jwt.SigningMethodRS512, keyType: KeyTypeRSA, deterministic: true},
	AlgorithmHMAC256: {name: "HMAC 256/256", jose: "HS256", method: jwt.SigningMethodHS256, keyType: KeyTypeSymmetric, mac: true, deterministic: true},
	AlgorithmHMAC384: {name: "HMAC 384/384", jose: "HS384", method: jwt.SigningMethodHS384, keyType: KeyTypeSymmetric, mac: true, deterministic: true},
	AlgorithmHMAC512: {name: "HMAC 512/512", jose: "HS512", method: jwt.SigningMethodHS512, keyType: KeyTypeSymmetric, mac: true, deterministic: true},
}

func (a Algorithm) String() string {
	if spec, ok := algorithms[a]; ok {
		return spec.name
	}
	return fmt.Sprintf("Algorithm(%d)", int64(a))
}

// JOSEName returns the JOSE spelling of the algorithm, or "" if unknown.
func (a Algorithm) JOSEName() string {
	return algorithms[a].jose
}

// IsMAC reports whether the algorithm produces a COSE_Mac0 tag rather than
// a signature.
func (a Algorithm) IsMAC() bool {
	return algorithms[a].mac
}

// Deterministic reports whether the primitive yields identical output for
// identical input.
func (a Algorithm) Deterministic() bool {
	return algorithms[a].deterministic
}

// AlgorithmFromName resolves a JOSE ("ES256", "HS256") or COSE
// ("HMAC 256/256") algorithm name. Matching is case-insensitive.
func AlgorithmFromName(name string) (Algorithm, error) {
	for alg, spec := range algorithms {
		if strings.EqualFold(name, spec.jose) || strings.EqualFold(name, spec.name) {
			return alg, nil
		}
	}
	return 0, &UnsupportedAlgorithmError{Name: name, Reason: "unknown algorithm name"}
}

// SigningMethodFor returns the primitive behind alg.
func SigningMethodFor(alg Algorithm) (jwt.SigningMethod, error) {
	spec, ok := algorithms[alg]
	if !ok {
		return nil, &UnsupportedAlgorithmError{Algorithm: alg, Reason: "unknown algorithm"}
	}
	return spec.method, nil
}

// checkKey reports whether key can be used with alg.
func checkKey(alg Algorithm, key *Key) error {
	spec, ok := algorithms[alg]
	if !ok {
		return &UnsupportedAlgorithmError{Algorithm: alg, Reason: "unknown algorithm"}
	}
	if key.kty != spec.keyType {
		return &UnsupportedAlgorithmError{
			Algorithm: alg,
			Reason:    fmt.Sprintf("requires a %s key, got %s", spec.keyType, key.kty),
		}
	}
	if spec.curve != 0 && key.crv != spec.curve {
		return &UnsupportedAlgorithmError{
			Algorithm: alg,
			Reason:    fmt.Sprintf("requires curve %s, got %s", spec.curve, key.crv),
		}
	}
	return nil
}

// inferAlgorithm picks the default algorithm for a key that does not name
// one.
func inferAlgorithm(kty KeyType, crv Curve) (Algorithm, bool) {
	switch kty {
	case KeyTypeEC2:
		switch crv {
		case CurveP256:
			return AlgorithmES256, true
		case CurveP384:
			return AlgorithmES384, true
		case CurveP521:
			return AlgorithmES512, true
		}
	case KeyTypeOKP:
		if crv == CurveEd25519 {
			return AlgorithmEdDSA, true
		}
	case KeyTypeRSA:
		return AlgorithmPS256, true
	case KeyTypeSymmetric:
		return AlgorithmHMAC256, true
	}
	return 0, false
}
