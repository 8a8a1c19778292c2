package cose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"
	"math/big"

	"github.com/boogy/aws-cwt-issuer/pkg/codec"
)

// KeyType is a COSE key type (IANA "COSE Key Types").
type KeyType int64

const (
	KeyTypeOKP       KeyType = 1
	KeyTypeEC2       KeyType = 2
	KeyTypeRSA       KeyType = 3
	KeyTypeSymmetric KeyType = 4
)

func (t KeyType) String() string {
	switch t {
	case KeyTypeOKP:
		return "OKP"
	case KeyTypeEC2:
		return "EC2"
	case KeyTypeRSA:
		return "RSA"
	case KeyTypeSymmetric:
		return "Symmetric"
	default:
		return fmt.Sprintf("KeyType(%d)", int64(t))
	}
}

// Curve is a COSE elliptic curve identifier (IANA "COSE Elliptic Curves").
type Curve int64

const (
	CurveP256    Curve = 1
	CurveP384    Curve = 2
	CurveP521    Curve = 3
	CurveX25519  Curve = 4
	CurveX448    Curve = 5
	CurveEd25519 Curve = 6
	CurveEd448   Curve = 7
)

var curveNames = map[Curve]string{
	CurveP256:    "P-256",
	CurveP384:    "P-384",
	CurveP521:    "P-521",
	CurveX25519:  "X25519",
	CurveX448:    "X448",
	CurveEd25519: "Ed25519",
	CurveEd448:   "Ed448",
}

func (c Curve) String() string {
	if name, ok := curveNames[c]; ok {
		return name
	}
	if c == 0 {
		return "none"
	}
	return fmt.Sprintf("Curve(%d)", int64(c))
}

// curveFromName maps a JWK "crv" member to a Curve.
func curveFromName(name string) (Curve, bool) {
	for c, n := range curveNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

// COSE_Key labels.
const (
	labelKeyType   int64 = 1
	labelKeyID     int64 = 2
	labelAlgorithm int64 = 3
	labelCurve     int64 = -1 // RSA: n
	labelX         int64 = -2 // RSA: e
	labelY         int64 = -3
)

// Key is a private key ready to sign. It is immutable once built and safe to
// share between goroutines.
type Key struct {
	kty KeyType
	crv Curve
	alg Algorithm
	kid []byte
	// one of *ecdsa.PrivateKey, ed25519.PrivateKey, *rsa.PrivateKey or []byte
	private any
}

func (k *Key) Type() KeyType        { return k.kty }
func (k *Key) Curve() Curve         { return k.crv }
func (k *Key) Algorithm() Algorithm { return k.alg }

// KeyID returns a copy of the key identifier; nil when the key has none.
func (k *Key) KeyID() []byte {
	if len(k.kid) == 0 {
		return nil
	}
	out := make([]byte, len(k.kid))
	copy(out, k.kid)
	return out
}

// PublicKey returns the public half, or nil for symmetric keys.
func (k *Key) PublicKey() crypto.PublicKey {
	switch p := k.private.(type) {
	case *ecdsa.PrivateKey:
		return &p.PublicKey
	case ed25519.PrivateKey:
		return p.Public()
	case *rsa.PrivateKey:
		return &p.PublicKey
	default:
		return nil
	}
}

// FromPrivateKey wraps an in-memory private key. priv must be an
// *ecdsa.PrivateKey, ed25519.PrivateKey, *rsa.PrivateKey or a []byte secret.
// A zero alg selects the default algorithm for the key.
func FromPrivateKey(priv crypto.PrivateKey, alg Algorithm, kid string) (*Key, error) {
	k := &Key{kid: []byte(kid)}

	switch p := priv.(type) {
	case *ecdsa.PrivateKey:
		if p == nil || p.D == nil {
			return nil, &KeyFormatError{KeyID: kid, Reason: "missing private scalar"}
		}
		crv, ok := curveFromParams(p.Curve)
		if !ok {
			return nil, &KeyFormatError{KeyID: kid, Reason: "unsupported EC curve " + p.Curve.Params().Name}
		}
		k.kty, k.crv, k.private = KeyTypeEC2, crv, p
	case ed25519.PrivateKey:
		if len(p) != ed25519.PrivateKeySize {
			return nil, &KeyFormatError{KeyID: kid, Reason: "Ed25519 private key has the wrong size"}
		}
		k.kty, k.crv, k.private = KeyTypeOKP, CurveEd25519, p
	case *rsa.PrivateKey:
		if p == nil || p.D == nil {
			return nil, &KeyFormatError{KeyID: kid, Reason: "missing private exponent"}
		}
		k.kty, k.private = KeyTypeRSA, p
	case []byte:
		if len(p) == 0 {
			return nil, &KeyFormatError{KeyID: kid, Reason: "empty symmetric key"}
		}
		secret := make([]byte, len(p))
		copy(secret, p)
		k.kty, k.private = KeyTypeSymmetric, secret
	default:
		return nil, &KeyFormatError{KeyID: kid, Reason: fmt.Sprintf("unsupported private key type %T", priv)}
	}

	if alg == 0 {
		inferred, ok := inferAlgorithm(k.kty, k.crv)
		if !ok {
			return nil, &KeyFormatError{KeyID: kid, Reason: "cannot infer algorithm"}
		}
		alg = inferred
	}
	if err := checkKey(alg, k); err != nil {
		return nil, &KeyFormatError{KeyID: kid, Reason: "algorithm does not match key", Err: err}
	}
	k.alg = alg

	return k, nil
}

func curveFromParams(c elliptic.Curve) (Curve, bool) {
	if c == nil {
		return 0, false
	}
	switch c.Params().Name {
	case "P-256":
		return CurveP256, true
	case "P-384":
		return CurveP384, true
	case "P-521":
		return CurveP521, true
	}
	return 0, false
}

// PublicCOSEKey encodes the public half of the key as a COSE_Key map, for
// provisioning verifiers.
func (k *Key) PublicCOSEKey() ([]byte, error) {
	m := codec.NewMap()
	m.Set(codec.IntKey(labelKeyType), codec.Int(int64(k.kty)))
	m.Set(codec.IntKey(labelAlgorithm), codec.Int(int64(k.alg)))
	if len(k.kid) > 0 {
		m.Set(codec.IntKey(labelKeyID), codec.Bytes(k.kid))
	}

	switch p := k.private.(type) {
	case *ecdsa.PrivateKey:
		pub, err := p.PublicKey.ECDH()
		if err != nil {
			return nil, &KeyFormatError{KeyID: string(k.kid), Reason: "invalid public point", Err: err}
		}
		point := pub.Bytes() // 0x04 || X || Y
		size := (len(point) - 1) / 2
		m.Set(codec.IntKey(labelCurve), codec.Int(int64(k.crv)))
		m.Set(codec.IntKey(labelX), codec.Bytes(point[1:1+size]))
		m.Set(codec.IntKey(labelY), codec.Bytes(point[1+size:]))
	case ed25519.PrivateKey:
		m.Set(codec.IntKey(labelCurve), codec.Int(int64(k.crv)))
		m.Set(codec.IntKey(labelX), codec.Bytes(p.Public().(ed25519.PublicKey)))
	case *rsa.PrivateKey:
		m.Set(codec.IntKey(labelCurve), codec.Bytes(p.N.Bytes()))
		m.Set(codec.IntKey(labelX), codec.Bytes(big.NewInt(int64(p.E)).Bytes()))
	default:
		return nil, &KeyFormatError{KeyID: string(k.kid), Reason: "symmetric keys have no public form"}
	}

	return codec.Encode(codec.MapValue(m))
}
