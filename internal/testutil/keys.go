package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"sync"

	"github.com/boogy/aws-cwt-issuer/pkg/types"
)

// TB is the subset of testing.TB the helpers need.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// ES256JWK returns the P-256 private key from RFC 7515 Appendix A.3.
func ES256JWK(kid string) types.JSONWebKey {
	return types.JSONWebKey{
		KeyType: "EC",
		KeyID:   kid,
		Crv:     "P-256",
		X:       "f83OJ3D2xF1Bg8vub9tLe1gHMzV76e8Tus9uPHvRVEU",
		Y:       "x_FEzRu9m36HLN_tue659LNpXW6pCyStikYjKIWI5a0",
		D:       "jpsQnnGQmL-YBIffH1136cLSG_2VDcsuH5ZvHvrXTFw",
	}
}

// Ed25519JWK returns the private key of RFC 8032 test vector 1.
func Ed25519JWK(kid string) types.JSONWebKey {
	return types.JSONWebKey{
		KeyType: "OKP",
		KeyID:   kid,
		Crv:     "Ed25519",
		X:       "11qYAYKxCrfVS_7TyWQHOg7hcvPapiMlrwIaaPcHURo",
		D:       "nWGxne_9WmC6hEr0kuwsxERJxWl7MmkZcDusAxyuf2A",
	}
}

// OctJWK returns a symmetric key with a fixed 32 byte secret.
func OctJWK(kid string) types.JSONWebKey {
	return types.JSONWebKey{
		KeyType: "oct",
		KeyID:   kid,
		K:       base64.RawURLEncoding.EncodeToString(OctSecret()),
	}
}

// OctSecret is the secret behind OctJWK.
func OctSecret() []byte {
	secret := make([]byte, 32)
	for i := range secret {
		secret[i] = byte(i)
	}
	return secret
}

var (
	rsaOnce sync.Once
	rsaKey  *rsa.PrivateKey
	rsaErr  error
)

// RSAKey returns a 2048 bit RSA key generated once per test binary.
func RSAKey(t TB) *rsa.PrivateKey {
	t.Helper()
	rsaOnce.Do(func() {
		rsaKey, rsaErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if rsaErr != nil {
		t.Fatalf("generating RSA key: %v", rsaErr)
	}
	return rsaKey
}

// RSAJWK returns RSAKey as a private JWK.
func RSAJWK(t TB, kid string) types.JSONWebKey {
	t.Helper()
	key := RSAKey(t)
	enc := func(i *big.Int) string { return base64.RawURLEncoding.EncodeToString(i.Bytes()) }
	return types.JSONWebKey{
		KeyType: "RSA",
		KeyID:   kid,
		N:       enc(key.N),
		E:       enc(big.NewInt(int64(key.E))),
		D:       enc(key.D),
		P:       enc(key.Primes[0]),
		Q:       enc(key.Primes[1]),
	}
}

// JWKSDocument serializes keys as a JWKS document.
func JWKSDocument(t TB, keys ...types.JSONWebKey) []byte {
	t.Helper()
	data, err := json.Marshal(types.JWKS{Keys: keys})
	if err != nil {
		t.Fatalf("marshaling JWKS: %v", err)
	}
	return data
}
