package cose_test

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boogy/aws-cwt-issuer/internal/testutil"
	"github.com/boogy/aws-cwt-issuer/pkg/codec"
	"github.com/boogy/aws-cwt-issuer/pkg/cose"
	"github.com/boogy/aws-cwt-issuer/pkg/types"
)

var claimSet = []byte{0xa1, 0x01, 0x63, 'a', 'b', 'c'} // {1: "abc"}

func importKey(t *testing.T, jwk types.JSONWebKey) *cose.Key {
	t.Helper()
	key, err := cose.ImportJWK(jwk)
	require.NoError(t, err)
	return key
}

func TestImportJWK(t *testing.T) {
	tests := []struct {
		name      string
		jwk       types.JSONWebKey
		kty       cose.KeyType
		crv       cose.Curve
		alg       cose.Algorithm
		keyID     string
		hasPublic bool
	}{
		{"EC P-256", testutil.ES256JWK("ec-1"), cose.KeyTypeEC2, cose.CurveP256, cose.AlgorithmES256, "ec-1", true},
		{"Ed25519", testutil.Ed25519JWK("ed-1"), cose.KeyTypeOKP, cose.CurveEd25519, cose.AlgorithmEdDSA, "ed-1", true},
		{"RSA", testutil.RSAJWK(t, "rsa-1"), cose.KeyTypeRSA, 0, cose.AlgorithmPS256, "rsa-1", true},
		{"oct", testutil.OctJWK("hmac-1"), cose.KeyTypeSymmetric, 0, cose.AlgorithmHMAC256, "hmac-1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := importKey(t, tt.jwk)
			assert.Equal(t, tt.kty, key.Type())
			assert.Equal(t, tt.crv, key.Curve())
			assert.Equal(t, tt.alg, key.Algorithm())
			assert.Equal(t, []byte(tt.keyID), key.KeyID())
			assert.Equal(t, tt.hasPublic, key.PublicKey() != nil)
		})
	}
}

func TestImportJWKExplicitAlgorithm(t *testing.T) {
	jwk := testutil.RSAJWK(t, "rsa")
	jwk.Algorithm = "RS256"
	assert.Equal(t, cose.AlgorithmRS256, importKey(t, jwk).Algorithm())

	oct := testutil.OctJWK("k")
	oct.Algorithm = "HS512"
	assert.Equal(t, cose.AlgorithmHMAC512, importKey(t, oct).Algorithm())
}

func TestImportJWKDerivesEd25519Public(t *testing.T) {
	key := importKey(t, testutil.Ed25519JWK(""))
	want, err := hex.DecodeString("d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a")
	require.NoError(t, err)
	assert.Equal(t, ed25519.PublicKey(want), key.PublicKey())
	assert.Nil(t, key.KeyID())
}

func TestImportJWKErrors(t *testing.T) {
	mutate := func(base types.JSONWebKey, fn func(*types.JSONWebKey)) types.JSONWebKey {
		fn(&base)
		return base
	}
	ec := testutil.ES256JWK("ec")
	okp := testutil.Ed25519JWK("okp")
	rsaJWK := testutil.RSAJWK(t, "rsa")

	tests := []struct {
		name string
		jwk  types.JSONWebKey
	}{
		{"missing kty", mutate(ec, func(k *types.JSONWebKey) { k.KeyType = "" })},
		{"unknown kty", mutate(ec, func(k *types.JSONWebKey) { k.KeyType = "DSA" })},
		{"EC missing crv", mutate(ec, func(k *types.JSONWebKey) { k.Crv = "" })},
		{"EC unknown crv", mutate(ec, func(k *types.JSONWebKey) { k.Crv = "P-192" })},
		{"EC missing d", mutate(ec, func(k *types.JSONWebKey) { k.D = "" })},
		{"EC d too long", mutate(ec, func(k *types.JSONWebKey) {
			k.D = base64.RawURLEncoding.EncodeToString(make([]byte, 33))
		})},
		{"EC zero scalar", mutate(ec, func(k *types.JSONWebKey) {
			k.D = base64.RawURLEncoding.EncodeToString(make([]byte, 32))
		})},
		{"EC mismatched x", mutate(ec, func(k *types.JSONWebKey) { k.X = okp.X })},
		{"EC bad base64", mutate(ec, func(k *types.JSONWebKey) { k.D = "***" })},
		{"OKP X25519", mutate(okp, func(k *types.JSONWebKey) { k.Crv = "X25519" })},
		{"OKP short seed", mutate(okp, func(k *types.JSONWebKey) { k.D = "AAAA" })},
		{"OKP mismatched x", mutate(okp, func(k *types.JSONWebKey) { k.X = ec.X })},
		{"RSA missing p", mutate(rsaJWK, func(k *types.JSONWebKey) { k.P = "" })},
		{"RSA swapped d", mutate(rsaJWK, func(k *types.JSONWebKey) { k.D = k.P })},
		{"oct missing k", mutate(testutil.OctJWK("h"), func(k *types.JSONWebKey) { k.K = "" })},
		{"use enc", mutate(ec, func(k *types.JSONWebKey) { k.Use = "enc" })},
		{"key_ops verify only", mutate(ec, func(k *types.JSONWebKey) { k.KeyOps = []string{"verify"} })},
		{"unknown alg", mutate(ec, func(k *types.JSONWebKey) { k.Algorithm = "XS999" })},
		{"alg for other kty", mutate(ec, func(k *types.JSONWebKey) { k.Algorithm = "RS256" })},
		{"alg for other curve", mutate(ec, func(k *types.JSONWebKey) { k.Algorithm = "ES384" })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := cose.ImportJWK(tt.jwk)
			assert.Nil(t, key)

			var formatErr *cose.KeyFormatError
			require.ErrorAs(t, err, &formatErr)
			assert.NotEmpty(t, formatErr.Reason)
		})
	}
}

func TestParseKeySet(t *testing.T) {
	doc := testutil.JWKSDocument(t, testutil.ES256JWK("first"), testutil.Ed25519JWK("second"))

	set, err := cose.ParseKeySet(doc)
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []string{"first", "second"}, set.KeyIDs())

	key, err := set.Lookup("")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), key.KeyID())

	key, err = set.Lookup("second")
	require.NoError(t, err)
	assert.Equal(t, cose.AlgorithmEdDSA, key.Algorithm())

	_, err = set.Lookup("missing")
	assert.ErrorIs(t, err, cose.ErrKeyNotFound)
}

func TestParseKeySetSingleKeyAndErrors(t *testing.T) {
	single := []byte(`{"kty":"OKP","crv":"Ed25519","kid":"solo","d":"nWGxne_9WmC6hEr0kuwsxERJxWl7MmkZcDusAxyuf2A"}`)
	key, err := cose.ImportJWKS(single, "solo")
	require.NoError(t, err)
	assert.Equal(t, cose.KeyTypeOKP, key.Type())

	_, err = cose.ParseKeySet([]byte(`{"keys":[]}`))
	assert.ErrorIs(t, err, cose.ErrEmptyKeySet)

	_, err = cose.ParseKeySet([]byte(`not json`))
	var formatErr *cose.KeyFormatError
	assert.ErrorAs(t, err, &formatErr)

	public := testutil.ES256JWK("pub")
	public.D = ""
	_, err = cose.ParseKeySet(testutil.JWKSDocument(t, public))
	assert.ErrorAs(t, err, &formatErr)
}

func TestImportPEM(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	ecDER, err := x509.MarshalECPrivateKey(ecKey)
	require.NoError(t, err)

	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	edDER, err := x509.MarshalPKCS8PrivateKey(edKey)
	require.NoError(t, err)

	rsaDER := x509.MarshalPKCS1PrivateKey(testutil.RSAKey(t))

	tests := []struct {
		name string
		pem  []byte
		alg  cose.Algorithm
	}{
		{"EC SEC1", pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: ecDER}), cose.AlgorithmES384},
		{"Ed25519 PKCS8", pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: edDER}), cose.AlgorithmEdDSA},
		{"RSA PKCS1", pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: rsaDER}), cose.AlgorithmPS256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := cose.ImportPEM(tt.pem, 0, "pem")
			require.NoError(t, err)
			assert.Equal(t, tt.alg, key.Algorithm())
			assert.Equal(t, []byte("pem"), key.KeyID())
		})
	}

	_, err = cose.ImportPEM([]byte("garbage"), 0, "")
	var formatErr *cose.KeyFormatError
	assert.ErrorAs(t, err, &formatErr)
}

func TestSigStructure(t *testing.T) {
	got, err := cose.SigStructure("Signature1", []byte{0xa1, 0x01, 0x26}, []byte{0xa0})
	require.NoError(t, err)

	// ["Signature1", h'a10126', h'', h'a0']
	want, err := hex.DecodeString("846a5369676e617475726531" + "43a10126" + "40" + "41a0")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSignES256(t *testing.T) {
	key := importKey(t, testutil.ES256JWK("11"))

	first, err := cose.Sign(claimSet, key, 0)
	require.NoError(t, err)
	second, err := cose.Sign(claimSet, key, 0)
	require.NoError(t, err)

	assert.Equal(t, []byte{0xa1, 0x01, 0x26}, first.Protected)
	assert.Equal(t, first.Protected, second.Protected)
	assert.Equal(t, first.Payload, second.Payload)
	assert.Len(t, first.Signature, 64)
	assert.NotEqual(t, first.Signature, second.Signature)

	data, err := first.MarshalCBOR()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xd2, 0x84, 0x43, 0xa1, 0x01, 0x26, 0xa0}, data[:7])

	env, err := testutil.VerifySign1(data, key.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, claimSet, env.Payload)
	assert.False(t, env.CWTTagged)
}

func TestSignDeterministicAlgorithms(t *testing.T) {
	tests := []struct {
		name string
		key  *cose.Key
		alg  cose.Algorithm
	}{
		{"EdDSA", importKey(t, testutil.Ed25519JWK("ed")), cose.AlgorithmEdDSA},
		{"RS256", importKey(t, testutil.RSAJWK(t, "rsa")), cose.AlgorithmRS256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, tt.alg.Deterministic())

			a, err := cose.Sign(claimSet, tt.key, tt.alg)
			require.NoError(t, err)
			b, err := cose.Sign(claimSet, tt.key, tt.alg)
			require.NoError(t, err)

			aBytes, err := a.MarshalCBOR()
			require.NoError(t, err)
			bBytes, err := b.MarshalCBOR()
			require.NoError(t, err)
			assert.Equal(t, aBytes, bBytes)

			_, err = testutil.VerifySign1(aBytes, tt.key.PublicKey())
			assert.NoError(t, err)
		})
	}
}

func TestSignPS256Verifies(t *testing.T) {
	key := importKey(t, testutil.RSAJWK(t, "rsa"))
	env, err := cose.Sign(claimSet, key, cose.AlgorithmPS256)
	require.NoError(t, err)

	data, err := env.MarshalCBOR()
	require.NoError(t, err)
	_, err = testutil.VerifySign1(data, key.PublicKey())
	assert.NoError(t, err)
}

func TestSignPrimitiveFailure(t *testing.T) {
	// PSS with SHA-512 needs more room than a 1024-bit modulus has.
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	key, err := cose.FromPrivateKey(priv, cose.AlgorithmPS512, "small")
	require.NoError(t, err)

	env, err := cose.Sign(claimSet, key, 0)
	assert.Nil(t, env)

	var primErr *cose.SigningPrimitiveError
	require.ErrorAs(t, err, &primErr)
	assert.Equal(t, cose.AlgorithmPS512, primErr.Algorithm)
	assert.Error(t, primErr.Unwrap())
}

func TestNilKey(t *testing.T) {
	var keyErr *cose.KeyFormatError

	env, err := cose.Sign(claimSet, nil, cose.AlgorithmEdDSA)
	assert.Nil(t, env)
	assert.ErrorAs(t, err, &keyErr)

	mac, err := cose.MAC(claimSet, nil, cose.AlgorithmHMAC256)
	assert.Nil(t, mac)
	assert.ErrorAs(t, err, &keyErr)
}

func TestSignWithKeyID(t *testing.T) {
	key := importKey(t, testutil.Ed25519JWK("kid-7"))

	env, err := cose.Sign(claimSet, key, 0, cose.WithKeyID(), cose.WithContentType(61))
	require.NoError(t, err)

	kid, ok := env.Unprotected.Get(codec.IntKey(cose.HeaderKeyID))
	require.True(t, ok)
	b, _ := kid.AsBytes()
	assert.Equal(t, []byte("kid-7"), b)

	// {1: -8, 3: 61}
	assert.Equal(t, []byte{0xa2, 0x01, 0x27, 0x03, 0x18, 0x3d}, env.Protected)
}

func TestSignRejectsMismatchedAlgorithm(t *testing.T) {
	ec := importKey(t, testutil.ES256JWK("ec"))
	oct := importKey(t, testutil.OctJWK("oct"))

	tests := []struct {
		name string
		run  func() error
	}{
		{"ES384 with P-256 key", func() error { _, err := cose.Sign(claimSet, ec, cose.AlgorithmES384); return err }},
		{"EdDSA with EC key", func() error { _, err := cose.Sign(claimSet, ec, cose.AlgorithmEdDSA); return err }},
		{"HMAC through Sign", func() error { _, err := cose.Sign(claimSet, oct, 0); return err }},
		{"unknown algorithm", func() error { _, err := cose.Sign(claimSet, ec, cose.Algorithm(-9999)); return err }},
		{"MAC with EC key", func() error { _, err := cose.MAC(claimSet, ec, 0); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var algErr *cose.UnsupportedAlgorithmError
			assert.ErrorAs(t, tt.run(), &algErr)
		})
	}
}

func TestMAC(t *testing.T) {
	key := importKey(t, testutil.OctJWK("hmac"))

	a, err := cose.MAC(claimSet, key, 0)
	require.NoError(t, err)
	b, err := cose.MAC(claimSet, key, 0)
	require.NoError(t, err)

	assert.Equal(t, []byte{0xa1, 0x01, 0x05}, a.Protected)
	assert.Len(t, a.Tag, 32)

	aBytes, err := a.MarshalCBOR()
	require.NoError(t, err)
	bBytes, err := b.MarshalCBOR()
	require.NoError(t, err)
	assert.Equal(t, aBytes, bBytes)
	assert.Equal(t, byte(0xd1), aBytes[0])

	env, err := testutil.VerifyMac0(aBytes, testutil.OctSecret())
	require.NoError(t, err)
	assert.Equal(t, claimSet, env.Payload)

	_, err = testutil.VerifyMac0(aBytes, []byte("wrong secret"))
	assert.Error(t, err)
}

func TestPublicCOSEKey(t *testing.T) {
	jwk := testutil.ES256JWK("ec")
	key := importKey(t, jwk)

	data, err := key.PublicCOSEKey()
	require.NoError(t, err)

	v, err := codec.Decode(data)
	require.NoError(t, err)
	m, ok := v.AsMap()
	require.True(t, ok)

	wantX, err := base64.RawURLEncoding.DecodeString(jwk.X)
	require.NoError(t, err)
	x, _ := m.Get(codec.IntKey(-2))
	gotX, _ := x.AsBytes()
	assert.Equal(t, wantX, gotX)

	crv, _ := m.Get(codec.IntKey(-1))
	c, _ := crv.AsInt()
	assert.Equal(t, int64(cose.CurveP256), c)

	_, err = importKey(t, testutil.OctJWK("oct")).PublicCOSEKey()
	var formatErr *cose.KeyFormatError
	assert.ErrorAs(t, err, &formatErr)
}

func TestAlgorithmFromName(t *testing.T) {
	tests := map[string]cose.Algorithm{
		"ES256":        cose.AlgorithmES256,
		"es512":        cose.AlgorithmES512,
		"EdDSA":        cose.AlgorithmEdDSA,
		"PS384":        cose.AlgorithmPS384,
		"RS512":        cose.AlgorithmRS512,
		"HS256":        cose.AlgorithmHMAC256,
		"HMAC 384/384": cose.AlgorithmHMAC384,
	}
	for name, want := range tests {
		got, err := cose.AlgorithmFromName(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := cose.AlgorithmFromName("none")
	var algErr *cose.UnsupportedAlgorithmError
	assert.ErrorAs(t, err, &algErr)
	assert.Equal(t, "ES256", cose.AlgorithmES256.String())
	assert.Equal(t, "Algorithm(-1)", cose.Algorithm(-1).String())
}
