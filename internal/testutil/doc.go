// Package testutil provides shared test helpers for the issuer packages.
//
// [Decode] unwraps a COSE_Sign1 or COSE_Mac0 envelope (optionally inside the
// CWT tag) and [VerifySign1] / [VerifyMac0] check it with the same
// primitives the encoder signs with. Token verification is not part of the
// issuer itself; it lives here only so tests can prove that what was
// minted round-trips.
//
// [ES256JWK], [Ed25519JWK] and [RSAJWK] return fixed or lazily generated
// private keys. The EC key is the RFC 7515 Appendix A.3 key and the Ed25519
// key is RFC 8032 test vector 1.
//
// Key helpers call t.Fatalf on failure rather than returning errors, since
// test setup failures are not recoverable.
package testutil
