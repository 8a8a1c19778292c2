// Package cose builds single-signer COSE envelopes (RFC 9052): COSE_Sign1
// for asymmetric keys and COSE_Mac0 for symmetric ones.
package cose

import (
	"github.com/boogy/aws-cwt-issuer/pkg/codec"
)

// CBOR tags.
const (
	TagMac0  uint64 = 17
	TagSign1 uint64 = 18
	TagCWT   uint64 = 61
)

// Header labels.
const (
	HeaderAlgorithm   int64 = 1
	HeaderContentType int64 = 3
	HeaderKeyID       int64 = 4
)

const (
	contextSignature1 = "Signature1"
	contextMAC0       = "MAC0"
)

type headers struct {
	protected   *codec.Map
	unprotected *codec.Map
}

// HeaderOption adds header parameters to an envelope.
type HeaderOption func(h *headers, key *Key)

// WithKeyID places the key identifier in the unprotected header. Keys
// without an identifier are left alone.
func WithKeyID() HeaderOption {
	return func(h *headers, key *Key) {
		if len(key.kid) > 0 {
			h.unprotected.Set(codec.IntKey(HeaderKeyID), codec.Bytes(key.kid))
		}
	}
}

// WithContentType sets the CoAP content format of the payload in the
// protected header.
func WithContentType(format int64) HeaderOption {
	return func(h *headers, _ *Key) {
		h.protected.Set(codec.IntKey(HeaderContentType), codec.Int(format))
	}
}

func buildHeaders(alg Algorithm, key *Key, opts []HeaderOption) ([]byte, *codec.Map, error) {
	h := &headers{protected: codec.NewMap(), unprotected: codec.NewMap()}
	h.protected.Set(codec.IntKey(HeaderAlgorithm), codec.Int(int64(alg)))
	for _, opt := range opts {
		opt(h, key)
	}

	protected, err := codec.Encode(codec.MapValue(h.protected))
	if err != nil {
		return nil, nil, err
	}
	return protected, h.unprotected, nil
}

// SigStructure encodes the to-be-signed structure
// [context, body_protected, external_aad, payload] with an empty
// external_aad.
func SigStructure(context string, protected, payload []byte) ([]byte, error) {
	return codec.Marshal([]any{context, nonNil(protected), []byte{}, nonNil(payload)})
}

// Sign1 is a COSE_Sign1 envelope. Protected holds the encoded protected
// header exactly as it was signed.
type Sign1 struct {
	Protected   []byte
	Unprotected *codec.Map
	Payload     []byte
	Signature   []byte
}

// Sign builds a COSE_Sign1 over payload. A zero alg uses the key's
// algorithm.
func Sign(payload []byte, key *Key, alg Algorithm, opts ...HeaderOption) (*Sign1, error) {
	if key == nil {
		return nil, errNilKey
	}
	if alg == 0 {
		alg = key.alg
	}
	if alg.IsMAC() {
		return nil, &UnsupportedAlgorithmError{Algorithm: alg, Reason: "MAC algorithms build COSE_Mac0"}
	}
	if err := checkKey(alg, key); err != nil {
		return nil, err
	}

	protected, unprotected, err := buildHeaders(alg, key, opts)
	if err != nil {
		return nil, err
	}

	tbs, err := SigStructure(contextSignature1, protected, payload)
	if err != nil {
		return nil, err
	}

	sig, err := algorithms[alg].method.Sign(string(tbs), key.private)
	if err != nil {
		return nil, &SigningPrimitiveError{Algorithm: alg, Err: err}
	}

	return &Sign1{
		Protected:   protected,
		Unprotected: unprotected,
		Payload:     nonNil(payload),
		Signature:   sig,
	}, nil
}

// MarshalCBOR encodes the envelope as 18([protected, unprotected, payload,
// signature]).
func (s *Sign1) MarshalCBOR() ([]byte, error) {
	return marshalEnvelope(TagSign1, s.Protected, s.Unprotected, s.Payload, s.Signature)
}

func marshalEnvelope(tag uint64, protected []byte, unprotected *codec.Map, payload, last []byte) ([]byte, error) {
	if unprotected == nil {
		unprotected = codec.NewMap()
	}
	return codec.Marshal(codec.Tag{
		Number:  tag,
		Content: []any{nonNil(protected), unprotected, nonNil(payload), nonNil(last)},
	})
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
