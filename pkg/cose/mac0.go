package cose

import "github.com/boogy/aws-cwt-issuer/pkg/codec"

// Mac0 is a COSE_Mac0 envelope.
type Mac0 struct {
	Protected   []byte
	Unprotected *codec.Map
	Payload     []byte
	Tag         []byte
}

// MAC builds a COSE_Mac0 over payload with a symmetric key. A zero alg uses
// the key's algorithm.
func MAC(payload []byte, key *Key, alg Algorithm, opts ...HeaderOption) (*Mac0, error) {
	if key == nil {
		return nil, errNilKey
	}
	if alg == 0 {
		alg = key.alg
	}
	if _, ok := algorithms[alg]; ok && !alg.IsMAC() {
		return nil, &UnsupportedAlgorithmError{Algorithm: alg, Reason: "signature algorithms build COSE_Sign1"}
	}
	if err := checkKey(alg, key); err != nil {
		return nil, err
	}

	protected, unprotected, err := buildHeaders(alg, key, opts)
	if err != nil {
		return nil, err
	}

	tbm, err := SigStructure(contextMAC0, protected, payload)
	if err != nil {
		return nil, err
	}

	tag, err := algorithms[alg].method.Sign(string(tbm), key.private)
	if err != nil {
		return nil, &SigningPrimitiveError{Algorithm: alg, Err: err}
	}

	return &Mac0{
		Protected:   protected,
		Unprotected: unprotected,
		Payload:     nonNil(payload),
		Tag:         tag,
	}, nil
}

// MarshalCBOR encodes the envelope as 17([protected, unprotected, payload,
// tag]).
func (m *Mac0) MarshalCBOR() ([]byte, error) {
	return marshalEnvelope(TagMac0, m.Protected, m.Unprotected, m.Payload, m.Tag)
}
