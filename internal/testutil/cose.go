package testutil

import (
	"crypto"
	"errors"
	"fmt"

	"github.com/boogy/aws-cwt-issuer/pkg/codec"
	"github.com/boogy/aws-cwt-issuer/pkg/cose"
)

// Envelope is a decoded single-recipient COSE structure.
type Envelope struct {
	Tag         uint64 // cose.TagSign1 or cose.TagMac0
	CWTTagged   bool
	Protected   []byte
	Unprotected codec.Value
	Payload     []byte
	Signature   []byte // signature or MAC tag
}

// Algorithm reads label 1 from the protected header.
func (e *Envelope) Algorithm() (cose.Algorithm, error) {
	header, err := codec.Decode(e.Protected)
	if err != nil {
		return 0, fmt.Errorf("decoding protected header: %w", err)
	}
	m, ok := header.AsMap()
	if !ok {
		return 0, errors.New("protected header is not a map")
	}
	v, ok := m.Get(codec.IntKey(cose.HeaderAlgorithm))
	if !ok {
		return 0, errors.New("protected header has no algorithm")
	}
	alg, ok := v.AsInt()
	if !ok {
		return 0, errors.New("algorithm is not an integer")
	}
	return cose.Algorithm(alg), nil
}

// Claims decodes the payload as a claim set.
func (e *Envelope) Claims() (*codec.Map, error) {
	v, err := codec.Decode(e.Payload)
	if err != nil {
		return nil, err
	}
	m, ok := v.AsMap()
	if !ok {
		return nil, errors.New("payload is not a map")
	}
	return m, nil
}

// Decode parses a COSE_Sign1 or COSE_Mac0 envelope, unwrapping the CWT tag
// when present.
func Decode(data []byte) (*Envelope, error) {
	var tag codec.Tag
	if err := codec.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	env := &Envelope{}
	if tag.Number == cose.TagCWT {
		inner, ok := tag.Content.(codec.Tag)
		if !ok {
			return nil, errors.New("CWT tag does not wrap a COSE tag")
		}
		env.CWTTagged = true
		tag = inner
	}
	if tag.Number != cose.TagSign1 && tag.Number != cose.TagMac0 {
		return nil, fmt.Errorf("unexpected tag %d", tag.Number)
	}
	env.Tag = tag.Number

	items, ok := tag.Content.([]any)
	if !ok || len(items) != 4 {
		return nil, errors.New("envelope is not a four element array")
	}

	fields := []*[]byte{&env.Protected, nil, &env.Payload, &env.Signature}
	for i, dst := range fields {
		if dst == nil {
			continue
		}
		b, ok := items[i].([]byte)
		if !ok {
			return nil, fmt.Errorf("envelope element %d is not a byte string", i)
		}
		*dst = b
	}

	unprotected, err := codec.FromGo(items[1])
	if err != nil {
		return nil, fmt.Errorf("decoding unprotected header: %w", err)
	}
	env.Unprotected = unprotected

	return env, nil
}

// VerifySign1 decodes data and checks the signature with pub.
func VerifySign1(data []byte, pub crypto.PublicKey) (*Envelope, error) {
	env, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if env.Tag != cose.TagSign1 {
		return nil, fmt.Errorf("expected COSE_Sign1, got tag %d", env.Tag)
	}
	return env, verify(env, "Signature1", pub)
}

// VerifyMac0 decodes data and checks the MAC tag with secret.
func VerifyMac0(data []byte, secret []byte) (*Envelope, error) {
	env, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if env.Tag != cose.TagMac0 {
		return nil, fmt.Errorf("expected COSE_Mac0, got tag %d", env.Tag)
	}
	return env, verify(env, "MAC0", secret)
}

func verify(env *Envelope, context string, key any) error {
	alg, err := env.Algorithm()
	if err != nil {
		return err
	}
	method, err := cose.SigningMethodFor(alg)
	if err != nil {
		return err
	}
	tbs, err := cose.SigStructure(context, env.Protected, env.Payload)
	if err != nil {
		return err
	}
	return method.Verify(string(tbs), env.Signature, key)
}
