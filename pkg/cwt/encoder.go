// Package cwt encodes CBOR Web Tokens (RFC 8392).
//
// An Encoder resolves claim names through a claims.Registry, serializes the
// claim set with the deterministic codec, and wraps it in a COSE_Sign1 (or
// COSE_Mac0 for symmetric keys). Encoding is all or nothing: any failure
// returns nil bytes.
package cwt

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/boogy/aws-cwt-issuer/pkg/claims"
	"github.com/boogy/aws-cwt-issuer/pkg/codec"
	"github.com/boogy/aws-cwt-issuer/pkg/cose"
)

// Option configures an Encoder.
type Option func(*Encoder)

// WithAlgorithm overrides the key's algorithm.
func WithAlgorithm(alg cose.Algorithm) Option {
	return func(e *Encoder) { e.alg = alg }
}

// WithKeyID puts the key identifier into the unprotected header.
func WithKeyID() Option {
	return func(e *Encoder) { e.keyID = true }
}

// WithCWTTag wraps the envelope in the CWT tag (61).
func WithCWTTag() Option {
	return func(e *Encoder) { e.tagCWT = true }
}

// WithIssuer sets iss when the payload does not carry one.
func WithIssuer(iss string) Option {
	return func(e *Encoder) { e.issuer = iss }
}

// WithExpiresIn sets exp to now+d when the payload does not carry one.
func WithExpiresIn(d time.Duration) Option {
	return func(e *Encoder) { e.expiresIn = d }
}

// WithIssuedAt sets iat to now when the payload does not carry one.
func WithIssuedAt() Option {
	return func(e *Encoder) { e.issuedAt = true }
}

// WithNotBefore sets nbf to now when the payload does not carry one.
func WithNotBefore() Option {
	return func(e *Encoder) { e.notBefore = true }
}

// WithGeneratedCTI sets cti to a random UUID when the payload does not carry
// one.
func WithGeneratedCTI() Option {
	return func(e *Encoder) { e.generateCTI = true }
}

// WithClock replaces time.Now for the time claims.
func WithClock(now func() time.Time) Option {
	return func(e *Encoder) { e.now = now }
}

// Encoder turns claim payloads into signed CWTs. It holds no mutable state
// and may be shared between goroutines.
type Encoder struct {
	registry    *claims.Registry
	alg         cose.Algorithm
	keyID       bool
	tagCWT      bool
	issuer      string
	expiresIn   time.Duration
	issuedAt    bool
	notBefore   bool
	generateCTI bool
	now         func() time.Time
	newID       func() uuid.UUID
}

// NewEncoder returns an Encoder that resolves private claim names through
// reg. A nil reg knows only the registered claim names.
func NewEncoder(reg *claims.Registry, opts ...Option) *Encoder {
	e := &Encoder{
		registry: reg,
		now:      time.Now,
		newID:    uuid.New,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the claim registry the encoder resolves names with.
func (e *Encoder) Registry() *claims.Registry { return e.registry }

// Encode canonicalizes payload and signs it with key.
func (e *Encoder) Encode(payload map[string]any, key *cose.Key) ([]byte, error) {
	set, err := claims.Canonicalize(payload, e.registry)
	if err != nil {
		return nil, err
	}
	return e.EncodeClaims(set, key)
}

// EncodeClaims signs an already canonical claim set. The set is not
// modified.
func (e *Encoder) EncodeClaims(set *codec.Map, key *cose.Key) ([]byte, error) {
	if key == nil {
		return nil, &cose.KeyFormatError{Reason: "nil key"}
	}
	set = e.withDefaults(set)

	payload, err := codec.Encode(codec.MapValue(set))
	if err != nil {
		return nil, fmt.Errorf("encoding claim set: %w", err)
	}

	alg := e.alg
	if alg == 0 {
		alg = key.Algorithm()
	}

	var headerOpts []cose.HeaderOption
	if e.keyID {
		headerOpts = append(headerOpts, cose.WithKeyID())
	}

	var envelope interface{ MarshalCBOR() ([]byte, error) }
	if key.Type() == cose.KeyTypeSymmetric {
		envelope, err = cose.MAC(payload, key, alg, headerOpts...)
	} else {
		envelope, err = cose.Sign(payload, key, alg, headerOpts...)
	}
	if err != nil {
		return nil, err
	}

	token, err := envelope.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}

	if e.tagCWT {
		token, err = codec.Marshal(codec.Tag{Number: cose.TagCWT, Content: codec.RawMessage(token)})
		if err != nil {
			return nil, fmt.Errorf("encoding CWT tag: %w", err)
		}
	}

	return token, nil
}

func (e *Encoder) withDefaults(set *codec.Map) *codec.Map {
	out := set.Clone()
	now := e.now().Unix()

	setIfAbsent := func(key int64, v codec.Value) {
		if !out.Has(codec.IntKey(key)) {
			out.Set(codec.IntKey(key), v)
		}
	}

	if e.issuer != "" {
		setIfAbsent(claims.Issuer, codec.Text(e.issuer))
	}
	if e.expiresIn > 0 {
		setIfAbsent(claims.Expiration, codec.Int(now+int64(e.expiresIn/time.Second)))
	}
	if e.issuedAt {
		setIfAbsent(claims.IssuedAt, codec.Int(now))
	}
	if e.notBefore {
		setIfAbsent(claims.NotBefore, codec.Int(now))
	}
	if e.generateCTI && !out.Has(codec.IntKey(claims.CWTID)) {
		id := e.newID()
		out.Set(codec.IntKey(claims.CWTID), codec.Bytes(id[:]))
	}

	return out
}

// Encode signs payload with key, resolving private claim names through reg.
func Encode(payload map[string]any, key *cose.Key, reg *claims.Registry) ([]byte, error) {
	return NewEncoder(reg).Encode(payload, key)
}
