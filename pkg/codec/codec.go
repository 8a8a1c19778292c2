// Package codec is the deterministic CBOR layer shared by the claims,
// COSE and CWT packages.
//
// Encoding follows RFC 8949 §4.2.1 Core Deterministic Encoding: shortest
// integer and length heads, definite lengths only, shortest float that keeps
// the value, and map keys sorted by the bytewise order of their encoded form.
// The same logical value always produces the same bytes, which is what lets
// a COSE protected header be encoded once and reused in the signature input.
package codec

import (
	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Positive integers decode as uint64 and negative ones as int64
		// when the target is any; FromGo folds them back into Int values.
		IntDec: cbor.IntDecConvertNone,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Tag is a CBOR tagged data item.
type Tag = cbor.Tag

// RawMessage is an already encoded CBOR data item, emitted verbatim.
type RawMessage = cbor.RawMessage

// Marshal encodes v using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encode serializes a Value. Identical values always yield identical bytes.
func Encode(v Value) ([]byte, error) {
	return encMode.Marshal(v.native())
}

// Decode parses a single CBOR data item back into a Value. Tagged items and
// map keys other than integers or text are rejected.
func Decode(data []byte) (Value, error) {
	var raw any
	if err := decMode.Unmarshal(data, &raw); err != nil {
		return Value{}, err
	}
	return FromGo(raw)
}

// Diagnose returns the RFC 8949 diagnostic notation of data.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
