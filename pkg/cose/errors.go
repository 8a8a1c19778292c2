package cose

import (
	"errors"
	"fmt"
)

var (
	ErrKeyNotFound = errors.New("cose: key not found")
	ErrEmptyKeySet = errors.New("cose: key set is empty")
)

// KeyFormatError reports key material that cannot be turned into a signing
// key.
type KeyFormatError struct {
	KeyID  string
	Reason string
	Err    error
}

func (e *KeyFormatError) Error() string {
	msg := "cose: invalid key"
	if e.KeyID != "" {
		msg += fmt.Sprintf(" %q", e.KeyID)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *KeyFormatError) Unwrap() error { return e.Err }

var errNilKey = &KeyFormatError{Reason: "nil key"}

// UnsupportedAlgorithmError reports an algorithm that is unknown or cannot
// be used with the key at hand.
type UnsupportedAlgorithmError struct {
	Algorithm Algorithm
	Name      string // set when resolving by name
	Reason    string
}

func (e *UnsupportedAlgorithmError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("cose: unsupported algorithm %q: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("cose: unsupported algorithm %s: %s", e.Algorithm, e.Reason)
}

// SigningPrimitiveError wraps a failure of the underlying signature or MAC
// primitive.
type SigningPrimitiveError struct {
	Algorithm Algorithm
	Err       error
}

func (e *SigningPrimitiveError) Error() string {
	return fmt.Sprintf("cose: %s signing failed: %v", e.Algorithm, e.Err)
}

func (e *SigningPrimitiveError) Unwrap() error { return e.Err }
