// Package claims maps claim names to the integer keys used on the wire.
//
// Registered names come from the IANA "CBOR Web Token (CWT) Claims" registry
// and are fixed. Private names are supplied by the caller through a Registry,
// which is built once and never changes afterwards.
package claims

// Registered claim keys.
const (
	Issuer     int64 = 1
	Subject    int64 = 2
	Audience   int64 = 3
	Expiration int64 = 4
	NotBefore  int64 = 5
	IssuedAt   int64 = 6
	CWTID      int64 = 7
	Confirm    int64 = 8
	Scope      int64 = 9
	Nonce      int64 = 10
	UEID       int64 = 256
	SUEIDs     int64 = 257
	OEMID      int64 = 258
	HWModel    int64 = 259
	HWVersion  int64 = 260
	SecureBoot int64 = 262
	DebugState int64 = 263
	Location   int64 = 264
	EATProfile int64 = 265
	Submodules int64 = 266
)

var registered = map[string]int64{
	"iss":         Issuer,
	"sub":         Subject,
	"aud":         Audience,
	"exp":         Expiration,
	"nbf":         NotBefore,
	"iat":         IssuedAt,
	"cti":         CWTID,
	"cnf":         Confirm,
	"scope":       Scope,
	"nonce":       Nonce,
	"ueid":        UEID,
	"sueids":      SUEIDs,
	"oemid":       OEMID,
	"hwmodel":     HWModel,
	"hwversion":   HWVersion,
	"secboot":     SecureBoot,
	"dbgstat":     DebugState,
	"location":    Location,
	"eat_profile": EATProfile,
	"submods":     Submodules,
}

var registeredNames = func() map[int64]string {
	out := make(map[int64]string, len(registered))
	for name, key := range registered {
		out[key] = name
	}
	return out
}()

// RegisteredKey returns the fixed key for a registered claim name.
func RegisteredKey(name string) (int64, bool) {
	key, ok := registered[name]
	return key, ok
}

// RegisteredName returns the registered claim name for key.
func RegisteredName(key int64) (string, bool) {
	name, ok := registeredNames[key]
	return name, ok
}
