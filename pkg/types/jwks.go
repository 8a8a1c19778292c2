package types

// JSONWebKey is a JSON web key as specified by RFC 7517 and RFC 7518,
// including the private members needed to sign.
type JSONWebKey struct {
	Algorithm string   `json:"alg,omitempty"`
	KeyID     string   `json:"kid,omitempty"`
	KeyType   string   `json:"kty,omitempty"`
	Use       string   `json:"use,omitempty"`
	KeyOps    []string `json:"key_ops,omitempty"`
	N         string   `json:"n,omitempty"`   // RSA modulus
	E         string   `json:"e,omitempty"`   // RSA public exponent
	D         string   `json:"d,omitempty"`   // EC/OKP private scalar or RSA private exponent
	P         string   `json:"p,omitempty"`   // RSA first prime factor
	Q         string   `json:"q,omitempty"`   // RSA second prime factor
	DP        string   `json:"dp,omitempty"`  // RSA first factor CRT exponent
	DQ        string   `json:"dq,omitempty"`  // RSA second factor CRT exponent
	QI        string   `json:"qi,omitempty"`  // RSA first CRT coefficient
	X         string   `json:"x,omitempty"`   // EC x coordinate, OKP public key
	Y         string   `json:"y,omitempty"`   // EC y coordinate
	Crv       string   `json:"crv,omitempty"` // EC/OKP curve
	K         string   `json:"k,omitempty"`   // symmetric key
}

// JWKS is a set of JSON Web Keys.
type JWKS struct {
	Keys []JSONWebKey `json:"keys"`
}
