package types

import "time"

// IssuanceRecord is the ledger entry written for every minted token. The
// token itself is never stored, only its keyed fingerprint.
type IssuanceRecord struct {
	TokenID     string    `json:"token_id"`
	Fingerprint string    `json:"fingerprint"`
	Subject     string    `json:"subject,omitempty"`
	Issuer      string    `json:"issuer,omitempty"`
	KeyID       string    `json:"key_id,omitempty"`
	Algorithm   string    `json:"algorithm"`
	RequestID   string    `json:"request_id,omitempty"`
	Size        int       `json:"size"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}
