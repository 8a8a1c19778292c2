package handler

import (
	"errors"
	"time"

	"github.com/boogy/aws-cwt-issuer/pkg/output"
)

// Constants for handler configuration
const (
	// DefaultTimeout is the maximum time to process a request
	DefaultTimeout = 10 * time.Second

	// MaxBodySize is the maximum accepted request body
	MaxBodySize = 64 * 1024 // 64KB

	// MaxKeyIDLength is the maximum allowed length for a requested kid
	MaxKeyIDLength = 256
)

// Context key types to avoid string collision in context values
type contextKey string

const (
	RequestIDContextKey contextKey = "requestId"
	StartTimeContextKey contextKey = "startTime"
	SourceIPContextKey  contextKey = "sourceIp"
	UserAgentContextKey contextKey = "userAgent"
)

// Custom error types for more precise error reporting
var (
	ErrInvalidJSON    = errors.New("invalid JSON in request body")
	ErrBodyTooLarge   = errors.New("request body exceeds maximum allowed size")
	ErrMissingClaims  = errors.New("request has no claims")
	ErrKeyIDTooLarge  = errors.New("kid exceeds maximum allowed size")
	ErrKeyUnavailable = errors.New("signing key unavailable")
	ErrLedgerWrite    = errors.New("failed to record issuance")
)

var (
	// ResponseHeaders common headers to include in all API responses
	ResponseHeaders = map[string]string{
		"Content-Type": "application/json",
	}
)

// RequestData is the request format expected by the Lambda
type RequestData struct {
	Claims    map[string]any `json:"claims"`              // Claim names and values to encode
	KeyID     string         `json:"kid,omitempty"`       // Signing key; empty selects the configured default
	Algorithm string         `json:"algorithm,omitempty"` // JOSE or COSE algorithm name overriding the key's
}

// IssueResult is the data returned for an issued token.
type IssueResult struct {
	*output.Encodings
	TokenID   string `json:"token_id,omitempty"`
	KeyID     string `json:"kid,omitempty"`
	Algorithm string `json:"algorithm"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

// Response represents a standardized API response
type Response struct {
	Success      bool   `json:"success"`
	StatusCode   int    `json:"statusCode,omitempty"`
	RequestID    string `json:"requestId"`
	ProcessingMS int64  `json:"processingMs,omitempty"`

	// For successful responses
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`

	// For error responses
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorDetails string `json:"errorDetails,omitempty"`
}
