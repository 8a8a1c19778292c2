package utils

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// fingerprintKey is the BLAKE3 key for token fingerprints: the ASCII domain
// name zero-padded to 32 bytes. Changing it invalidates every stored
// fingerprint.
var fingerprintKey = [32]byte{
	'a', 'w', 's', '-', 'c', 'w', 't', '-', 'i', 's', 's', 'u', 'e', 'r', '.',
	't', 'o', 'k', 'e', 'n', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Fingerprint returns the hex BLAKE3 keyed hash of a minted token. The
// ledger stores it in place of the token.
func Fingerprint(token []byte) string {
	h, err := blake3.NewKeyed(fingerprintKey[:])
	if err != nil {
		// only fails for keys that are not 32 bytes
		panic("utils: blake3 keyed hasher: " + err.Error())
	}
	_, _ = h.Write(token)
	return hex.EncodeToString(h.Sum(nil))
}

func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// parseLogLevel converts a string to an slog.Level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.Level(0), fmt.Errorf("invalid log level: %s", level)
	}
}

// RedactToken redacts a token string for safe logging, preserving only the first and last N characters
func RedactToken(token string, firstN, lastN int) string {
	if token == "" {
		return ""
	}

	tokenLen := len(token)

	// If token is shorter than firstN + lastN, just mask it all
	if tokenLen <= firstN+lastN {
		return strings.Repeat("*", tokenLen)
	}

	// Otherwise, keep firstN and lastN characters visible
	first := token[:firstN]
	last := token[tokenLen-lastN:]
	middle := "..." // strings.Repeat("*", tokenLen-firstN-lastN)

	return first + middle + last
}

// TruncateString truncates a string to the specified length and adds an ellipsis if truncated
func TruncateString(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}

	return s[:maxLength-3] + "..."
}
