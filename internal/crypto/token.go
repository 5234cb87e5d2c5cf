// Package crypto holds the small cryptographic primitives shared across
// the platform: opaque bearer token generation (spec.md §4.10) and the
// versioned encrypt-then-MAC envelope used for at-rest secrets (spec.md §9).
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// DefaultTokenBytes is the raw byte length used when callers don't need a
// non-default size.
const DefaultTokenBytes = 32

// GenerateToken returns a URL-safe random token of n raw bytes plus the
// hex-encoded SHA-256 of that token. The raw value is returned exactly
// once by design: callers persist only the hash, never the raw string.
func GenerateToken(n int) (raw string, hashHex string, err error) {
	if n <= 0 {
		n = DefaultTokenBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	raw = base64.RawURLEncoding.EncodeToString(buf)
	return raw, HashToken(raw), nil
}

// HashToken returns the hex-encoded SHA-256 digest of a raw token, for
// comparing an incoming bearer token against a stored hash.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// TokensMatch compares a presented raw token against a stored hash in
// constant time.
func TokensMatch(raw, storedHashHex string) bool {
	computed := HashToken(raw)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHashHex)) == 1
}
