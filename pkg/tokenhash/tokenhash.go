// Package tokenhash issues opaque challenge tokens and the SHA-256 digests
// that are stored in their place.
package tokenhash

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const (
	DefaultTokenLength = 64
	MinTokenLength     = 32
)

// MakeToken returns a random hex string of the given length. Lengths below
// MinTokenLength are raised to it.
func MakeToken(length int) (string, error) {
	if length < MinTokenLength {
		length = MinTokenLength
	}
	b := make([]byte, (length+1)/2)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b)[:length], nil
}

// Hash returns the hex SHA-256 digest of input.
func Hash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Equal compares two digests in constant time.
func Equal(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
