// Package secretcodec encodes TOTP shared secrets with the RFC 4648 base32
// alphabet, without padding, the way authenticator apps expect them.
package secretcodec

import (
	"strings"

	mfaerrors "github.com/ninjaportal/portal-mfa/pkg/errors"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// ErrInvalidSecretEncoding is returned by Decode for characters outside the alphabet.
var ErrInvalidSecretEncoding = mfaerrors.Field(mfaerrors.ErrCodeInvalidSecretEncoding, "secret", "Invalid base32 character encountered.")

var decodeMap [256]int8

func init() {
	for i := range decodeMap {
		decodeMap[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		decodeMap[alphabet[i]] = int8(i)
	}
}

// Encode writes b as base32 text. The final group is padded on the right
// with zero bits and no '=' padding is emitted.
func Encode(b []byte) string {
	if len(b) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.Grow((len(b)*8 + 4) / 5)

	var buffer uint32
	bits := 0
	for _, c := range b {
		buffer = buffer<<8 | uint32(c)
		bits += 8
		for bits >= 5 {
			bits -= 5
			sb.WriteByte(alphabet[(buffer>>uint(bits))&0x1f])
		}
	}
	if bits > 0 {
		sb.WriteByte(alphabet[(buffer<<uint(5-bits))&0x1f])
	}
	return sb.String()
}

// Decode parses base32 text. Input is case-insensitive; whitespace, '-'
// and '=' are treated as formatting and dropped. Any other character
// outside the alphabet is not stripped: Decode fails with
// ErrInvalidSecretEncoding. A trailing group of fewer than 8 bits is
// discarded.
func Decode(s string) ([]byte, error) {
	out := make([]byte, 0, len(s)*5/8)

	var buffer uint32
	bits := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isFormatting(c) {
			continue
		}
		if 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		v := decodeMap[c]
		if v < 0 {
			return nil, ErrInvalidSecretEncoding
		}
		buffer = buffer<<5 | uint32(v)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(buffer>>uint(bits)))
		}
	}
	return out, nil
}

func isFormatting(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '-', '=':
		return true
	}
	return false
}
