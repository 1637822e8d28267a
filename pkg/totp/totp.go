package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	mfaerrors "github.com/ninjaportal/portal-mfa/pkg/errors"
	"github.com/ninjaportal/portal-mfa/pkg/secretcodec"
	skipqrcode "github.com/skip2/go-qrcode"
)

const (
	DefaultDigits       = 6
	DefaultPeriod       = 30
	DefaultWindow       = 1
	DefaultSecretLength = 20
	MinSecretLength     = 10

	maxDigits     = 10
	defaultQRSize = 256
)

var (
	// ErrSecretTooShort is returned by GenerateSecret for fewer than MinSecretLength bytes.
	ErrSecretTooShort = mfaerrors.Field(mfaerrors.ErrCodeInvalidParameter, "secret_length", "TOTP secret length must be at least 10 bytes.")
	// ErrInvalidDigits is returned when the digit count is outside 1..10.
	ErrInvalidDigits = mfaerrors.Field(mfaerrors.ErrCodeInvalidParameter, "digits", "TOTP digit count must be between 1 and 10.")
)

// GenerateSecret returns byteLength random bytes as base32 text.
func GenerateSecret(byteLength int) (string, error) {
	if byteLength < MinSecretLength {
		return "", ErrSecretTooShort
	}
	b := make([]byte, byteLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return secretcodec.Encode(b), nil
}

// CodeAt derives the HOTP value (RFC 4226) of secret at counter.
func CodeAt(secret string, counter int64, digits int) (string, error) {
	if digits < 1 || digits > maxDigits {
		return "", ErrInvalidDigits
	}
	key, err := secretcodec.Decode(secret)
	if err != nil {
		return "", err
	}
	return codeAt(key, uint64(counter), digits), nil
}

func codeAt(key []byte, counter uint64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := int64(binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff)

	mod := int64(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, value%mod)
}

// Counter returns the time step for t.
func Counter(t time.Time, period int) int64 {
	if period < 1 {
		period = 1
	}
	return t.Unix() / int64(period)
}

// Match checks code against every counter in [step-window, step+window]
// and returns the counter that matched. Whitespace in code is ignored and
// anything else that is not a digit is rejected.
func Match(secret, code string, window, period, digits int, at time.Time) (int64, bool) {
	code = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, code)
	if code == "" || !allDigits(code) {
		return 0, false
	}
	if digits < 1 || digits > maxDigits {
		return 0, false
	}
	key, err := secretcodec.Decode(secret)
	if err != nil || len(key) == 0 {
		return 0, false
	}
	if window < 0 {
		window = 0
	}

	step := Counter(at, period)
	matched := int64(-1)
	for k := -window; k <= window; k++ {
		c := step + int64(k)
		if c < 0 {
			continue
		}
		expected := codeAt(key, uint64(c), digits)
		// the whole window is always scanned
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 && matched < 0 {
			matched = c
		}
	}
	if matched < 0 {
		return 0, false
	}
	return matched, true
}

// Verify reports whether code is valid for secret at the given time.
func Verify(secret, code string, window, period, digits int, at time.Time) bool {
	_, ok := Match(secret, code, window, period, digits, at)
	return ok
}

// ProvisioningURI builds an otpauth:// URI that authenticator apps can import.
func ProvisioningURI(secret, issuer, accountLabel string, digits, period int) string {
	return fmt.Sprintf("otpauth://totp/%s?secret=%s&issuer=%s&digits=%d&period=%d",
		rawURLEncode(issuer+":"+accountLabel),
		rawURLEncode(secret),
		rawURLEncode(issuer),
		digits,
		period,
	)
}

// ProvisioningQRCode renders uri as a PNG data URI for an <img> tag.
func ProvisioningQRCode(uri string, size int) (string, error) {
	if size <= 0 {
		size = defaultQRSize
	}
	png, err := skipqrcode.Encode(uri, skipqrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("failed to generate QR code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// rawURLEncode escapes everything except RFC 3986 unreserved characters.
func rawURLEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
