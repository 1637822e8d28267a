// Package secretbox encrypts factor secrets at rest with XChaCha20-Poly1305.
// The cipher key is derived from the application key with HKDF-SHA256, so
// any non-empty application key can be used.
package secretbox

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const prefix = "v1:"

var (
	ErrEmptyKey         = errors.New("secretbox: application key is empty")
	ErrMalformed        = errors.New("secretbox: malformed ciphertext")
	ErrDecryptionFailed = errors.New("secretbox: decryption failed")
)

// Box seals and opens short strings.
type Box struct {
	aead cipher.AEAD
}

// New derives a cipher key from appKey.
func New(appKey string) (*Box, error) {
	if strings.TrimSpace(appKey) == "" {
		return nil, ErrEmptyKey
	}

	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, []byte(appKey), nil, []byte("portal-mfa factor secret"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("secretbox: derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Encrypt returns "v1:" + base64(nonce || ciphertext).
func (b *Box) Encrypt(plain string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize(), b.aead.NonceSize()+len(plain)+b.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secretbox: nonce: %w", err)
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plain), nil)
	return prefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Errors never include the ciphertext or plaintext.
func (b *Box) Decrypt(encoded string) (string, error) {
	if !strings.HasPrefix(encoded, prefix) {
		return "", ErrMalformed
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(encoded, prefix))
	if err != nil {
		return "", ErrMalformed
	}
	ns := b.aead.NonceSize()
	if len(raw) < ns+b.aead.Overhead() {
		return "", ErrMalformed
	}
	plain, err := b.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}
