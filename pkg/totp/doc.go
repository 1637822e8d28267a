// Package totp implements time-based one-time passwords (RFC 6238) on top
// of HMAC-SHA1 HOTP values (RFC 4226).
//
// # Overview
//
// The package provides:
//   - Secret generation (base32, see package secretcodec)
//   - Code derivation at an arbitrary counter
//   - Verification within a clock-skew window
//   - otpauth:// provisioning URIs and QR code images for authenticator apps
//
// # Basic Usage
//
//	secret, err := totp.GenerateSecret(totp.DefaultSecretLength)
//	uri := totp.ProvisioningURI(secret, "NinjaPortal", "user@example.com", 6, 30)
//
//	ok := totp.Verify(secret, submitted, totp.DefaultWindow, totp.DefaultPeriod, totp.DefaultDigits, time.Now())
//
// Match returns the counter that matched so callers can refuse a code whose
// counter is not newer than the last accepted one.
package totp
