package mfa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ninjaportal/portal-mfa/pkg/totp"
	"github.com/ninjaportal/portal-mfa/pkg/utils"
)

const (
	authenticatorPrompt       = "Enter the code from your authenticator app."
	defaultAuthenticatorLabel = "Authenticator App"
)

// SecretCipher encrypts factor secrets at rest. secretbox.Box implements it.
type SecretCipher interface {
	Encrypt(plain string) (string, error)
	Decrypt(encoded string) (string, error)
}

// AuthenticatorDriver verifies TOTP codes from an authenticator app. It
// never sends anything, so resend is not supported.
type AuthenticatorDriver struct {
	cipher SecretCipher
	cfg    AuthenticatorConfig
	clock  Clock
}

func NewAuthenticatorDriver(cipher SecretCipher, opts ...Option) *AuthenticatorDriver {
	o := buildOptions(opts)
	return &AuthenticatorDriver{
		cipher: cipher,
		cfg:    o.config.Authenticator,
		clock:  o.clock,
	}
}

func (d *AuthenticatorDriver) Key() string { return DriverAuthenticator }

func (d *AuthenticatorDriver) SupportsResend() bool { return false }

func (d *AuthenticatorDriver) PrepareChallenge(ctx context.Context, req DriverRequest) (Payload, error) {
	return Payload{
		"driver":     d.Key(),
		"context":    req.Context,
		"purpose":    req.Challenge.Purpose,
		"expires_at": utils.ISO8601(&req.Challenge.ExpiresAt),
		"can_resend": false,
		"prompt":     authenticatorPrompt,
	}, nil
}

// VerifyChallenge matches code against the factor's secret. A counter at or
// below the factor's LastCounter is refused; on success LastCounter moves
// forward and the caller must save the factor.
func (d *AuthenticatorDriver) VerifyChallenge(ctx context.Context, req DriverRequest, code string) (bool, error) {
	secret, err := d.decryptSecret(req.Factor)
	if err != nil {
		return false, err
	}

	digits, period := d.factorShape(req.Factor)
	counter, ok := totp.Match(secret, code, d.cfg.Window, period, digits, d.clock())
	if !ok {
		return false, nil
	}
	if req.Factor.LastCounter != nil && counter <= *req.Factor.LastCounter {
		slog.Warn("Authenticator code replayed", "factorId", req.Factor.ID, "counter", counter)
		return false, nil
	}
	req.Factor.LastCounter = &counter
	return true, nil
}

func (d *AuthenticatorDriver) ResendChallenge(ctx context.Context, req DriverRequest) (Payload, error) {
	return nil, ErrUnsupportedOperation
}

// BeginEnrollment puts a fresh secret on factor and resets it to
// unverified and disabled. The returned payload carries the secret once so
// the actor can load it into an app.
func (d *AuthenticatorDriver) BeginEnrollment(ctx context.Context, actor Actor, context string, factor *Factor, input EnrollmentInput) (Payload, error) {
	secret, err := totp.GenerateSecret(max(totp.MinSecretLength, d.cfg.SecretLength))
	if err != nil {
		return nil, err
	}

	email := strings.TrimSpace(actor.Email)
	label := strings.TrimSpace(input.Label)
	if label == "" {
		label = strings.TrimSpace(factor.Label)
	}
	if label == "" {
		label = email
	}
	if label == "" {
		label = defaultAuthenticatorLabel
	}

	encrypted, err := d.cipher.Encrypt(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt authenticator secret: %w", err)
	}

	digits, period := d.digits(), d.period()
	factor.Label = label
	factor.SecretEncrypted = encrypted
	factor.IsVerified = false
	factor.IsEnabled = false
	factor.IsPrimary = false
	factor.LastCounter = nil
	factor.Config = FactorConfig{
		Issuer:  d.cfg.Issuer,
		Digits:  digits,
		Period:  period,
		Context: context,
	}

	account := email
	if account == "" {
		account = actor.ID
	}
	uri := totp.ProvisioningURI(secret, d.cfg.Issuer, account, digits, period)

	payload := Payload{
		"driver":        d.Key(),
		"secret":        secret,
		"issuer":        d.cfg.Issuer,
		"account_label": account,
		"digits":        digits,
		"period":        period,
		"otpauth_uri":   uri,
	}
	if img, err := totp.ProvisioningQRCode(uri, 0); err == nil {
		payload["qr_code"] = img
	} else {
		slog.Warn("Failed to render provisioning QR code", "factorId", factor.ID, "err", err)
	}
	return payload, nil
}

// ConfirmEnrollment checks a code against the pending secret and marks the
// factor verified and enabled.
func (d *AuthenticatorDriver) ConfirmEnrollment(ctx context.Context, actor Actor, context string, factor *Factor, input EnrollmentInput) error {
	code := strings.TrimSpace(input.Code)
	if code == "" {
		return ErrInvalidCode.WithMessage("code", "Verification code is required.")
	}

	ok, err := d.VerifyChallenge(ctx, DriverRequest{
		Challenge: &Challenge{Purpose: PurposeFactorAuthenticatorEnrollment},
		Factor:    factor,
		Actor:     actor,
		Context:   context,
	}, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode.WithMessage("code", "Invalid authenticator code.")
	}

	now := d.clock().UTC()
	factor.IsVerified = true
	factor.IsEnabled = true
	factor.VerifiedAt = &now
	return nil
}

func (d *AuthenticatorDriver) decryptSecret(f *Factor) (string, error) {
	if f == nil || f.SecretEncrypted == "" {
		return "", ErrInvalidParameter.WithMessage("driver", "Authenticator factor secret is missing.")
	}
	secret, err := d.cipher.Decrypt(f.SecretEncrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt authenticator secret: %w", err)
	}
	return secret, nil
}

// factorShape prefers the digits and period captured at enrollment.
func (d *AuthenticatorDriver) factorShape(f *Factor) (digits, period int) {
	digits, period = d.digits(), d.period()
	if f.Config.Digits > 0 {
		digits = f.Config.Digits
	}
	if f.Config.Period > 0 {
		period = f.Config.Period
	}
	return digits, period
}

func (d *AuthenticatorDriver) digits() int {
	if d.cfg.Digits <= 0 {
		return totp.DefaultDigits
	}
	return d.cfg.Digits
}

func (d *AuthenticatorDriver) period() int {
	if d.cfg.Period <= 0 {
		return totp.DefaultPeriod
	}
	return d.cfg.Period
}
