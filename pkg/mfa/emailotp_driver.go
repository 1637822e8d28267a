package mfa

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ninjaportal/portal-mfa/pkg/tokenhash"
	"github.com/ninjaportal/portal-mfa/pkg/utils"
)

const minEmailOtpDigits = 4

// CodeSender delivers a plaintext one-time code. It is the only place the
// code leaves the driver.
type CodeSender interface {
	SendCode(ctx context.Context, email, code string, ttl time.Duration, purpose string) error
}

// CodeSenderFunc adapts a function to CodeSender.
type CodeSenderFunc func(ctx context.Context, email, code string, ttl time.Duration, purpose string) error

func (f CodeSenderFunc) SendCode(ctx context.Context, email, code string, ttl time.Duration, purpose string) error {
	return f(ctx, email, code, ttl, purpose)
}

// EmailOtpDriver mails a random numeric code and keeps only its hash on
// the challenge.
type EmailOtpDriver struct {
	sender CodeSender
	cfg    EmailOtpConfig
	clock  Clock
	events *Dispatcher
}

func NewEmailOtpDriver(sender CodeSender, opts ...Option) *EmailOtpDriver {
	o := buildOptions(opts)
	return &EmailOtpDriver{
		sender: sender,
		cfg:    o.config.EmailOtp,
		clock:  o.clock,
		events: o.events,
	}
}

func (d *EmailOtpDriver) Key() string { return DriverEmailOtp }

func (d *EmailOtpDriver) SupportsResend() bool { return true }

func (d *EmailOtpDriver) PrepareChallenge(ctx context.Context, req DriverRequest) (Payload, error) {
	if err := d.issueCode(ctx, req, false); err != nil {
		return nil, err
	}
	return d.challengePayload(req), nil
}

func (d *EmailOtpDriver) VerifyChallenge(ctx context.Context, req DriverRequest, code string) (bool, error) {
	normalized := digitsOnly(code)
	if normalized == "" || req.Challenge.CodeHash == "" {
		return false, nil
	}
	return tokenhash.Equal(req.Challenge.CodeHash, tokenhash.Hash(normalized)), nil
}

// ResendChallenge applies the cooldown, then the resend ceiling, then
// replaces the code and pushes expiry out by the code TTL.
func (d *EmailOtpDriver) ResendChallenge(ctx context.Context, req DriverRequest) (Payload, error) {
	c := req.Challenge
	now := d.now()
	if c.LastSentAt != nil && c.LastSentAt.After(now.Add(-d.cfg.ResendCooldown)) {
		return nil, ErrResendTooSoon
	}
	if c.ResendCount >= c.MaxResends {
		return nil, ErrResendLimitExceeded
	}

	c.ResendCount++
	c.ExpiresAt = now.Add(d.cfg.TTL)
	if err := d.issueCode(ctx, req, true); err != nil {
		return nil, err
	}
	return d.challengePayload(req), nil
}

func (d *EmailOtpDriver) issueCode(ctx context.Context, req DriverRequest, resend bool) error {
	c := req.Challenge
	email := strings.TrimSpace(req.Actor.Email)
	if email == "" {
		return ErrMissingEmail
	}

	code, err := randomDigits(max(minEmailOtpDigits, d.cfg.Digits))
	if err != nil {
		return err
	}

	now := d.now()
	c.CodeHash = tokenhash.Hash(code)
	c.LastSentAt = &now
	if c.Payload == nil {
		c.Payload = map[string]interface{}{}
	}
	c.Payload["masked_destination"] = utils.MaskEmail(email)

	if err := d.sender.SendCode(ctx, email, code, d.cfg.TTL, c.Purpose); err != nil {
		return fmt.Errorf("failed to send email OTP: %w", err)
	}

	d.events.Dispatch(ctx, OtpSentEvent{
		Context:     req.Context,
		Purpose:     c.Purpose,
		Actor:       req.Actor,
		ChallengeID: c.ID,
		Driver:      d.Key(),
		Resend:      resend,
	})
	return nil
}

func (d *EmailOtpDriver) challengePayload(req DriverRequest) Payload {
	c := req.Challenge
	return Payload{
		"driver":             d.Key(),
		"context":            req.Context,
		"purpose":            c.Purpose,
		"expires_at":         utils.ISO8601(&c.ExpiresAt),
		"can_resend":         true,
		"masked_destination": c.Payload["masked_destination"],
		"resend_count":       c.ResendCount,
		"max_resends":        c.MaxResends,
		"sent_at":            utils.ISO8601(c.LastSentAt),
		"delivery":           map[string]interface{}{"channel": "email"},
	}
}

func (d *EmailOtpDriver) now() time.Time {
	return d.clock().UTC()
}

// randomDigits returns a uniformly drawn, zero padded numeric code.
func randomDigits(n int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	code := v.String()
	if len(code) < n {
		code = strings.Repeat("0", n-len(code)) + code
	}
	return code, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
