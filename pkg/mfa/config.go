package mfa

import (
	"slices"
	"time"
)

// ActorConfig is the policy for one actor context.
type ActorConfig struct {
	Enabled          bool
	Required         bool
	AllowUserDisable bool
	AllowedDrivers   []string
	DefaultDriver    string
}

// AuthenticatorConfig tunes the TOTP driver.
type AuthenticatorConfig struct {
	Issuer       string
	Digits       int
	Period       int
	Window       int
	SecretLength int
}

// EmailOtpConfig tunes the email one-time code driver.
type EmailOtpConfig struct {
	Digits         int
	TTL            time.Duration
	ResendCooldown time.Duration
	MaxAttempts    int
	MaxResends     int
}

// ChallengeConfig tunes challenge creation and retention.
type ChallengeConfig struct {
	TokenLength    int
	LoginTTL       time.Duration
	PruneAfterDays int
}

// Config is the read-only MFA configuration.
type Config struct {
	Enabled       bool
	Consumer      ActorConfig
	Admin         ActorConfig
	Authenticator AuthenticatorConfig
	EmailOtp      EmailOtpConfig
	Challenge     ChallengeConfig
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	actor := func() ActorConfig {
		return ActorConfig{
			Enabled:          true,
			Required:         false,
			AllowUserDisable: true,
			AllowedDrivers:   []string{DriverAuthenticator, DriverEmailOtp},
			DefaultDriver:    DriverAuthenticator,
		}
	}
	return Config{
		Enabled:  true,
		Consumer: actor(),
		Admin:    actor(),
		Authenticator: AuthenticatorConfig{
			Issuer:       "NinjaPortal",
			Digits:       6,
			Period:       30,
			Window:       1,
			SecretLength: 20,
		},
		EmailOtp: EmailOtpConfig{
			Digits:         6,
			TTL:            300 * time.Second,
			ResendCooldown: 30 * time.Second,
			MaxAttempts:    5,
			MaxResends:     3,
		},
		Challenge: ChallengeConfig{
			TokenLength:    64,
			LoginTTL:       300 * time.Second,
			PruneAfterDays: 7,
		},
	}
}

func (c Config) actor(context string) ActorConfig {
	if NormalizeContext(context) == ContextAdmin {
		return c.Admin
	}
	return c.Consumer
}

// ActorEnabled reports whether MFA runs at all for the context.
func (c Config) ActorEnabled(context string) bool {
	return c.Enabled && c.actor(context).Enabled
}

// ActorRequired reports whether MFA is mandatory for the context.
func (c Config) ActorRequired(context string) bool {
	return c.actor(context).Required
}

// ActorAllowUserDisable reports whether actors may switch MFA off themselves.
func (c Config) ActorAllowUserDisable(context string) bool {
	return c.actor(context).AllowUserDisable
}

// ActorAllowedDrivers returns the allow-listed driver keys in priority order.
func (c Config) ActorAllowedDrivers(context string) []string {
	var out []string
	for _, d := range c.actor(context).AllowedDrivers {
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// ActorDefaultDriver returns the configured default driver, or "".
func (c Config) ActorDefaultDriver(context string) string {
	return c.actor(context).DefaultDriver
}

// DriverAllowed reports whether driver is allow-listed for the context.
func (c Config) DriverAllowed(context, driver string) bool {
	return slices.Contains(c.ActorAllowedDrivers(context), driver)
}

// challengeTTL is the login challenge lifetime, never below 30 seconds.
func (c Config) challengeTTL() time.Duration {
	return max(30*time.Second, c.Challenge.LoginTTL)
}

// limitsFor returns the attempt and resend ceilings for a driver.
func (c Config) limitsFor(driver string) (maxAttempts, maxResends int) {
	if driver == DriverEmailOtp {
		return max(1, c.EmailOtp.MaxAttempts), max(0, c.EmailOtp.MaxResends)
	}
	return 5, 0
}
