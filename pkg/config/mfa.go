package config

import (
	"time"

	"github.com/jinzhu/copier"

	"github.com/ninjaportal/portal-mfa/pkg/mfa"
)

// ConsumerMfaConfig is the policy for the consumer context.
type ConsumerMfaConfig struct {
	Enabled          bool     `env:"PORTAL_MFA_CONSUMER_ENABLED" env-default:"true"`
	Required         bool     `env:"PORTAL_MFA_CONSUMER_REQUIRED" env-default:"false"`
	AllowUserDisable bool     `env:"PORTAL_MFA_CONSUMER_ALLOW_USER_DISABLE" env-default:"true"`
	AllowedDrivers   []string `env:"PORTAL_MFA_CONSUMER_ALLOWED_DRIVERS" env-default:"authenticator,email_otp" env-separator:","`
	DefaultDriver    string   `env:"PORTAL_MFA_CONSUMER_DEFAULT_DRIVER" env-default:"authenticator"`
}

// AdminMfaConfig is the policy for the admin context.
type AdminMfaConfig struct {
	Enabled          bool     `env:"PORTAL_MFA_ADMIN_ENABLED" env-default:"true"`
	Required         bool     `env:"PORTAL_MFA_ADMIN_REQUIRED" env-default:"false"`
	AllowUserDisable bool     `env:"PORTAL_MFA_ADMIN_ALLOW_USER_DISABLE" env-default:"true"`
	AllowedDrivers   []string `env:"PORTAL_MFA_ADMIN_ALLOWED_DRIVERS" env-default:"authenticator,email_otp" env-separator:","`
	DefaultDriver    string   `env:"PORTAL_MFA_ADMIN_DEFAULT_DRIVER" env-default:"authenticator"`
}

type AuthenticatorConfig struct {
	Issuer       string `env:"PORTAL_MFA_AUTHENTICATOR_ISSUER" env-default:"NinjaPortal"`
	Digits       int    `env:"PORTAL_MFA_AUTHENTICATOR_DIGITS" env-default:"6"`
	Period       int    `env:"PORTAL_MFA_AUTHENTICATOR_PERIOD" env-default:"30"`
	Window       int    `env:"PORTAL_MFA_AUTHENTICATOR_WINDOW" env-default:"1"`
	SecretLength int    `env:"PORTAL_MFA_AUTHENTICATOR_SECRET_LENGTH" env-default:"20"`
}

type EmailOtpConfig struct {
	Digits         int           `env:"PORTAL_MFA_EMAIL_OTP_DIGITS" env-default:"6"`
	TTL            time.Duration `env:"PORTAL_MFA_EMAIL_OTP_TTL" env-default:"300s"`
	ResendCooldown time.Duration `env:"PORTAL_MFA_EMAIL_OTP_RESEND_COOLDOWN" env-default:"30s"`
	MaxAttempts    int           `env:"PORTAL_MFA_EMAIL_OTP_MAX_ATTEMPTS" env-default:"5"`
	MaxResends     int           `env:"PORTAL_MFA_EMAIL_OTP_MAX_RESENDS" env-default:"3"`
}

type ChallengeConfig struct {
	TokenLength    int           `env:"PORTAL_MFA_CHALLENGE_TOKEN_LENGTH" env-default:"64"`
	LoginTTL       time.Duration `env:"PORTAL_MFA_CHALLENGE_LOGIN_TTL" env-default:"300s"`
	PruneAfterDays int           `env:"PORTAL_MFA_CHALLENGE_PRUNE_AFTER_DAYS" env-default:"7"`
}

// MfaConfig mirrors mfa.Config with env bindings.
type MfaConfig struct {
	Enabled       bool `env:"PORTAL_MFA_ENABLED" env-default:"true"`
	Consumer      ConsumerMfaConfig
	Admin         AdminMfaConfig
	Authenticator AuthenticatorConfig
	EmailOtp      EmailOtpConfig
	Challenge     ChallengeConfig
}

// ToMfaConfig converts the env-bound blocks into the core configuration.
func (m MfaConfig) ToMfaConfig() (mfa.Config, error) {
	cfg := mfa.Config{Enabled: m.Enabled}
	pairs := []struct {
		to, from interface{}
	}{
		{&cfg.Consumer, &m.Consumer},
		{&cfg.Admin, &m.Admin},
		{&cfg.Authenticator, &m.Authenticator},
		{&cfg.EmailOtp, &m.EmailOtp},
		{&cfg.Challenge, &m.Challenge},
	}
	for _, p := range pairs {
		if err := copier.CopyWithOption(p.to, p.from, copier.Option{DeepCopy: true}); err != nil {
			return mfa.Config{}, err
		}
	}
	return cfg, nil
}

var knownDrivers = []string{mfa.DriverAuthenticator, mfa.DriverEmailOtp}

// Validate checks ranges the MFA engine cannot recover from at runtime.
func (m MfaConfig) Validate() ValidationErrors {
	errs := CollectErrors(
		RequireSubset("consumer.allowed_drivers", m.Consumer.AllowedDrivers, knownDrivers),
		RequireSubset("admin.allowed_drivers", m.Admin.AllowedDrivers, knownDrivers),
		RequireNonEmpty("authenticator.issuer", m.Authenticator.Issuer),
		RequireInRange("authenticator.digits", m.Authenticator.Digits, 6, 10),
		RequireInRange("authenticator.period", m.Authenticator.Period, 15, 300),
		RequireInRange("authenticator.window", m.Authenticator.Window, 0, 10),
		RequireInRange("authenticator.secret_length", m.Authenticator.SecretLength, 10, 128),
		RequireInRange("email_otp.digits", m.EmailOtp.Digits, 4, 10),
		RequirePositiveDuration("email_otp.ttl", m.EmailOtp.TTL),
		RequireNonNegative("email_otp.max_resends", m.EmailOtp.MaxResends),
		RequireInRange("challenge.token_length", m.Challenge.TokenLength, 32, 255),
	)
	if m.Consumer.DefaultDriver != "" {
		if err := RequireOneOf("consumer.default_driver", m.Consumer.DefaultDriver, knownDrivers); err != nil {
			errs = append(errs, *err)
		}
	}
	if m.Admin.DefaultDriver != "" {
		if err := RequireOneOf("admin.default_driver", m.Admin.DefaultDriver, knownDrivers); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}
