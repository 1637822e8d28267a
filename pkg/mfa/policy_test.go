package mfa

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninjaportal/portal-mfa/pkg/utils"
)

func TestSelectFactor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Consumer.AllowedDrivers = []string{DriverEmailOtp, DriverAuthenticator}

	usable := func(driver string, primary bool) Factor {
		return Factor{Driver: driver, IsEnabled: true, IsVerified: true, IsPrimary: primary}
	}

	tests := []struct {
		name      string
		factors   []Factor
		preferred *string
		want      string
	}{
		{
			name:    "nothing eligible",
			factors: []Factor{{Driver: DriverAuthenticator, IsEnabled: true}},
			want:    "",
		},
		{
			name:      "primary wins over preference",
			factors:   []Factor{usable(DriverEmailOtp, false), usable(DriverAuthenticator, true)},
			preferred: utils.Ptr(DriverEmailOtp),
			want:      DriverAuthenticator,
		},
		{
			name:      "preferred driver",
			factors:   []Factor{usable(DriverEmailOtp, false), usable(DriverAuthenticator, false)},
			preferred: utils.Ptr(DriverAuthenticator),
			want:      DriverAuthenticator,
		},
		{
			name:    "allow-list order",
			factors: []Factor{usable(DriverAuthenticator, false), usable(DriverEmailOtp, false)},
			want:    DriverEmailOtp,
		},
		{
			name:      "preference without factor falls through",
			factors:   []Factor{usable(DriverAuthenticator, false)},
			preferred: utils.Ptr(DriverEmailOtp),
			want:      DriverAuthenticator,
		},
		{
			name:    "disallowed driver ignored",
			factors: []Factor{usable("sms", true), usable(DriverAuthenticator, false)},
			want:    DriverAuthenticator,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selectFactor(cfg, tt.factors, tt.preferred, ContextConsumer)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Driver)
		})
	}
}

func TestRequiresMfaAndShouldChallenge(t *testing.T) {
	t.Run("opt-in without factors", func(t *testing.T) {
		h := newHarness(t)
		profile, err := h.repo.FirstOrCreateProfile(ctx, alice.Ref(), h.clock.Now())
		require.NoError(t, err)
		profile.IsEnabled = true
		require.NoError(t, h.repo.SaveProfile(ctx, profile))

		requires, err := h.profiles.RequiresMfa(ctx, alice, ContextConsumer)
		require.NoError(t, err)
		should, err := h.profiles.ShouldChallengeOnLogin(ctx, alice, ContextConsumer)
		require.NoError(t, err)
		assert.True(t, requires)
		assert.False(t, should)
	})

	t.Run("factor without opt-in", func(t *testing.T) {
		h := newHarness(t)
		h.enrollAuthenticator(t, alice)

		requires, err := h.profiles.RequiresMfa(ctx, alice, ContextConsumer)
		require.NoError(t, err)
		should, err := h.profiles.ShouldChallengeOnLogin(ctx, alice, ContextConsumer)
		require.NoError(t, err)
		assert.False(t, requires)
		assert.False(t, should)
	})

	t.Run("required context", func(t *testing.T) {
		h := newHarness(t, func(c *Config) { c.Admin.Required = true })

		requires, err := h.profiles.RequiresMfa(ctx, root, ContextAdmin)
		require.NoError(t, err)
		assert.True(t, requires)

		requires, err = h.profiles.RequiresMfa(ctx, alice, ContextConsumer)
		require.NoError(t, err)
		assert.False(t, requires)

		h.enrollAuthenticator(t, root)
		should, err := h.profiles.ShouldChallengeOnLogin(ctx, root, ContextAdmin)
		require.NoError(t, err)
		assert.True(t, should)
	})

	t.Run("global switch off", func(t *testing.T) {
		h := newHarness(t, func(c *Config) { c.Admin.Required = true })
		h.enrollAuthenticator(t, root)

		cfg := h.cfg
		cfg.Enabled = false
		profiles := NewProfileService(h.repo, WithConfig(cfg), WithClock(h.clock.Now))

		requires, err := profiles.RequiresMfa(ctx, root, ContextAdmin)
		require.NoError(t, err)
		should, err := profiles.ShouldChallengeOnLogin(ctx, root, ContextAdmin)
		require.NoError(t, err)
		assert.False(t, requires)
		assert.False(t, should)
	})
}

func TestSettingsPayload(t *testing.T) {
	h := newHarness(t)
	h.enrollAuthenticator(t, alice)
	h.optIn(t, alice)

	payload, err := h.profiles.GetSettingsPayload(ctx, alice, "CONSUMER")
	require.NoError(t, err)

	assert.Equal(t, ContextConsumer, payload["context"])
	assert.Equal(t, Payload{"id": "1", "email": "alice@example.com"}, payload["actor"])
	assert.Equal(t, Payload{"is_enabled": true, "preferred_driver": nil, "effective_required": true}, payload["profile"])
	assert.Equal(t, []string{DriverAuthenticator, DriverEmailOtp}, payload["available_drivers"])
	assert.Equal(t, Payload{"should_challenge_on_login": true, "enabled_factor_count": 1}, payload["effective"])

	factors := payload["factors"].([]Payload)
	require.Len(t, factors, 1)
	assert.Equal(t, DriverAuthenticator, factors[0]["driver"])
	assert.Equal(t, "alice@example.com", factors[0]["label"])
	assert.Equal(t, true, factors[0]["is_primary"])
	assert.NotNil(t, factors[0]["verified_at"])
	assert.Nil(t, factors[0]["last_used_at"])
	assert.NotContains(t, factors[0], "secret_encrypted")
}

func TestUpdateSettings(t *testing.T) {
	yes, no := true, false

	t.Run("enable without factors", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.profiles.UpdateSettings(ctx, alice, ContextConsumer, SettingsUpdate{IsEnabled: &yes})
		requireMessage(t, err, "is_enabled", "Enable at least one MFA factor first.")
	})

	t.Run("disable while required", func(t *testing.T) {
		h := newHarness(t, func(c *Config) { c.Consumer.Required = true })
		_, err := h.profiles.UpdateSettings(ctx, alice, ContextConsumer, SettingsUpdate{IsEnabled: &no})
		requireMessage(t, err, "is_enabled", "MFA is required for this actor.")
	})

	t.Run("disable forbidden", func(t *testing.T) {
		h := newHarness(t, func(c *Config) { c.Consumer.AllowUserDisable = false })
		_, err := h.profiles.UpdateSettings(ctx, alice, ContextConsumer, SettingsUpdate{IsEnabled: &no})
		requireMessage(t, err, "is_enabled", "Disabling MFA is not allowed for this actor.")
	})

	t.Run("preferred driver not allowed", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.profiles.UpdateSettings(ctx, alice, ContextConsumer, SettingsUpdate{PreferredDriver: utils.Ptr("sms")})
		requireMessage(t, err, "preferred_driver", "Driver is not allowed for this actor.")
	})

	t.Run("preferred driver not enabled", func(t *testing.T) {
		h := newHarness(t)
		h.enrollAuthenticator(t, alice)
		_, err := h.profiles.UpdateSettings(ctx, alice, ContextConsumer, SettingsUpdate{PreferredDriver: utils.Ptr(DriverEmailOtp)})
		requireMessage(t, err, "preferred_driver", "Selected driver is not enabled for this account.")
	})

	t.Run("preferred driver becomes primary", func(t *testing.T) {
		h := newHarness(t)
		h.enrollAuthenticator(t, alice)
		h.enrollEmailOtp(t, alice)

		payload, err := h.profiles.UpdateSettings(ctx, alice, ContextConsumer, SettingsUpdate{PreferredDriver: utils.Ptr(" email_otp ")})
		require.NoError(t, err)
		assert.Equal(t, DriverEmailOtp, payload["profile"].(Payload)["preferred_driver"])

		email, err := h.repo.FindFactor(ctx, alice.Ref(), DriverEmailOtp)
		require.NoError(t, err)
		authenticator, err := h.repo.FindFactor(ctx, alice.Ref(), DriverAuthenticator)
		require.NoError(t, err)
		assert.True(t, email.IsPrimary)
		assert.False(t, authenticator.IsPrimary)

		factor, err := h.challenges.SelectLoginFactor(ctx, alice, ContextConsumer)
		require.NoError(t, err)
		assert.Equal(t, DriverEmailOtp, factor.Driver)
	})

	t.Run("empty preferred driver clears", func(t *testing.T) {
		h := newHarness(t)
		h.enrollAuthenticator(t, alice)
		_, err := h.profiles.UpdateSettings(ctx, alice, ContextConsumer, SettingsUpdate{PreferredDriver: utils.Ptr(DriverAuthenticator)})
		require.NoError(t, err)

		payload, err := h.profiles.UpdateSettings(ctx, alice, ContextConsumer, SettingsUpdate{PreferredDriver: utils.Ptr("")})
		require.NoError(t, err)
		assert.Nil(t, payload["profile"].(Payload)["preferred_driver"])
	})
}

func TestAuthenticatorEnrollment(t *testing.T) {
	t.Run("setup payload", func(t *testing.T) {
		h := newHarness(t)
		res, err := h.factors.BeginAuthenticatorEnrollment(ctx, alice, ContextConsumer, "  ")
		require.NoError(t, err)

		setup := res["setup"].(Payload)
		secret := setup["secret"].(string)
		assert.Len(t, secret, 32)
		assert.Equal(t, "NinjaPortal", setup["issuer"])
		assert.Equal(t, "alice@example.com", setup["account_label"])
		assert.Equal(t, 6, setup["digits"])
		assert.Equal(t, 30, setup["period"])
		assert.Equal(t,
			"otpauth://totp/NinjaPortal%3Aalice%40example.com?secret="+secret+"&issuer=NinjaPortal&digits=6&period=30",
			setup["otpauth_uri"])
		assert.Contains(t, setup, "qr_code")

		factor := res["factor"].(Payload)
		assert.Equal(t, "alice@example.com", factor["label"])
		assert.Equal(t, false, factor["is_enabled"])

		stored, err := h.repo.FindFactor(ctx, alice.Ref(), DriverAuthenticator)
		require.NoError(t, err)
		assert.NotContains(t, stored.SecretEncrypted, secret)
		assert.False(t, stored.Usable())
	})

	t.Run("label fallbacks", func(t *testing.T) {
		h := newHarness(t)
		anon := Actor{Type: ContextConsumer, ID: "77"}
		res, err := h.factors.BeginAuthenticatorEnrollment(ctx, anon, ContextConsumer, "")
		require.NoError(t, err)
		assert.Equal(t, "Authenticator App", res["factor"].(Payload)["label"])
		assert.Equal(t, "77", res["setup"].(Payload)["account_label"])

		res, err = h.factors.BeginAuthenticatorEnrollment(ctx, anon, ContextConsumer, "Work phone")
		require.NoError(t, err)
		assert.Equal(t, "Work phone", res["factor"].(Payload)["label"])

		res, err = h.factors.BeginAuthenticatorEnrollment(ctx, anon, ContextConsumer, "")
		require.NoError(t, err)
		assert.Equal(t, "Work phone", res["factor"].(Payload)["label"])
	})

	t.Run("confirm without setup", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.factors.ConfirmAuthenticatorEnrollment(ctx, alice, ContextConsumer, "123456")
		requireMessage(t, err, "driver", "Authenticator setup has not been started.")
	})

	t.Run("confirm with empty and wrong code", func(t *testing.T) {
		h := newHarness(t)
		res, err := h.factors.BeginAuthenticatorEnrollment(ctx, alice, ContextConsumer, "")
		require.NoError(t, err)
		secret := res["setup"].(Payload)["secret"].(string)

		_, err = h.factors.ConfirmAuthenticatorEnrollment(ctx, alice, ContextConsumer, " ")
		requireMessage(t, err, "code", "Verification code is required.")

		_, err = h.factors.ConfirmAuthenticatorEnrollment(ctx, alice, ContextConsumer, wrongCode(h.totpCode(t, secret)))
		requireMessage(t, err, "code", "Invalid authenticator code.")

		res, err = h.factors.ConfirmAuthenticatorEnrollment(ctx, alice, ContextConsumer, h.totpCode(t, secret))
		require.NoError(t, err)
		assert.Equal(t, true, res["factor"].(Payload)["is_primary"])
		assert.Contains(t, res, "settings")
		assert.Contains(t, h.events.names(), EventFactorEnabled)
	})

	t.Run("setup again resets the factor", func(t *testing.T) {
		h := newHarness(t)
		first := h.enrollAuthenticator(t, alice)

		res, err := h.factors.BeginAuthenticatorEnrollment(ctx, alice, ContextConsumer, "")
		require.NoError(t, err)
		factor := res["factor"].(Payload)
		assert.Equal(t, false, factor["is_enabled"])
		assert.Equal(t, false, factor["is_primary"])

		stored, err := h.repo.FindFactor(ctx, alice.Ref(), DriverAuthenticator)
		require.NoError(t, err)
		assert.False(t, stored.IsPrimary)
		assert.False(t, stored.Usable())

		_, err = h.challenges.CreateLoginChallenge(ctx, alice, ContextConsumer)
		assert.ErrorIs(t, err, ErrNoEligibleFactor)

		secret := res["setup"].(Payload)["secret"].(string)
		assert.NotEqual(t, first, secret)
		res, err = h.factors.ConfirmAuthenticatorEnrollment(ctx, alice, ContextConsumer, h.totpCode(t, secret))
		require.NoError(t, err)
		assert.Equal(t, true, res["factor"].(Payload)["is_primary"])
	})

	t.Run("driver not allowed", func(t *testing.T) {
		h := newHarness(t, func(c *Config) { c.Consumer.AllowedDrivers = []string{DriverEmailOtp} })
		_, err := h.factors.BeginAuthenticatorEnrollment(ctx, alice, ContextConsumer, "")
		requireMessage(t, err, "driver", "Driver is not allowed for this actor.")
	})
}

func TestEmailOtpEnrollment(t *testing.T) {
	t.Run("enables factor", func(t *testing.T) {
		h := newHarness(t)
		res, err := h.factors.BeginEmailOtpEnrollment(ctx, alice, ContextConsumer)
		require.NoError(t, err)
		assert.Equal(t, DriverEmailOtp, res["driver"])

		challenge := res["challenge"].(Payload)
		assert.Equal(t, PurposeFactorEmailEnrollment, challenge["challenge_type"])
		assert.Equal(t, PurposeFactorEmailEnrollment, h.sender.last(t).purpose)

		confirmed, err := h.factors.ConfirmEmailOtpEnrollment(ctx, alice, ContextConsumer, challenge["challenge_token"].(string), h.sender.last(t).code)
		require.NoError(t, err)
		factor := confirmed["factor"].(Payload)
		assert.Equal(t, "alice@example.com", factor["label"])
		assert.Equal(t, true, factor["is_enabled"])
		assert.Equal(t, true, factor["is_verified"])
		assert.Equal(t, true, factor["is_primary"])
	})

	t.Run("challenge of another actor", func(t *testing.T) {
		h := newHarness(t)
		res, err := h.factors.BeginEmailOtpEnrollment(ctx, alice, ContextConsumer)
		require.NoError(t, err)
		token := res["challenge"].(Payload)["challenge_token"].(string)

		_, err = h.factors.ConfirmEmailOtpEnrollment(ctx, bob, ContextConsumer, token, h.sender.last(t).code)
		requireMessage(t, err, "challenge_token", "Challenge does not belong to the authenticated user.")

		factor, err := h.repo.FindFactor(ctx, alice.Ref(), DriverEmailOtp)
		require.NoError(t, err)
		assert.False(t, factor.Usable())
	})

	t.Run("second factor keeps existing primary", func(t *testing.T) {
		h := newHarness(t)
		h.enrollAuthenticator(t, alice)
		h.enrollEmailOtp(t, alice)

		email, err := h.repo.FindFactor(ctx, alice.Ref(), DriverEmailOtp)
		require.NoError(t, err)
		assert.True(t, email.Usable())
		assert.False(t, email.IsPrimary)
	})
}

func TestDisableFactor(t *testing.T) {
	t.Run("last factor while required", func(t *testing.T) {
		h := newHarness(t, func(c *Config) { c.Consumer.Required = true })
		h.enrollAuthenticator(t, alice)

		err := h.factors.DisableFactor(ctx, alice, ContextConsumer, DriverAuthenticator)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrLastRequiredFactor))
		requireMessage(t, err, "driver", "Cannot disable the last enabled MFA factor while MFA is required.")
	})

	t.Run("second of two while required", func(t *testing.T) {
		h := newHarness(t, func(c *Config) { c.Consumer.Required = true })
		h.enrollAuthenticator(t, alice)
		h.enrollEmailOtp(t, alice)

		require.NoError(t, h.factors.DisableFactor(ctx, alice, ContextConsumer, DriverAuthenticator))

		factor, err := h.repo.FindFactor(ctx, alice.Ref(), DriverAuthenticator)
		require.NoError(t, err)
		require.NotNil(t, factor, "disabled factors are kept")
		assert.False(t, factor.IsEnabled)
		assert.False(t, factor.IsPrimary)
		assert.Contains(t, h.events.names(), EventFactorDisabled)

		err = h.factors.DisableFactor(ctx, alice, ContextConsumer, DriverEmailOtp)
		assert.True(t, errors.Is(err, ErrLastRequiredFactor))
	})

	t.Run("not required", func(t *testing.T) {
		h := newHarness(t)
		h.enrollAuthenticator(t, alice)
		assert.NoError(t, h.factors.DisableFactor(ctx, alice, ContextConsumer, DriverAuthenticator))
	})

	t.Run("missing factor is a no-op", func(t *testing.T) {
		h := newHarness(t)
		assert.NoError(t, h.factors.DisableFactor(ctx, alice, ContextConsumer, DriverEmailOtp))
	})

	t.Run("driver not allowed", func(t *testing.T) {
		h := newHarness(t)
		err := h.factors.DisableFactor(ctx, alice, ContextConsumer, "sms")
		requireMessage(t, err, "driver", "Driver is not allowed for this actor.")
	})
}
