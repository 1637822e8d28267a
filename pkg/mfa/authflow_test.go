package mfa

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptLogin(t *testing.T) {
	t.Run("unknown email", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.flow.AttemptLogin(ctx, "nobody@example.com", "secret-password", ContextConsumer)
		requireMessage(t, err, "email", "Invalid credentials.")
		assert.Equal(t, []string{EventLoginFailed}, h.events.names())
	})

	t.Run("wrong password", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.flow.AttemptLogin(ctx, "alice@example.com", "guess", ContextConsumer)
		requireMessage(t, err, "email", "Invalid credentials.")
		assert.Empty(t, h.issuer.issued)
	})

	t.Run("wrong context", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.flow.AttemptLogin(ctx, "alice@example.com", "secret-password", ContextAdmin)
		requireMessage(t, err, "email", "Invalid credentials.")
	})

	t.Run("no mfa issues tokens", func(t *testing.T) {
		h := newHarness(t)
		res, err := h.flow.AttemptLogin(ctx, " Alice@Example.com ", "secret-password", ContextConsumer)
		require.NoError(t, err)
		assert.False(t, res.ChallengeRequired)
		assert.Equal(t, "access-1", res.Payload["access_token"])
		assert.Equal(t, []string{EventLoginSucceeded}, h.events.names())
	})

	t.Run("factor without opt-in issues tokens", func(t *testing.T) {
		h := newHarness(t)
		h.enrollAuthenticator(t, alice)
		res, err := h.flow.AttemptLogin(ctx, "alice@example.com", "secret-password", ContextConsumer)
		require.NoError(t, err)
		assert.False(t, res.ChallengeRequired)
	})

	t.Run("required without factor", func(t *testing.T) {
		h := newHarness(t, func(c *Config) { c.Admin.Required = true })
		_, err := h.flow.AttemptLogin(ctx, "root@example.com", "secret-password", ContextAdmin)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoEligibleFactor))
		requireMessage(t, err, "mfa", "MFA is required for this account but no eligible factor is configured.")
		assert.Empty(t, h.issuer.issued)
		assert.Contains(t, h.events.names(), EventLoginFailed)
	})

	t.Run("opted in returns challenge", func(t *testing.T) {
		h := newHarness(t)
		secret := h.enrollAuthenticator(t, alice)
		h.optIn(t, alice)

		res, err := h.flow.AttemptLogin(ctx, "alice@example.com", "secret-password", ContextConsumer)
		require.NoError(t, err)
		require.True(t, res.ChallengeRequired)
		assert.Equal(t, true, res.Payload["mfa_required"])
		assert.Equal(t, PurposeLogin, res.Payload["challenge_type"])
		assert.Equal(t, DriverAuthenticator, res.Payload["driver"])
		assert.NotContains(t, res.Payload, "access_token")
		assert.Empty(t, h.issuer.issued)

		tokens, err := h.challenges.VerifyLoginChallenge(ctx, ContextConsumer, res.Payload["challenge_token"].(string), h.totpCode(t, secret))
		require.NoError(t, err)
		assert.Equal(t, "access-1", tokens["access_token"])
	})
}
