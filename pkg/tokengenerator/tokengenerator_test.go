package tokengenerator

import (
	"context"
	"testing"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninjaportal/portal-mfa/pkg/mfa"
)

func TestGenerateAndParse(t *testing.T) {
	g := NewJwtTokenGenerator("test-secret", "portal-mfa", "portal")

	token, expiresAt, err := g.GenerateToken("42", time.Hour, ActorClaims{ActorType: "admin", Context: "admin", TokenUse: ACCESS_TOKEN_NAME})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := g.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "admin", claims.ActorType)
	assert.Equal(t, ACCESS_TOKEN_NAME, claims.TokenUse)

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJwtTokenGenerator("other-secret", "portal-mfa", "portal")
		_, err := other.ParseToken(token)
		assert.Error(t, err)
	})

	t.Run("wrong audience", func(t *testing.T) {
		other := NewJwtTokenGenerator("test-secret", "portal-mfa", "elsewhere")
		_, err := other.ParseToken(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		later := NewJwtTokenGenerator("test-secret", "portal-mfa", "portal")
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.ParseToken(token)
		assert.Error(t, err)
	})
}

func TestJwtIssuer(t *testing.T) {
	g := NewJwtTokenGenerator("test-secret", "portal-mfa", "portal")
	issuer := NewJwtIssuer(g, WithAccessTokenExpiry(10*time.Minute))

	actor := mfa.Actor{Type: mfa.ContextConsumer, ID: "7", Email: "dev@example.com"}
	payload, err := issuer.IssueTokens(context.Background(), actor, " Consumer ")
	require.NoError(t, err)

	assert.Equal(t, "Bearer", payload["token_type"])
	assert.Equal(t, 600, payload["expires_in"])

	access, err := g.ParseToken(payload[ACCESS_TOKEN_NAME].(string))
	require.NoError(t, err)
	assert.Equal(t, "7", access.Subject)
	assert.Equal(t, mfa.ContextConsumer, access.Context)
	assert.Equal(t, ACCESS_TOKEN_NAME, access.TokenUse)

	refresh, err := g.ParseToken(payload[REFRESH_TOKEN_NAME].(string))
	require.NoError(t, err)
	assert.Equal(t, REFRESH_TOKEN_NAME, refresh.TokenUse)

	verified, err := jwtauth.VerifyToken(issuer.JWTAuth(), payload[ACCESS_TOKEN_NAME].(string))
	require.NoError(t, err)
	assert.Equal(t, "7", verified.Subject())
	use, _ := verified.Get("token_use")
	assert.Equal(t, ACCESS_TOKEN_NAME, use)
}
