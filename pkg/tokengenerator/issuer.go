package tokengenerator

import (
	"context"
	"time"

	"github.com/go-chi/jwtauth/v5"

	"github.com/ninjaportal/portal-mfa/pkg/mfa"
)

// JwtIssuer issues the session tokens returned after a successful login.
type JwtIssuer struct {
	generator     *JwtTokenGenerator
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

var _ mfa.TokenIssuer = (*JwtIssuer)(nil)

type IssuerOption func(*JwtIssuer)

func WithAccessTokenExpiry(d time.Duration) IssuerOption {
	return func(i *JwtIssuer) { i.accessExpiry = d }
}

func WithRefreshTokenExpiry(d time.Duration) IssuerOption {
	return func(i *JwtIssuer) { i.refreshExpiry = d }
}

func NewJwtIssuer(generator *JwtTokenGenerator, opts ...IssuerOption) *JwtIssuer {
	i := &JwtIssuer{
		generator:     generator,
		accessExpiry:  15 * time.Minute,
		refreshExpiry: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *JwtIssuer) IssueTokens(ctx context.Context, actor mfa.Actor, context string) (mfa.Payload, error) {
	claims := ActorClaims{
		ActorType: actor.Type,
		Context:   mfa.NormalizeContext(context),
		Email:     actor.Email,
		TokenUse:  ACCESS_TOKEN_NAME,
	}
	access, accessExpiresAt, err := i.generator.GenerateToken(actor.ID, i.accessExpiry, claims)
	if err != nil {
		return nil, err
	}
	claims.TokenUse = REFRESH_TOKEN_NAME
	refresh, _, err := i.generator.GenerateToken(actor.ID, i.refreshExpiry, claims)
	if err != nil {
		return nil, err
	}

	return mfa.Payload{
		"token_type":       "Bearer",
		ACCESS_TOKEN_NAME:  access,
		REFRESH_TOKEN_NAME: refresh,
		"expires_in":       int(i.accessExpiry.Seconds()),
		"expires_at":       accessExpiresAt.UTC().Format(time.RFC3339),
		"actor":            mfa.Payload{"type": actor.Type, "id": actor.ID, "email": actor.Email},
	}, nil
}

// JWTAuth returns a jwtauth verifier for the tokens this issuer signs.
func (i *JwtIssuer) JWTAuth() *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(i.generator.Secret), nil)
}
