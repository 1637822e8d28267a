package config

import (
	"time"

	"github.com/ninjaportal/portal-mfa/pkg/tokengenerator"
)

// JwtConfig holds session token configuration
type JwtConfig struct {
	Secret             string        `env:"PORTAL_MFA_JWT_SECRET" env-default:"very-secure-jwt-secret"`
	Issuer             string        `env:"PORTAL_MFA_JWT_ISSUER" env-default:"ninjaportal"`
	Audience           string        `env:"PORTAL_MFA_JWT_AUDIENCE" env-default:"ninjaportal"`
	AccessTokenExpiry  time.Duration `env:"PORTAL_MFA_ACCESS_TOKEN_EXPIRY" env-default:"15m"`
	RefreshTokenExpiry time.Duration `env:"PORTAL_MFA_REFRESH_TOKEN_EXPIRY" env-default:"24h"`
}

// NewIssuer builds the session token issuer handed to the MFA services.
func (j JwtConfig) NewIssuer() *tokengenerator.JwtIssuer {
	gen := tokengenerator.NewJwtTokenGenerator(j.Secret, j.Issuer, j.Audience)
	return tokengenerator.NewJwtIssuer(gen,
		tokengenerator.WithAccessTokenExpiry(j.AccessTokenExpiry),
		tokengenerator.WithRefreshTokenExpiry(j.RefreshTokenExpiry),
	)
}
