package tokengenerator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token type constants
const (
	ACCESS_TOKEN_NAME  = "access_token"
	REFRESH_TOKEN_NAME = "refresh_token"
)

// TokenGenerator interface defines methods for token operations
type TokenGenerator interface {
	// GenerateToken generates a token with the given subject, expiry and extra claims
	GenerateToken(subject string, expiry time.Duration, claims ActorClaims) (string, time.Time, error)

	// ParseToken parses and validates a token
	ParseToken(tokenStr string) (*Claims, error)
}

// ActorClaims identify the authenticated actor.
type ActorClaims struct {
	ActorType string `json:"actor_type"`
	Context   string `json:"ctx"`
	Email     string `json:"email,omitempty"`
	TokenUse  string `json:"token_use"`
}

// Claims struct for JWT claims
type Claims struct {
	ActorClaims
	jwt.RegisteredClaims
}

// JwtTokenGenerator implements the TokenGenerator interface with HS256
type JwtTokenGenerator struct {
	Secret   string
	Issuer   string
	Audience string

	now func() time.Time
}

// NewJwtTokenGenerator creates a new JwtTokenGenerator
func NewJwtTokenGenerator(secret, issuer, audience string) *JwtTokenGenerator {
	return &JwtTokenGenerator{
		Secret:   secret,
		Issuer:   issuer,
		Audience: audience,
		now:      time.Now,
	}
}

// GenerateToken creates a new token with the given subject and claims
func (g *JwtTokenGenerator) GenerateToken(subject string, expiry time.Duration, actorClaims ActorClaims) (string, time.Time, error) {
	now := g.now().UTC()
	claims := Claims{
		ActorClaims: actorClaims,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-1 * time.Minute)),
			Issuer:    g.Issuer,
			Subject:   subject,
			ID:        uuid.New().String(),
			Audience:  jwt.ClaimStrings{g.Audience},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(g.Secret))
	if err != nil {
		slog.Error("Failed sign JWT Claim string!", "err", err)
		return "", time.Time{}, err
	}
	return ss, claims.ExpiresAt.Time, nil
}

// ParseToken parses and validates a token string
func (g *JwtTokenGenerator) ParseToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(g.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(g.Issuer),
		jwt.WithAudience(g.Audience),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		slog.Error("Failed parse JWT string!", "err", err)
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("failed_parse_token_claims")
	}
	return claims, nil
}
