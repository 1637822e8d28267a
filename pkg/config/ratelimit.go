package config

import (
	"time"

	"github.com/ninjaportal/portal-mfa/pkg/ratelimit"
)

// RateLimitConfig throttles the public challenge routes.
type RateLimitConfig struct {
	Enabled            bool          `env:"PORTAL_MFA_RATELIMIT_ENABLED" env-default:"true"`
	PerIPCapacity      int           `env:"PORTAL_MFA_RATELIMIT_PER_IP_CAPACITY" env-default:"30"`
	PerIPRefillRate    float64       `env:"PORTAL_MFA_RATELIMIT_PER_IP_REFILL_RATE" env-default:"0.5"`
	PerActorCapacity   int           `env:"PORTAL_MFA_RATELIMIT_PER_ACTOR_CAPACITY" env-default:"60"`
	PerActorRefillRate float64       `env:"PORTAL_MFA_RATELIMIT_PER_ACTOR_REFILL_RATE" env-default:"1"`
	BucketTTL          time.Duration `env:"PORTAL_MFA_RATELIMIT_BUCKET_TTL" env-default:"1h"`
	TrustForwardedFor  bool          `env:"PORTAL_MFA_RATELIMIT_TRUST_FORWARDED_FOR" env-default:"false"`
}

// ToRateLimitConfig returns nil when rate limiting is disabled.
func (c RateLimitConfig) ToRateLimitConfig() *ratelimit.Config {
	if !c.Enabled {
		return nil
	}
	return &ratelimit.Config{
		PerIPEnabled:       c.PerIPCapacity > 0,
		PerIPCapacity:      c.PerIPCapacity,
		PerIPRefillRate:    c.PerIPRefillRate,
		PerActorEnabled:    c.PerActorCapacity > 0,
		PerActorCapacity:   c.PerActorCapacity,
		PerActorRefillRate: c.PerActorRefillRate,
		BucketTTL:          c.BucketTTL,
		TrustForwardedFor:  c.TrustForwardedFor,
	}
}
