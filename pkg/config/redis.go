package config

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ninjaportal/portal-mfa/pkg/mfa"
)

// RedisConfig enables the cross-instance challenge lock when URL is set.
type RedisConfig struct {
	URL       string        `env:"PORTAL_MFA_REDIS_URL" env-default:""`
	LockTTL   time.Duration `env:"PORTAL_MFA_REDIS_LOCK_TTL" env-default:"10s"`
	LockWait  time.Duration `env:"PORTAL_MFA_REDIS_LOCK_WAIT" env-default:"5s"`
	KeyPrefix string        `env:"PORTAL_MFA_REDIS_KEY_PREFIX" env-default:"portal-mfa:lock:"`
}

// NewLocker returns a RedisLocker and its client, or an in-process
// MemoryLocker and a nil client when no URL is configured.
func (r RedisConfig) NewLocker() (mfa.Locker, *redis.Client, error) {
	if r.URL == "" {
		return mfa.NewMemoryLocker(), nil, nil
	}
	opts, err := redis.ParseURL(r.URL)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	locker := mfa.NewRedisLocker(client,
		mfa.RedisLockerTTL(r.LockTTL),
		mfa.RedisLockerWait(r.LockWait),
		mfa.RedisLockerPrefix(r.KeyPrefix),
	)
	return locker, client, nil
}
