package mfa

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ninjaportal/portal-mfa/pkg/tokenhash"
)

// Locker serialises work on a key across concurrent requests. The returned
// unlock func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), error)
}

func singleFlightKey(actor ActorRef, driver, purpose string) string {
	return "create:" + actor.String() + ":" + driver + ":" + purpose
}

func challengeKey(c *Challenge) string {
	return "challenge:" + c.ID.String()
}

// MemoryLocker is a keyed mutex for a single process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*memoryLock
}

type memoryLock struct {
	ch   chan struct{}
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*memoryLock)}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &memoryLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, lk)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lk.ch
			l.release(key, lk)
		})
	}, nil
}

func (l *MemoryLocker) release(key string, lk *memoryLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}

//go:embed lua/unlock.lua
var luaUnlock string

// ErrLockTimeout is returned when a RedisLocker cannot acquire a key in time.
var ErrLockTimeout = errors.New("timed out waiting for MFA lock")

// RedisLocker holds keys with SET NX PX so several service instances share
// one single-flight guard.
type RedisLocker struct {
	client    redis.Cmdable
	keyPrefix string
	ttl       time.Duration
	wait      time.Duration
	retry     time.Duration
}

type RedisLockerOption func(l *RedisLocker)

// RedisLockerTTL bounds how long a crashed holder can keep a key.
func RedisLockerTTL(ttl time.Duration) RedisLockerOption {
	return func(l *RedisLocker) { l.ttl = ttl }
}

// RedisLockerWait bounds how long Lock waits before ErrLockTimeout.
func RedisLockerWait(wait time.Duration) RedisLockerOption {
	return func(l *RedisLocker) { l.wait = wait }
}

func RedisLockerPrefix(prefix string) RedisLockerOption {
	return func(l *RedisLocker) { l.keyPrefix = prefix }
}

func NewRedisLocker(client redis.Cmdable, opts ...RedisLockerOption) *RedisLocker {
	l := &RedisLocker{
		client:    client,
		keyPrefix: "portal-mfa:lock:",
		ttl:       10 * time.Second,
		wait:      5 * time.Second,
		retry:     25 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	owner, err := tokenhash.MakeToken(32)
	if err != nil {
		return nil, err
	}
	redisKey := l.keyPrefix + key

	deadline := time.NewTimer(l.wait)
	defer deadline.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, owner, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire MFA lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrLockTimeout
		case <-time.After(l.retry):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := l.client.Eval(releaseCtx, luaUnlock, []string{redisKey}, owner).Err(); err != nil {
				slog.Warn("Failed to release MFA lock", "key", key, "err", err)
			}
		})
	}, nil
}
