package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mfaerrors "github.com/ninjaportal/portal-mfa/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func TestTokenBucket(t *testing.T) {
	clock := newClock()
	tb := newTokenBucket(5, 1.0, clock.Now)

	for i := 0; i < 5; i++ {
		assert.True(t, tb.Allow(), "request %d", i+1)
	}
	ok, wait := tb.Take()
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	clock.Advance(2 * time.Second)
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	clock.Advance(time.Hour)
	assert.Equal(t, 5.0, tb.Tokens())
}

func TestTokenBucketReset(t *testing.T) {
	tb := newTokenBucket(3, 1.0, newClock().Now)
	for i := 0; i < 3; i++ {
		tb.Allow()
	}
	assert.False(t, tb.Allow())

	tb.Reset()
	for i := 0; i < 3; i++ {
		assert.True(t, tb.Allow())
	}
}

func TestTokenBucketZeroRefill(t *testing.T) {
	tb := newTokenBucket(1, 0, newClock().Now)
	assert.True(t, tb.Allow())
	ok, wait := tb.Take()
	assert.False(t, ok)
	assert.Equal(t, time.Hour, wait)
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(2, 1.0, 0)
	rl.now = newClock().Now

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	rl.Reset("a")
	assert.True(t, rl.Allow("a"))

	rl.Remove("b")
	stats := rl.GetStats()
	assert.Equal(t, 1, stats.ActiveBuckets)
	assert.Equal(t, 2, stats.Capacity)
	assert.Equal(t, 1.0, stats.RefillRate)
}

func TestRateLimiterCleanup(t *testing.T) {
	clock := newClock()
	rl := &RateLimiter{
		buckets:    make(map[string]*TokenBucket),
		capacity:   5,
		refillRate: 1,
		ttl:        time.Minute,
		now:        clock.Now,
		stop:       make(chan struct{}),
	}

	rl.Allow("old")
	clock.Advance(50 * time.Second)
	rl.Allow("fresh")
	clock.Advance(20 * time.Second)

	assert.Equal(t, 1, rl.cleanup())
	assert.Equal(t, 1, rl.GetStats().ActiveBuckets)
}

func TestRateLimiterCloseIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, 1, time.Millisecond)
	rl.Close()
	rl.Close()
}

func TestRateLimiterConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(100, 0, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if rl.Allow("concurrent") {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, allowed)
	assert.Equal(t, 1, rl.GetStats().ActiveBuckets)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestMiddlewarePerIP(t *testing.T) {
	m := NewMiddleware(&Config{PerIPEnabled: true, PerIPCapacity: 2})
	defer m.Close()
	h := m.Handler(okHandler())

	send := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/mfa/challenge/verify", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, send("10.0.0.1:5000").Code)
	assert.Equal(t, http.StatusNoContent, send("10.0.0.1:5001").Code)

	rec := send("10.0.0.1:5002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3600", rec.Header().Get("Retry-After"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, float64(429), body["status"])

	assert.Equal(t, http.StatusNoContent, send("10.0.0.2:5000").Code)
}

func TestMiddlewareForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.10:443"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	assert.Equal(t, "192.168.1.10", clientIP(req, false))
	assert.Equal(t, "203.0.113.7", clientIP(req, true))

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", clientIP(req, true))
}

func TestMiddlewarePerActor(t *testing.T) {
	var limited *mfaerrors.Error
	m := NewMiddleware(&Config{
		PerActorEnabled:  true,
		PerActorCapacity: 1,
		OnLimited: func(w http.ResponseWriter, r *http.Request, err *mfaerrors.Error) {
			limited = err
			w.WriteHeader(err.HTTPStatusCode())
		},
	})
	defer m.Close()
	h := m.Handler(okHandler())

	auth := jwtauth.New("HS256", []byte("secret"), nil)
	send := func(claims map[string]interface{}) int {
		req := httptest.NewRequest(http.MethodGet, "/me/mfa", nil)
		if claims != nil {
			token, _, err := auth.Encode(claims)
			require.NoError(t, err)
			req = req.WithContext(jwtauth.NewContext(req.Context(), token, nil))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	consumer := map[string]interface{}{"sub": "7", "actor_type": "consumer"}
	admin := map[string]interface{}{"sub": "7", "actor_type": "admin"}

	assert.Equal(t, http.StatusNoContent, send(consumer))
	assert.Equal(t, http.StatusTooManyRequests, send(consumer))
	assert.True(t, mfaerrors.IsCode(limited, mfaerrors.ErrCodeRateLimited))

	assert.Equal(t, http.StatusNoContent, send(admin))
	// anonymous requests are not actor-limited
	assert.Equal(t, http.StatusNoContent, send(nil))
	assert.Equal(t, http.StatusNoContent, send(nil))

	stats := m.GetStats()
	assert.Equal(t, 2, stats["actor"].ActiveBuckets)
	_, hasIP := stats["ip"]
	assert.False(t, hasIP)

	m.Reset("consumer:7")
	assert.Equal(t, http.StatusNoContent, send(consumer))
}

func BenchmarkRateLimiterAllow(b *testing.B) {
	rl := NewRateLimiter(1000000, 1000000.0, 0)
	for i := 0; i < b.N; i++ {
		rl.Allow("bench")
	}
}
