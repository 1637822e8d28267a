package ratelimit

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"

	mfaerrors "github.com/ninjaportal/portal-mfa/pkg/errors"
)

// ErrTooManyRequests is passed to Config.OnLimited when a request is rejected.
var ErrTooManyRequests = mfaerrors.New(mfaerrors.ErrCodeRateLimited, "Too many requests. Please try again later.")

// Config holds rate limiting configuration
type Config struct {
	// Per-IP limiting, applied to every request.
	PerIPEnabled    bool
	PerIPCapacity   int
	PerIPRefillRate float64

	// Per-actor limiting for requests carrying a verified JWT.
	PerActorEnabled    bool
	PerActorCapacity   int
	PerActorRefillRate float64

	// Bucket TTL (how long to keep inactive buckets in memory)
	BucketTTL time.Duration

	// Use the first X-Forwarded-For / X-Real-IP address as the client IP.
	TrustForwardedFor bool

	// OnLimited writes the rejection. Defaults to a JSON body with status 429.
	OnLimited func(w http.ResponseWriter, r *http.Request, err *mfaerrors.Error)
}

// DefaultConfig limits verification endpoints to 30 requests a minute per
// IP and 60 per authenticated actor.
func DefaultConfig() *Config {
	return &Config{
		PerIPEnabled:       true,
		PerIPCapacity:      30,
		PerIPRefillRate:    30.0 / 60.0,
		PerActorEnabled:    true,
		PerActorCapacity:   60,
		PerActorRefillRate: 60.0 / 60.0,
		BucketTTL:          time.Hour,
	}
}

// Middleware holds the rate limiting middleware state
type Middleware struct {
	config       *Config
	ipLimiter    *RateLimiter
	actorLimiter *RateLimiter
}

// NewMiddleware creates a new rate limiting middleware
func NewMiddleware(config *Config) *Middleware {
	if config == nil {
		config = DefaultConfig()
	}

	m := &Middleware{config: config}
	if config.PerIPEnabled {
		m.ipLimiter = NewRateLimiter(config.PerIPCapacity, config.PerIPRefillRate, config.BucketTTL)
	}
	if config.PerActorEnabled {
		m.actorLimiter = NewRateLimiter(config.PerActorCapacity, config.PerActorRefillRate, config.BucketTTL)
	}
	return m
}

// Handler returns the rate limiting middleware handler
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r, m.config.TrustForwardedFor)
		if m.ipLimiter != nil && ip != "" {
			if ok, wait := m.ipLimiter.Take(ip); !ok {
				m.reject(w, r, "ip", wait)
				return
			}
		}

		if actor := actorKey(r); m.actorLimiter != nil && actor != "" {
			if ok, wait := m.actorLimiter.Take(actor); !ok {
				m.reject(w, r, "actor", wait)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, limitType string, wait time.Duration) {
	slog.Warn("Rate limit exceeded",
		"type", limitType,
		"path", r.URL.Path,
		"method", r.Method,
	)

	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))

	if m.config.OnLimited != nil {
		m.config.OnLimited(w, r, ErrTooManyRequests)
		return
	}
	render.Status(r, http.StatusTooManyRequests)
	render.JSON(w, r, map[string]interface{}{
		"success": false,
		"status":  http.StatusTooManyRequests,
		"message": ErrTooManyRequests.Message,
	})
}

// Close stops the cleanup goroutines of the underlying limiters.
func (m *Middleware) Close() {
	if m.ipLimiter != nil {
		m.ipLimiter.Close()
	}
	if m.actorLimiter != nil {
		m.actorLimiter.Close()
	}
}

// clientIP extracts the client IP address from the request
func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// actorKey returns "<actor_type>:<sub>" from verified JWT claims, or "".
func actorKey(r *http.Request) string {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil || claims == nil {
		return ""
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return ""
	}
	actorType, _ := claims["actor_type"].(string)
	return actorType + ":" + sub
}

// GetStats returns statistics about all rate limiters
func (m *Middleware) GetStats() map[string]Stats {
	stats := make(map[string]Stats)
	if m.ipLimiter != nil {
		stats["ip"] = m.ipLimiter.GetStats()
	}
	if m.actorLimiter != nil {
		stats["actor"] = m.actorLimiter.GetStats()
	}
	return stats
}

// Reset resets rate limits for a specific IP or actor key
func (m *Middleware) Reset(key string) {
	if m.ipLimiter != nil {
		m.ipLimiter.Reset(key)
	}
	if m.actorLimiter != nil {
		m.actorLimiter.Reset(key)
	}
}
