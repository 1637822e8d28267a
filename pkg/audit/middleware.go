// Package audit provides middleware for auditing authenticated HTTP requests
package audit

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
)

// Config holds the configuration for the audit middleware
type Config struct {
	// Source names the service in every event
	Source string
	// Sink receives the events, a LogSink on slog.Default when nil
	Sink Sink
	// Now is the clock used for timestamps and durations
	Now func() time.Time
}

// Event is one audited request.
type Event struct {
	Source    string
	Actor     string
	Context   string
	URI       string
	Method    string
	Status    int
	Duration  time.Duration
	Timestamp time.Time
	Message   string
}

// Sink stores audit events.
type Sink interface {
	Record(ctx context.Context, event Event)
}

// LogSink writes one structured log line per event.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Record(ctx context.Context, e Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "Audit",
		"source", e.Source,
		"actor", e.Actor,
		"context", e.Context,
		"method", e.Method,
		"uri", e.URI,
		"status", e.Status,
		"duration", e.Duration,
		"message", e.Message,
	)
}

// Middleware handles HTTP request auditing
type Middleware struct {
	config Config
}

// NewMiddleware creates a new audit middleware instance
func NewMiddleware(config Config) *Middleware {
	if config.Source == "" {
		config.Source = "portal-mfa"
	}
	if config.Sink == nil {
		config.Sink = LogSink{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Middleware{config: config}
}

// AuditAuthMiddleware records every request after it is served. It must run
// behind jwtauth.Verifier so the actor claims are available.
func (m *Middleware) AuditAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := m.config.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		event := Event{
			Source:    m.config.Source,
			URI:       r.URL.Path,
			Method:    r.Method,
			Status:    ww.Status(),
			Timestamp: start.UTC(),
			Duration:  m.config.Now().Sub(start),
		}
		if event.Status == 0 {
			event.Status = http.StatusOK
		}

		_, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || claims == nil {
			event.Message = "No jwt token"
		} else {
			actorType, _ := claims["actor_type"].(string)
			sub, _ := claims["sub"].(string)
			event.Actor = actorType + ":" + sub
			event.Context, _ = claims["ctx"].(string)
		}

		m.config.Sink.Record(r.Context(), event)
	})
}
