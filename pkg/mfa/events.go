package mfa

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Event names.
const (
	EventChallengeCreated  = "mfa.challenge.created"
	EventChallengeFailed   = "mfa.challenge.failed"
	EventChallengeVerified = "mfa.challenge.verified"
	EventOtpSent           = "mfa.otp.sent"
	EventFactorEnabled     = "mfa.factor.enabled"
	EventFactorDisabled    = "mfa.factor.disabled"
	EventLoginSucceeded    = "auth.login.succeeded"
	EventLoginFailed       = "auth.login.failed"
)

// Event is something listeners can observe. Events never carry tokens,
// codes or secrets.
type Event interface {
	EventName() string
}

type ChallengeCreatedEvent struct {
	Context     string
	Purpose     string
	Actor       Actor
	ChallengeID uuid.UUID
	Driver      string
}

type ChallengeFailedEvent struct {
	Context     string
	Purpose     string
	Actor       Actor
	ChallengeID uuid.UUID
	Driver      string
	Reason      string
	Attempts    int
	Exhausted   bool
}

type ChallengeVerifiedEvent struct {
	Context     string
	Purpose     string
	Actor       Actor
	ChallengeID uuid.UUID
	Driver      string
}

type OtpSentEvent struct {
	Context     string
	Purpose     string
	Actor       Actor
	ChallengeID uuid.UUID
	Driver      string
	Resend      bool
}

type FactorEnabledEvent struct {
	Context string
	Actor   Actor
	Factor  Factor
}

type FactorDisabledEvent struct {
	Context string
	Actor   Actor
	Factor  Factor
}

type LoginSucceededEvent struct {
	Context string
	Email   string
	Actor   Actor
}

type LoginFailedEvent struct {
	Context string
	Email   string
	Reason  string
}

func (ChallengeCreatedEvent) EventName() string  { return EventChallengeCreated }
func (ChallengeFailedEvent) EventName() string   { return EventChallengeFailed }
func (ChallengeVerifiedEvent) EventName() string { return EventChallengeVerified }
func (OtpSentEvent) EventName() string           { return EventOtpSent }
func (FactorEnabledEvent) EventName() string     { return EventFactorEnabled }
func (FactorDisabledEvent) EventName() string    { return EventFactorDisabled }
func (LoginSucceededEvent) EventName() string    { return EventLoginSucceeded }
func (LoginFailedEvent) EventName() string       { return EventLoginFailed }

// Listener receives dispatched events synchronously.
type Listener interface {
	HandleEvent(ctx context.Context, event Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, event Event)

func (f ListenerFunc) HandleEvent(ctx context.Context, event Event) {
	f(ctx, event)
}

// Dispatcher fans events out to its listeners. A nil *Dispatcher drops events.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewDispatcher(listeners ...Listener) *Dispatcher {
	return &Dispatcher{listeners: listeners}
}

func (d *Dispatcher) Subscribe(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	d.mu.RLock()
	listeners := d.listeners
	d.mu.RUnlock()
	for _, l := range listeners {
		l.HandleEvent(ctx, event)
	}
}

// LogListener writes an audit line per event.
type LogListener struct {
	Logger *slog.Logger
}

func (l LogListener) HandleEvent(ctx context.Context, event Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch e := event.(type) {
	case ChallengeCreatedEvent:
		logger.InfoContext(ctx, "MFA challenge created", "challengeId", e.ChallengeID, "actor", e.Actor.Ref().String(), "driver", e.Driver, "purpose", e.Purpose, "context", e.Context)
	case ChallengeFailedEvent:
		logger.WarnContext(ctx, "MFA challenge failed", "challengeId", e.ChallengeID, "actor", e.Actor.Ref().String(), "reason", e.Reason, "attempts", e.Attempts, "exhausted", e.Exhausted)
	case ChallengeVerifiedEvent:
		logger.InfoContext(ctx, "MFA challenge verified", "challengeId", e.ChallengeID, "actor", e.Actor.Ref().String(), "driver", e.Driver, "purpose", e.Purpose)
	case OtpSentEvent:
		logger.InfoContext(ctx, "MFA code sent", "challengeId", e.ChallengeID, "actor", e.Actor.Ref().String(), "resend", e.Resend)
	case FactorEnabledEvent:
		logger.InfoContext(ctx, "MFA factor enabled", "factorId", e.Factor.ID, "actor", e.Actor.Ref().String(), "driver", e.Factor.Driver)
	case FactorDisabledEvent:
		logger.InfoContext(ctx, "MFA factor disabled", "factorId", e.Factor.ID, "actor", e.Actor.Ref().String(), "driver", e.Factor.Driver)
	case LoginSucceededEvent:
		logger.InfoContext(ctx, "Login succeeded", "actor", e.Actor.Ref().String(), "context", e.Context)
	case LoginFailedEvent:
		logger.WarnContext(ctx, "Login failed", "context", e.Context, "reason", e.Reason)
	default:
		logger.DebugContext(ctx, "MFA event", "name", event.EventName())
	}
}
