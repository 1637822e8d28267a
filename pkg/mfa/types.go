package mfa

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Actor contexts.
const (
	ContextConsumer = "consumer"
	ContextAdmin    = "admin"
)

// Challenge purposes.
const (
	PurposeLogin                         = "login"
	PurposeFactorEmailEnrollment         = "factor_email_enrollment"
	PurposeFactorAuthenticatorEnrollment = "factor_authenticator_enrollment"
)

// Driver keys.
const (
	DriverAuthenticator = "authenticator"
	DriverEmailOtp      = "email_otp"
)

// NormalizeContext maps any value other than "admin" to the consumer context.
func NormalizeContext(context string) string {
	if strings.ToLower(strings.TrimSpace(context)) == ContextAdmin {
		return ContextAdmin
	}
	return ContextConsumer
}

// Payload is a JSON object returned to clients.
type Payload map[string]interface{}

// internalPlainCodeKey never leaves the engine; drivers may use it to hand
// a code to tests or to in-process collaborators.
const internalPlainCodeKey = "_internal_plain_code"

func sanitizePayload(p Payload) Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		if k == internalPlainCodeKey {
			continue
		}
		out[k] = v
	}
	return out
}

// Actor is an account resolved by the ActorDirectory.
type Actor struct {
	Type  string `json:"type"` // account kind, normally the context it logs into
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Ref returns the key profiles, factors and challenges are scoped by.
func (a Actor) Ref() ActorRef {
	return ActorRef{Type: a.Type, ID: a.ID}
}

// ActorRef identifies an actor without its attributes.
type ActorRef struct {
	Type string `json:"actor_type"`
	ID   string `json:"actor_id"`
}

func (r ActorRef) String() string {
	return r.Type + ":" + r.ID
}

// Profile holds an actor's opt-in flag and preferred driver.
type Profile struct {
	ID              uuid.UUID              `json:"id"`
	Actor           ActorRef               `json:"actor"`
	IsEnabled       bool                   `json:"is_enabled"`
	PreferredDriver *string                `json:"preferred_driver"`
	Settings        map[string]interface{} `json:"settings,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// FactorConfig is the driver-specific configuration captured at enrollment.
type FactorConfig struct {
	Issuer  string `json:"issuer,omitempty"`
	Digits  int    `json:"digits,omitempty"`
	Period  int    `json:"period,omitempty"`
	Context string `json:"context,omitempty"`
}

// Factor is one enrolled verification method. At most one exists per
// (actor, driver).
type Factor struct {
	ID              uuid.UUID    `json:"id"`
	Actor           ActorRef     `json:"actor"`
	Driver          string       `json:"driver"`
	Label           string       `json:"label"`
	SecretEncrypted string       `json:"secret_encrypted,omitempty"`
	IsEnabled       bool         `json:"is_enabled"`
	IsVerified      bool         `json:"is_verified"`
	IsPrimary       bool         `json:"is_primary"`
	Config          FactorConfig `json:"config"`
	// LastCounter is the last TOTP time step accepted for this factor.
	LastCounter *int64     `json:"last_counter,omitempty"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Usable reports whether the factor may back a challenge.
func (f *Factor) Usable() bool {
	return f.IsEnabled && f.IsVerified
}

// Challenge is one time-boxed verification round.
type Challenge struct {
	ID            uuid.UUID              `json:"id"`
	TokenHash     string                 `json:"token_hash"`
	Context       string                 `json:"context"`
	Purpose       string                 `json:"purpose"`
	Actor         ActorRef               `json:"actor"`
	FactorID      uuid.UUID              `json:"factor_id"`
	Driver        string                 `json:"driver"`
	CodeHash      string                 `json:"code_hash,omitempty"`
	Attempts      int                    `json:"attempts"`
	MaxAttempts   int                    `json:"max_attempts"`
	ResendCount   int                    `json:"resend_count"`
	MaxResends    int                    `json:"max_resends"`
	LastSentAt    *time.Time             `json:"last_sent_at,omitempty"`
	ExpiresAt     time.Time              `json:"expires_at"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	InvalidatedAt *time.Time             `json:"invalidated_at,omitempty"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	Meta          map[string]interface{} `json:"meta,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// IsPending reports whether the challenge can still be verified or resent.
func (c *Challenge) IsPending(now time.Time) bool {
	return c.CompletedAt == nil && c.InvalidatedAt == nil && now.Before(c.ExpiresAt)
}

// State names the lifecycle state at now.
func (c *Challenge) State(now time.Time) string {
	switch {
	case c.CompletedAt != nil:
		return "verified"
	case c.InvalidatedAt != nil && c.MaxAttempts > 0 && c.Attempts >= c.MaxAttempts:
		return "exhausted"
	case c.InvalidatedAt != nil:
		return "invalidated"
	case !now.Before(c.ExpiresAt):
		return "expired"
	default:
		return "pending"
	}
}
