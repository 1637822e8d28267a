package mfa

import (
	"context"
	"sort"
	"sync"
)

// DriverRequest carries the records a driver works on. Drivers mutate
// Challenge and Factor in place; the caller persists them.
type DriverRequest struct {
	Challenge *Challenge
	Factor    *Factor
	Actor     Actor
	Context   string
}

// Driver is one verification mechanism. Implementations hold no per-request
// state and are shared across requests.
type Driver interface {
	Key() string
	SupportsResend() bool
	PrepareChallenge(ctx context.Context, req DriverRequest) (Payload, error)
	VerifyChallenge(ctx context.Context, req DriverRequest, code string) (bool, error)
	// ResendChallenge fails with ErrUnsupportedOperation when SupportsResend is false.
	ResendChallenge(ctx context.Context, req DriverRequest) (Payload, error)
}

// EnrollmentInput is the client input for enrollment steps.
type EnrollmentInput struct {
	Label string
	Code  string
}

// Enroller is implemented by drivers that own a setup flow outside of
// challenges, such as the authenticator app.
type Enroller interface {
	BeginEnrollment(ctx context.Context, actor Actor, context string, factor *Factor, input EnrollmentInput) (Payload, error)
	ConfirmEnrollment(ctx context.Context, actor Actor, context string, factor *Factor, input EnrollmentInput) error
}

// Registry maps driver keys to implementations. Build it once at startup.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

func NewRegistry(drivers ...Driver) *Registry {
	r := &Registry{drivers: make(map[string]Driver, len(drivers))}
	for _, d := range drivers {
		r.Register(d)
	}
	return r
}

func (r *Registry) Register(d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.Key()] = d
}

// Driver returns the driver for key or ErrDriverNotConfigured.
func (r *Registry) Driver(key string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[key]
	if !ok {
		return nil, ErrDriverNotConfigured.WithDetail("driver", key)
	}
	return d, nil
}

func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.drivers))
	for k := range r.drivers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
