package mfa

import (
	"time"
)

// Clock returns the current time. Services take one so tests can move time.
type Clock func() time.Time

type options struct {
	config Config
	locker Locker
	events *Dispatcher
	clock  Clock
}

// Option configures the MFA services.
type Option func(*options)

func WithConfig(cfg Config) Option {
	return func(o *options) { o.config = cfg }
}

// WithLocker replaces the in-process single-flight locker, e.g. with a RedisLocker.
func WithLocker(l Locker) Option {
	return func(o *options) { o.locker = l }
}

func WithEvents(d *Dispatcher) Option {
	return func(o *options) { o.events = d }
}

func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

func buildOptions(opts []Option) options {
	o := options{
		config: DefaultConfig(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.locker == nil {
		o.locker = NewMemoryLocker()
	}
	return o
}

func (o options) now() time.Time {
	return o.clock().UTC()
}
