// Package metrics exports MFA events as Prometheus counters.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ninjaportal/portal-mfa/pkg/mfa"
)

// Listener is an mfa.Listener that counts events.
type Listener struct {
	registry *prometheus.Registry

	challengesCreated  *prometheus.CounterVec
	challengesVerified *prometheus.CounterVec
	challengeFailures  *prometheus.CounterVec
	otpSent            *prometheus.CounterVec
	factorChanges      *prometheus.CounterVec
	logins             *prometheus.CounterVec
}

var _ mfa.Listener = (*Listener)(nil)

// NewListener registers the MFA counters, plus the Go and process
// collectors, on a fresh registry under namespace.
func NewListener(namespace string) *Listener {
	if namespace == "" {
		namespace = "portal_mfa"
	}
	l := &Listener{
		registry: prometheus.NewRegistry(),
		challengesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenges_created_total",
			Help:      "MFA challenges created.",
		}, []string{"context", "driver", "purpose"}),
		challengesVerified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenges_verified_total",
			Help:      "MFA challenges verified.",
		}, []string{"context", "driver", "purpose"}),
		challengeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenge_failures_total",
			Help:      "Failed MFA verification attempts.",
		}, []string{"context", "driver", "reason", "exhausted"}),
		otpSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_sent_total",
			Help:      "One-time codes delivered.",
		}, []string{"context", "purpose", "resend"}),
		factorChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "factor_changes_total",
			Help:      "Factors enabled or disabled.",
		}, []string{"context", "driver", "action"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Password login attempts by result.",
		}, []string{"context", "result", "reason"}),
	}

	l.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		l.challengesCreated,
		l.challengesVerified,
		l.challengeFailures,
		l.otpSent,
		l.factorChanges,
		l.logins,
	)
	return l
}

func (l *Listener) HandleEvent(ctx context.Context, event mfa.Event) {
	switch e := event.(type) {
	case mfa.ChallengeCreatedEvent:
		l.challengesCreated.WithLabelValues(e.Context, e.Driver, e.Purpose).Inc()
	case mfa.ChallengeVerifiedEvent:
		l.challengesVerified.WithLabelValues(e.Context, e.Driver, e.Purpose).Inc()
	case mfa.ChallengeFailedEvent:
		l.challengeFailures.WithLabelValues(e.Context, e.Driver, e.Reason, strconv.FormatBool(e.Exhausted)).Inc()
	case mfa.OtpSentEvent:
		l.otpSent.WithLabelValues(e.Context, e.Purpose, strconv.FormatBool(e.Resend)).Inc()
	case mfa.FactorEnabledEvent:
		l.factorChanges.WithLabelValues(e.Context, e.Factor.Driver, "enabled").Inc()
	case mfa.FactorDisabledEvent:
		l.factorChanges.WithLabelValues(e.Context, e.Factor.Driver, "disabled").Inc()
	case mfa.LoginSucceededEvent:
		l.logins.WithLabelValues(e.Context, "succeeded", "").Inc()
	case mfa.LoginFailedEvent:
		l.logins.WithLabelValues(e.Context, "failed", e.Reason).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (l *Listener) Handler() http.Handler {
	return promhttp.HandlerFor(l.registry, promhttp.HandlerOpts{Registry: l.registry})
}
