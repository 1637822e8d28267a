package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"

	"github.com/ninjaportal/portal-mfa/pkg/mfa"
	"github.com/ninjaportal/portal-mfa/pkg/ratelimit"
)

// Routes builds the consumer endpoints at the root and the admin endpoints
// under /admin. limiter may be nil. authed runs on the authenticated routes
// once the actor is resolved.
func Routes(h *Handle, tokenAuth *jwtauth.JWTAuth, limiter *ratelimit.Middleware, authed ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	mount(r, h, tokenAuth, limiter, authed, mfa.ContextConsumer)
	r.Route("/admin", func(r chi.Router) {
		mount(r, h, tokenAuth, limiter, authed, mfa.ContextAdmin)
	})
	return r
}

func mount(r chi.Router, h *Handle, tokenAuth *jwtauth.JWTAuth, limiter *ratelimit.Middleware, authed []func(http.Handler) http.Handler, actorContext string) {
	// public, completes a password login
	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Handler)
		}
		if h.authFlow != nil {
			r.Post("/auth/login", h.Login(actorContext))
		}
		r.Post("/auth/mfa/challenge/verify", h.VerifyChallenge(actorContext))
		r.Post("/auth/mfa/challenge/resend", h.ResendChallenge(actorContext))
	})

	r.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(tokenAuth))
		r.Use(RequireActor(h.actors, actorContext))
		if limiter != nil {
			r.Use(limiter.Handler)
		}
		r.Use(authed...)

		r.Route("/me/mfa", func(r chi.Router) {
			r.Get("/", h.ShowSettings(actorContext))
			r.Put("/", h.UpdateSettings(actorContext))
			r.Post("/authenticator/setup", h.BeginAuthenticator(actorContext))
			r.Post("/authenticator/confirm", h.ConfirmAuthenticator(actorContext))
			r.Delete("/authenticator", h.DisableFactor(actorContext, mfa.DriverAuthenticator, "Authenticator factor disabled."))
			r.Post("/email-otp/start", h.BeginEmailOtp(actorContext))
			r.Post("/email-otp/confirm", h.ConfirmEmailOtp(actorContext))
			r.Delete("/email-otp", h.DisableFactor(actorContext, mfa.DriverEmailOtp, "Email OTP factor disabled."))
		})
	})
}
