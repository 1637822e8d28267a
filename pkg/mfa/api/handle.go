package api

import (
	"net/http"

	"github.com/ninjaportal/portal-mfa/pkg/mfa"
)

// Handle serves the MFA endpoints for one deployment. Every handler is
// bound to an actor context when the routes are built.
type Handle struct {
	challenges *mfa.ChallengeService
	profiles   *mfa.ProfileService
	factors    *mfa.FactorService
	authFlow   *mfa.AuthFlow
	actors     mfa.ActorDirectory
}

func NewHandle(challenges *mfa.ChallengeService, profiles *mfa.ProfileService, factors *mfa.FactorService, authFlow *mfa.AuthFlow, actors mfa.ActorDirectory) *Handle {
	return &Handle{
		challenges: challenges,
		profiles:   profiles,
		factors:    factors,
		authFlow:   authFlow,
		actors:     actors,
	}
}

// Login checks the password and answers with tokens, or with 202 and a
// challenge when a second factor is due.
func (h *Handle) Login(actorContext string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := req.validate(); err != nil {
			writeError(w, r, err)
			return
		}

		result, err := h.authFlow.AttemptLogin(r.Context(), req.Email, req.Password, actorContext)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if result.ChallengeRequired {
			writeSuccess(w, r, http.StatusAccepted, "MFA challenge required.", result.Payload)
			return
		}
		writeSuccess(w, r, http.StatusOK, "Login successful.", result.Payload)
	}
}

// VerifyChallenge handles POST /auth/mfa/challenge/verify
func (h *Handle) VerifyChallenge(actorContext string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req challengeRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := req.validate(true); err != nil {
			writeError(w, r, err)
			return
		}

		payload, err := h.challenges.VerifyLoginChallenge(r.Context(), actorContext, req.ChallengeToken, req.Code)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, r, http.StatusOK, "MFA verification succeeded.", payload)
	}
}

// ResendChallenge handles POST /auth/mfa/challenge/resend
func (h *Handle) ResendChallenge(actorContext string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req challengeRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := req.validate(false); err != nil {
			writeError(w, r, err)
			return
		}

		payload, err := h.challenges.ResendLoginChallenge(r.Context(), actorContext, req.ChallengeToken)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, r, http.StatusOK, "MFA code resent.", payload)
	}
}

// actorHandler is a handler that needs the authenticated actor.
type actorHandler func(w http.ResponseWriter, r *http.Request, actor mfa.Actor)

func withActor(fn actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			unauthenticated(w, r)
			return
		}
		fn(w, r, *actor)
	}
}

// ShowSettings handles GET /me/mfa
func (h *Handle) ShowSettings(actorContext string) http.HandlerFunc {
	return withActor(func(w http.ResponseWriter, r *http.Request, actor mfa.Actor) {
		payload, err := h.profiles.GetSettingsPayload(r.Context(), actor, actorContext)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, r, http.StatusOK, "", payload)
	})
}

// UpdateSettings handles PUT /me/mfa
func (h *Handle) UpdateSettings(actorContext string) http.HandlerFunc {
	return withActor(func(w http.ResponseWriter, r *http.Request, actor mfa.Actor) {
		update, err := decodeSettingsUpdate(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		payload, err := h.profiles.UpdateSettings(r.Context(), actor, actorContext, update)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, r, http.StatusOK, "MFA settings updated.", payload)
	})
}

// BeginAuthenticator handles POST /me/mfa/authenticator/setup
func (h *Handle) BeginAuthenticator(actorContext string) http.HandlerFunc {
	return withActor(func(w http.ResponseWriter, r *http.Request, actor mfa.Actor) {
		var req setupRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := req.validate(); err != nil {
			writeError(w, r, err)
			return
		}

		payload, err := h.factors.BeginAuthenticatorEnrollment(r.Context(), actor, actorContext, req.label())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, r, http.StatusOK, "Authenticator setup generated.", payload)
	})
}

// ConfirmAuthenticator handles POST /me/mfa/authenticator/confirm
func (h *Handle) ConfirmAuthenticator(actorContext string) http.HandlerFunc {
	return withActor(func(w http.ResponseWriter, r *http.Request, actor mfa.Actor) {
		var req codeRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := req.validate(); err != nil {
			writeError(w, r, err)
			return
		}

		payload, err := h.factors.ConfirmAuthenticatorEnrollment(r.Context(), actor, actorContext, req.Code)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, r, http.StatusOK, "Authenticator factor enabled.", payload)
	})
}

// BeginEmailOtp handles POST /me/mfa/email-otp/start
func (h *Handle) BeginEmailOtp(actorContext string) http.HandlerFunc {
	return withActor(func(w http.ResponseWriter, r *http.Request, actor mfa.Actor) {
		payload, err := h.factors.BeginEmailOtpEnrollment(r.Context(), actor, actorContext)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, r, http.StatusOK, "Email OTP verification code sent.", payload)
	})
}

// ConfirmEmailOtp handles POST /me/mfa/email-otp/confirm
func (h *Handle) ConfirmEmailOtp(actorContext string) http.HandlerFunc {
	return withActor(func(w http.ResponseWriter, r *http.Request, actor mfa.Actor) {
		var req challengeRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := req.validate(true); err != nil {
			writeError(w, r, err)
			return
		}

		payload, err := h.factors.ConfirmEmailOtpEnrollment(r.Context(), actor, actorContext, req.ChallengeToken, req.Code)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, r, http.StatusOK, "Email OTP factor enabled.", payload)
	})
}

// DisableFactor handles DELETE /me/mfa/{authenticator,email-otp}
func (h *Handle) DisableFactor(actorContext, driver, message string) http.HandlerFunc {
	return withActor(func(w http.ResponseWriter, r *http.Request, actor mfa.Actor) {
		if err := h.factors.DisableFactor(r.Context(), actor, actorContext, driver); err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, r, http.StatusOK, message, nil)
	})
}
