package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/jwtauth/v5"

	"github.com/ninjaportal/portal-mfa/pkg/mfa"
	"github.com/ninjaportal/portal-mfa/pkg/tokengenerator"
)

type contextKey string

const actorKey contextKey = "mfa_actor"

// ActorFromContext returns the actor loaded by RequireActor.
func ActorFromContext(ctx context.Context) (*mfa.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(*mfa.Actor)
	return actor, ok && actor != nil
}

// RequireActor admits requests carrying a verified access token that was
// issued for the given context and whose subject still resolves to an actor.
// It must run after jwtauth.Verifier.
func RequireActor(actors mfa.ActorDirectory, actorContext string) func(http.Handler) http.Handler {
	actorContext = mfa.NormalizeContext(actorContext)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, claims, err := jwtauth.FromContext(r.Context())
			if err != nil || token == nil {
				unauthenticated(w, r)
				return
			}

			use, _ := claims["token_use"].(string)
			tokenContext, _ := claims["ctx"].(string)
			if use != tokengenerator.ACCESS_TOKEN_NAME || tokenContext != actorContext {
				unauthenticated(w, r)
				return
			}

			actorType, _ := claims["actor_type"].(string)
			sub, _ := claims["sub"].(string)
			if sub == "" {
				unauthenticated(w, r)
				return
			}

			actor, err := actors.FindActor(r.Context(), mfa.ActorRef{Type: actorType, ID: sub})
			if err != nil {
				slog.Error("Failed to resolve actor", "actorType", actorType, "actorId", sub, "err", err)
				writeError(w, r, err)
				return
			}
			if actor == nil {
				unauthenticated(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthenticated(w http.ResponseWriter, r *http.Request) {
	writeFailure(w, r, http.StatusUnauthorized, "Unauthenticated.", nil)
}
