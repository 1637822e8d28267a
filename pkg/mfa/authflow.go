package mfa

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ninjaportal/portal-mfa/pkg/utils"
)

// PasswordVerifier checks an actor's password.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, actor Actor, password string) (bool, error)
}

// LoginResult is either issued tokens or a challenge to complete first.
type LoginResult struct {
	ChallengeRequired bool
	Payload           Payload
}

// AuthFlow is the password login with the MFA step in front of token issuance.
type AuthFlow struct {
	actors     ActorDirectory
	passwords  PasswordVerifier
	tokens     TokenIssuer
	profiles   *ProfileService
	challenges *ChallengeService
	opts       options
}

func NewAuthFlow(actors ActorDirectory, passwords PasswordVerifier, tokens TokenIssuer, profiles *ProfileService, challenges *ChallengeService, opts ...Option) *AuthFlow {
	return &AuthFlow{
		actors:     actors,
		passwords:  passwords,
		tokens:     tokens,
		profiles:   profiles,
		challenges: challenges,
		opts:       buildOptions(opts),
	}
}

// AttemptLogin checks credentials, then either issues tokens or opens a
// login challenge.
func (f *AuthFlow) AttemptLogin(ctx context.Context, email, password, context string) (*LoginResult, error) {
	context = NormalizeContext(context)
	email = utils.NormalizeEmail(email)

	actor, err := f.actors.FindActorByEmail(ctx, context, email)
	if err != nil {
		return nil, err
	}
	ok := false
	if actor != nil {
		if ok, err = f.passwords.VerifyPassword(ctx, *actor, password); err != nil {
			return nil, err
		}
	}
	if !ok {
		f.failed(ctx, context, email, "invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	requires, err := f.profiles.RequiresMfa(ctx, *actor, context)
	if err != nil {
		return nil, err
	}
	shouldChallenge, err := f.profiles.ShouldChallengeOnLogin(ctx, *actor, context)
	if err != nil {
		return nil, err
	}
	if requires && !shouldChallenge {
		f.failed(ctx, context, email, "mfa_not_configured")
		return nil, ErrMfaNotConfigured
	}

	if shouldChallenge {
		challenge, err := f.challenges.CreateLoginChallenge(ctx, *actor, context)
		if errors.Is(err, ErrNoEligibleFactor) {
			f.failed(ctx, context, email, "mfa_not_configured")
			return nil, ErrMfaNotConfigured
		}
		if err != nil {
			slog.Error("Failed to create login challenge", "actor", actor.Ref().String(), "err", err)
			return nil, err
		}
		return &LoginResult{ChallengeRequired: true, Payload: challenge}, nil
	}

	payload, err := f.tokens.IssueTokens(ctx, *actor, context)
	if err != nil {
		return nil, err
	}
	f.opts.events.Dispatch(ctx, LoginSucceededEvent{Context: context, Email: email, Actor: *actor})
	return &LoginResult{Payload: payload}, nil
}

func (f *AuthFlow) failed(ctx context.Context, context, email, reason string) {
	f.opts.events.Dispatch(ctx, LoginFailedEvent{Context: context, Email: email, Reason: reason})
}
