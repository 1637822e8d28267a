package mfa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ninjaportal/portal-mfa/pkg/tokenhash"
	"github.com/ninjaportal/portal-mfa/pkg/utils"
)

// ActorDirectory resolves accounts. Find methods return (nil, nil) when
// the actor does not exist.
type ActorDirectory interface {
	FindActor(ctx context.Context, ref ActorRef) (*Actor, error)
	FindActorByEmail(ctx context.Context, context, email string) (*Actor, error)
}

// TokenIssuer issues the session tokens a successful login returns.
type TokenIssuer interface {
	IssueTokens(ctx context.Context, actor Actor, context string) (Payload, error)
}

// ChallengeService runs challenge creation, verification and resend.
type ChallengeService struct {
	repo    Repository
	drivers *Registry
	actors  ActorDirectory
	tokens  TokenIssuer
	opts    options
}

func NewChallengeService(repo Repository, drivers *Registry, actors ActorDirectory, tokens TokenIssuer, opts ...Option) *ChallengeService {
	return &ChallengeService{
		repo:    repo,
		drivers: drivers,
		actors:  actors,
		tokens:  tokens,
		opts:    buildOptions(opts),
	}
}

// CreateLoginChallenge starts a login challenge on the actor's selected factor.
func (s *ChallengeService) CreateLoginChallenge(ctx context.Context, actor Actor, context string) (Payload, error) {
	return s.createChallenge(ctx, actor, context, PurposeLogin, nil)
}

// CreateFactorChallenge starts a challenge against a specific, possibly
// not yet enabled, factor.
func (s *ChallengeService) CreateFactorChallenge(ctx context.Context, actor Actor, context string, factor *Factor, purpose string) (Payload, error) {
	if factor == nil {
		return nil, ErrNoEligibleFactor
	}
	return s.createChallenge(ctx, actor, context, purpose, factor)
}

// SelectLoginFactor returns the factor a login challenge would use, or nil.
func (s *ChallengeService) SelectLoginFactor(ctx context.Context, actor Actor, context string) (*Factor, error) {
	context = NormalizeContext(context)
	factors, err := s.repo.ListFactors(ctx, actor.Ref())
	if err != nil {
		return nil, err
	}
	profile, err := s.repo.FindProfile(ctx, actor.Ref())
	if err != nil {
		return nil, err
	}
	var preferred *string
	if profile != nil {
		preferred = profile.PreferredDriver
	}
	return selectFactor(s.opts.config, factors, preferred, context), nil
}

func (s *ChallengeService) createChallenge(ctx context.Context, actor Actor, context, purpose string, factor *Factor) (Payload, error) {
	context = NormalizeContext(context)
	if factor == nil {
		selected, err := s.SelectLoginFactor(ctx, actor, context)
		if err != nil {
			return nil, err
		}
		if selected == nil {
			return nil, ErrNoEligibleFactor
		}
		factor = selected
	}

	driver, err := s.drivers.Driver(factor.Driver)
	if err != nil {
		return nil, err
	}

	token, err := tokenhash.MakeToken(s.opts.config.Challenge.TokenLength)
	if err != nil {
		return nil, err
	}
	maxAttempts, maxResends := s.opts.config.limitsFor(factor.Driver)
	now := s.opts.now()

	challenge := &Challenge{
		TokenHash:   tokenhash.Hash(token),
		Context:     context,
		Purpose:     purpose,
		Actor:       actor.Ref(),
		FactorID:    factor.ID,
		Driver:      factor.Driver,
		MaxAttempts: maxAttempts,
		MaxResends:  maxResends,
		ExpiresAt:   now.Add(s.opts.config.challengeTTL()),
		Payload:     map[string]interface{}{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.insertSingleFlight(ctx, challenge, now); err != nil {
		return nil, err
	}

	req := DriverRequest{Challenge: challenge, Factor: factor, Actor: actor, Context: context}
	driverPayload, err := driver.PrepareChallenge(ctx, req)
	if err != nil {
		s.invalidate(ctx, challenge)
		return nil, err
	}
	challenge.UpdatedAt = s.opts.now()
	if err := s.repo.SaveChallenge(ctx, challenge); err != nil {
		s.invalidate(ctx, challenge)
		return nil, err
	}

	s.opts.events.Dispatch(ctx, ChallengeCreatedEvent{
		Context:     context,
		Purpose:     purpose,
		Actor:       actor,
		ChallengeID: challenge.ID,
		Driver:      factor.Driver,
	})

	return clientPayload(purpose, token, driverPayload), nil
}

// insertSingleFlight invalidates open challenges of the same actor, driver
// and purpose and inserts challenge while holding the single-flight lock.
func (s *ChallengeService) insertSingleFlight(ctx context.Context, challenge *Challenge, now time.Time) error {
	unlock, err := s.opts.locker.Lock(ctx, singleFlightKey(challenge.Actor, challenge.Driver, challenge.Purpose))
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.repo.InvalidateOpenChallenges(ctx, challenge.Actor, challenge.Driver, challenge.Purpose, now); err != nil {
		return err
	}
	return s.repo.CreateChallenge(ctx, challenge)
}

// invalidate terminates a challenge whose preparation failed.
func (s *ChallengeService) invalidate(ctx context.Context, challenge *Challenge) {
	now := s.opts.now()
	challenge.InvalidatedAt = &now
	challenge.UpdatedAt = now
	if err := s.repo.SaveChallenge(ctx, challenge); err != nil {
		slog.Error("Failed to invalidate MFA challenge", "challengeId", challenge.ID, "err", err)
	}
}

// VerifyLoginChallenge checks code and, on success, issues session tokens.
func (s *ChallengeService) VerifyLoginChallenge(ctx context.Context, context, challengeToken, code string) (Payload, error) {
	context = NormalizeContext(context)
	_, _, actor, err := s.verify(ctx, context, challengeToken, code, PurposeLogin)
	if err != nil {
		return nil, err
	}

	payload, err := s.tokens.IssueTokens(ctx, *actor, context)
	if err != nil {
		return nil, fmt.Errorf("failed to issue tokens: %w", err)
	}
	s.opts.events.Dispatch(ctx, LoginSucceededEvent{
		Context: context,
		Email:   utils.NormalizeEmail(actor.Email),
		Actor:   *actor,
	})
	return payload, nil
}

// VerifyFactorChallenge checks code for a non-login purpose and returns the
// completed challenge.
func (s *ChallengeService) VerifyFactorChallenge(ctx context.Context, context, challengeToken, code, purpose string) (*Challenge, error) {
	challenge, _, _, err := s.verify(ctx, NormalizeContext(context), challengeToken, code, purpose)
	return challenge, err
}

func (s *ChallengeService) verify(ctx context.Context, context, challengeToken, code, purpose string) (*Challenge, *Factor, *Actor, error) {
	found, err := s.resolvePending(ctx, context, challengeToken, purpose, true)
	if err != nil {
		return nil, nil, nil, err
	}

	unlock, err := s.opts.locker.Lock(ctx, challengeKey(found))
	if err != nil {
		return nil, nil, nil, err
	}
	defer unlock()

	now := s.opts.now()
	challenge, err := s.repo.FindChallengeByID(ctx, found.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	if challenge == nil {
		return nil, nil, nil, ErrChallengeNotFound
	}
	if challenge.Attempts >= challenge.MaxAttempts {
		return nil, nil, nil, ErrAttemptsExhausted
	}
	if !challenge.IsPending(now) {
		return nil, nil, nil, ErrChallengeNotFound
	}

	actor, factor, driver, err := s.load(ctx, challenge)
	if err != nil {
		return nil, nil, nil, err
	}

	req := DriverRequest{Challenge: challenge, Factor: factor, Actor: *actor, Context: context}
	ok, err := driver.VerifyChallenge(ctx, req, code)
	if err != nil {
		return nil, nil, nil, err
	}
	if !ok {
		failed, err := s.repo.RecordFailedAttempt(ctx, challenge.ID, now)
		if err != nil {
			return nil, nil, nil, err
		}
		s.opts.events.Dispatch(ctx, ChallengeFailedEvent{
			Context:     context,
			Purpose:     purpose,
			Actor:       *actor,
			ChallengeID: failed.ID,
			Driver:      failed.Driver,
			Reason:      "invalid_code",
			Attempts:    failed.Attempts,
			Exhausted:   failed.Attempts >= failed.MaxAttempts,
		})
		return nil, nil, nil, ErrInvalidCode
	}

	completed, err := s.repo.CompleteChallenge(ctx, challenge.ID, now)
	if err != nil {
		return nil, nil, nil, err
	}
	if purpose == PurposeLogin {
		factor.LastUsedAt = &now
	}
	factor.UpdatedAt = now
	if err := s.repo.SaveFactor(ctx, factor); err != nil {
		return nil, nil, nil, err
	}

	s.opts.events.Dispatch(ctx, ChallengeVerifiedEvent{
		Context:     context,
		Purpose:     purpose,
		Actor:       *actor,
		ChallengeID: completed.ID,
		Driver:      completed.Driver,
	})
	return completed, factor, actor, nil
}

// ResendLoginChallenge sends a new code for a pending login challenge.
func (s *ChallengeService) ResendLoginChallenge(ctx context.Context, context, challengeToken string) (Payload, error) {
	return s.ResendChallenge(ctx, context, challengeToken, PurposeLogin)
}

// ResendChallenge returns the same shape as creation, echoing the token.
func (s *ChallengeService) ResendChallenge(ctx context.Context, context, challengeToken, purpose string) (Payload, error) {
	context = NormalizeContext(context)
	found, err := s.resolvePending(ctx, context, challengeToken, purpose, false)
	if err != nil {
		return nil, err
	}

	unlock, err := s.opts.locker.Lock(ctx, challengeKey(found))
	if err != nil {
		return nil, err
	}
	defer unlock()

	challenge, err := s.repo.FindChallengeByID(ctx, found.ID)
	if err != nil {
		return nil, err
	}
	if challenge == nil || !challenge.IsPending(s.opts.now()) {
		return nil, ErrChallengeNotFound
	}

	actor, factor, driver, err := s.load(ctx, challenge)
	if err != nil {
		return nil, err
	}
	if !driver.SupportsResend() {
		return nil, ErrUnsupportedOperation
	}

	req := DriverRequest{Challenge: challenge, Factor: factor, Actor: *actor, Context: context}
	driverPayload, err := driver.ResendChallenge(ctx, req)
	if err != nil {
		return nil, err
	}
	challenge.UpdatedAt = s.opts.now()
	if err := s.repo.SaveChallenge(ctx, challenge); err != nil {
		return nil, err
	}

	return clientPayload(purpose, strings.TrimSpace(challengeToken), driverPayload), nil
}

// resolvePending finds a pending challenge by token, context and purpose.
// With exhausted set, a token naming a challenge that ran out of attempts
// reports ErrAttemptsExhausted instead of ErrChallengeNotFound.
func (s *ChallengeService) resolvePending(ctx context.Context, context, challengeToken, purpose string, exhausted bool) (*Challenge, error) {
	tokenHash := tokenhash.Hash(strings.TrimSpace(challengeToken))
	now := s.opts.now()

	challenge, err := s.repo.FindPendingChallenge(ctx, tokenHash, context, purpose, now)
	if err != nil {
		return nil, err
	}
	if challenge != nil {
		return challenge, nil
	}
	if exhausted {
		spent, err := s.repo.FindChallengeByTokenHash(ctx, tokenHash)
		if err != nil {
			return nil, err
		}
		if spent != nil && spent.Context == context && spent.Purpose == purpose && spent.State(now) == "exhausted" {
			return nil, ErrAttemptsExhausted
		}
	}
	return nil, ErrChallengeNotFound
}

func (s *ChallengeService) load(ctx context.Context, challenge *Challenge) (*Actor, *Factor, Driver, error) {
	actor, err := s.actors.FindActor(ctx, challenge.Actor)
	if err != nil {
		return nil, nil, nil, err
	}
	if actor == nil {
		return nil, nil, nil, ErrActorNotResolved
	}

	factor, err := s.repo.FindFactorByID(ctx, challenge.FactorID)
	if err != nil {
		return nil, nil, nil, err
	}
	if factor == nil {
		return nil, nil, nil, ErrFactorNotFound
	}

	driver, err := s.drivers.Driver(factor.Driver)
	if err != nil {
		return nil, nil, nil, err
	}
	return actor, factor, driver, nil
}

func clientPayload(purpose, token string, driverPayload Payload) Payload {
	out := Payload{
		"mfa_required":    true,
		"challenge_type":  purpose,
		"challenge_token": token,
	}
	for k, v := range sanitizePayload(driverPayload) {
		out[k] = v
	}
	return out
}
