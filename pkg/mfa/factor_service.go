package mfa

import (
	"context"
	"strings"
)

const defaultEmailOtpLabel = "Email OTP"

// FactorService enrolls and disables factors.
type FactorService struct {
	repo       Repository
	drivers    *Registry
	challenges *ChallengeService
	profiles   *ProfileService
	opts       options
}

func NewFactorService(repo Repository, drivers *Registry, challenges *ChallengeService, profiles *ProfileService, opts ...Option) *FactorService {
	return &FactorService{
		repo:       repo,
		drivers:    drivers,
		challenges: challenges,
		profiles:   profiles,
		opts:       buildOptions(opts),
	}
}

// BeginAuthenticatorEnrollment creates or resets the authenticator factor
// and returns its provisioning details.
func (s *FactorService) BeginAuthenticatorEnrollment(ctx context.Context, actor Actor, context, label string) (Payload, error) {
	context = NormalizeContext(context)
	if err := s.assertDriverAllowed(context, DriverAuthenticator); err != nil {
		return nil, err
	}
	enroller, err := s.enroller(DriverAuthenticator)
	if err != nil {
		return nil, err
	}

	factor, err := s.firstOrNew(ctx, actor, DriverAuthenticator)
	if err != nil {
		return nil, err
	}
	setup, err := enroller.BeginEnrollment(ctx, actor, context, factor, EnrollmentInput{Label: label})
	if err != nil {
		return nil, err
	}
	factor.UpdatedAt = s.opts.now()
	if err := s.repo.SaveFactor(ctx, factor); err != nil {
		return nil, err
	}

	return Payload{
		"driver": DriverAuthenticator,
		"factor": factorPayload(*factor),
		"setup":  setup,
	}, nil
}

// ConfirmAuthenticatorEnrollment verifies the first code from the app and
// enables the factor.
func (s *FactorService) ConfirmAuthenticatorEnrollment(ctx context.Context, actor Actor, context, code string) (Payload, error) {
	context = NormalizeContext(context)
	factor, err := s.repo.FindFactor(ctx, actor.Ref(), DriverAuthenticator)
	if err != nil {
		return nil, err
	}
	if factor == nil {
		return nil, ErrEnrollmentNotStarted
	}
	enroller, err := s.enroller(DriverAuthenticator)
	if err != nil {
		return nil, err
	}

	if err := enroller.ConfirmEnrollment(ctx, actor, context, factor, EnrollmentInput{Code: code}); err != nil {
		return nil, err
	}
	return s.enable(ctx, actor, context, factor)
}

// BeginEmailOtpEnrollment resets the email factor and mails a code to the
// actor's address.
func (s *FactorService) BeginEmailOtpEnrollment(ctx context.Context, actor Actor, context string) (Payload, error) {
	context = NormalizeContext(context)
	if err := s.assertDriverAllowed(context, DriverEmailOtp); err != nil {
		return nil, err
	}

	factor, err := s.firstOrNew(ctx, actor, DriverEmailOtp)
	if err != nil {
		return nil, err
	}
	factor.Label = strings.TrimSpace(actor.Email)
	if factor.Label == "" {
		factor.Label = defaultEmailOtpLabel
	}
	factor.IsEnabled = false
	factor.IsVerified = false
	factor.UpdatedAt = s.opts.now()
	if err := s.repo.SaveFactor(ctx, factor); err != nil {
		return nil, err
	}

	challenge, err := s.challenges.CreateFactorChallenge(ctx, actor, context, factor, PurposeFactorEmailEnrollment)
	if err != nil {
		return nil, err
	}
	return Payload{
		"driver":    DriverEmailOtp,
		"challenge": challenge,
	}, nil
}

// ConfirmEmailOtpEnrollment verifies the enrollment code and enables the factor.
func (s *FactorService) ConfirmEmailOtpEnrollment(ctx context.Context, actor Actor, context, challengeToken, code string) (Payload, error) {
	context = NormalizeContext(context)
	challenge, err := s.challenges.VerifyFactorChallenge(ctx, context, challengeToken, code, PurposeFactorEmailEnrollment)
	if err != nil {
		return nil, err
	}
	if challenge.Actor != actor.Ref() {
		return nil, ErrChallengeActorMismatch
	}

	factor, err := s.repo.FindFactorByID(ctx, challenge.FactorID)
	if err != nil {
		return nil, err
	}
	if factor == nil {
		return nil, ErrEnrollmentNotStarted.WithMessage("driver", "Email OTP factor could not be resolved.")
	}

	now := s.opts.now()
	factor.IsVerified = true
	factor.IsEnabled = true
	factor.VerifiedAt = &now
	return s.enable(ctx, actor, context, factor)
}

// DisableFactor switches a factor off and drops its primary flag. The
// record is kept. Disabling the last enabled factor fails while MFA is
// mandatory for the context.
func (s *FactorService) DisableFactor(ctx context.Context, actor Actor, context, driver string) error {
	context = NormalizeContext(context)
	if err := s.assertDriverAllowed(context, driver); err != nil {
		return err
	}
	factor, err := s.repo.FindFactor(ctx, actor.Ref(), driver)
	if err != nil {
		return err
	}
	if factor == nil {
		return nil
	}

	required, err := s.profiles.RequiresMfa(ctx, actor, context)
	if err != nil {
		return err
	}
	factors, err := s.repo.ListFactors(ctx, actor.Ref())
	if err != nil {
		return err
	}
	enabledCount := 0
	for _, f := range factors {
		if f.IsEnabled {
			enabledCount++
		}
	}
	if required && enabledCount <= 1 && factor.IsEnabled {
		return ErrLastRequiredFactor
	}

	factor.IsEnabled = false
	factor.IsPrimary = false
	factor.UpdatedAt = s.opts.now()
	if err := s.repo.SaveFactor(ctx, factor); err != nil {
		return err
	}

	s.opts.events.Dispatch(ctx, FactorDisabledEvent{Context: context, Actor: actor, Factor: *factor})
	return nil
}

func (s *FactorService) enable(ctx context.Context, actor Actor, context string, factor *Factor) (Payload, error) {
	if err := s.promoteAsPrimaryIfNeeded(ctx, actor, factor); err != nil {
		return nil, err
	}
	factor.UpdatedAt = s.opts.now()
	if err := s.repo.SaveFactor(ctx, factor); err != nil {
		return nil, err
	}

	s.opts.events.Dispatch(ctx, FactorEnabledEvent{Context: context, Actor: actor, Factor: *factor})

	settings, err := s.profiles.GetSettingsPayload(ctx, actor, context)
	if err != nil {
		return nil, err
	}
	return Payload{
		"driver":   factor.Driver,
		"factor":   factorPayload(*factor),
		"settings": settings,
	}, nil
}

// promoteAsPrimaryIfNeeded makes factor primary when it backs the preferred
// driver or when the actor has no primary factor yet.
func (s *FactorService) promoteAsPrimaryIfNeeded(ctx context.Context, actor Actor, factor *Factor) error {
	profile, err := s.repo.FindProfile(ctx, actor.Ref())
	if err != nil {
		return err
	}
	factors, err := s.repo.ListFactors(ctx, actor.Ref())
	if err != nil {
		return err
	}

	hasPrimary := false
	for _, f := range factors {
		if f.IsPrimary {
			hasPrimary = true
			break
		}
	}
	preferred := profile != nil && profile.PreferredDriver != nil && *profile.PreferredDriver == factor.Driver
	if preferred || !hasPrimary {
		if err := s.repo.ClearPrimary(ctx, actor.Ref()); err != nil {
			return err
		}
		factor.IsPrimary = true
	}
	return nil
}

func (s *FactorService) firstOrNew(ctx context.Context, actor Actor, driver string) (*Factor, error) {
	factor, err := s.repo.FindFactor(ctx, actor.Ref(), driver)
	if err != nil {
		return nil, err
	}
	if factor != nil {
		return factor, nil
	}
	now := s.opts.now()
	return &Factor{
		Actor:     actor.Ref(),
		Driver:    driver,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *FactorService) enroller(key string) (Enroller, error) {
	driver, err := s.drivers.Driver(key)
	if err != nil {
		return nil, err
	}
	enroller, ok := driver.(Enroller)
	if !ok {
		return nil, ErrUnsupportedOperation.WithMessage("driver", "MFA driver does not support enrollment.")
	}
	return enroller, nil
}

func (s *FactorService) assertDriverAllowed(context, driver string) error {
	if !s.opts.config.DriverAllowed(context, driver) {
		return ErrDriverNotAllowed
	}
	return nil
}
