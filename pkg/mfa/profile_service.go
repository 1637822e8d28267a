package mfa

import (
	"context"
	"strings"

	"github.com/ninjaportal/portal-mfa/pkg/utils"
)

// SettingsUpdate is a partial settings change. Nil fields are left alone;
// an empty PreferredDriver clears the preference.
type SettingsUpdate struct {
	IsEnabled       *bool
	PreferredDriver *string
}

// ProfileService answers policy questions and manages the per-actor profile.
type ProfileService struct {
	repo Repository
	opts options
}

func NewProfileService(repo Repository, opts ...Option) *ProfileService {
	return &ProfileService{repo: repo, opts: buildOptions(opts)}
}

// RequiresMfa reports whether the actor must pass MFA, whether or not a
// usable factor exists.
func (s *ProfileService) RequiresMfa(ctx context.Context, actor Actor, context string) (bool, error) {
	cfg := s.opts.config
	if !cfg.ActorEnabled(context) {
		return false, nil
	}
	if cfg.ActorRequired(context) {
		return true, nil
	}
	return s.optedIn(ctx, actor)
}

// ShouldChallengeOnLogin is RequiresMfa restricted to actors with at least
// one eligible factor.
func (s *ProfileService) ShouldChallengeOnLogin(ctx context.Context, actor Actor, context string) (bool, error) {
	cfg := s.opts.config
	if !cfg.ActorEnabled(context) {
		return false, nil
	}
	enabled, err := s.EnabledFactors(ctx, actor, context)
	if err != nil {
		return false, err
	}
	if len(enabled) == 0 {
		return false, nil
	}
	if cfg.ActorRequired(context) {
		return true, nil
	}
	return s.optedIn(ctx, actor)
}

func (s *ProfileService) optedIn(ctx context.Context, actor Actor) (bool, error) {
	profile, err := s.repo.FindProfile(ctx, actor.Ref())
	if err != nil {
		return false, err
	}
	return profile != nil && profile.IsEnabled, nil
}

// EnabledFactors returns the enabled, verified, allow-listed factors.
func (s *ProfileService) EnabledFactors(ctx context.Context, actor Actor, context string) ([]Factor, error) {
	factors, err := s.repo.ListFactors(ctx, actor.Ref())
	if err != nil {
		return nil, err
	}
	return eligibleFactors(s.opts.config, factors, NormalizeContext(context)), nil
}

// GetSettingsPayload describes the actor's MFA state for the settings screen.
func (s *ProfileService) GetSettingsPayload(ctx context.Context, actor Actor, context string) (Payload, error) {
	context = NormalizeContext(context)
	cfg := s.opts.config

	profile, err := s.repo.FirstOrCreateProfile(ctx, actor.Ref(), s.opts.now())
	if err != nil {
		return nil, err
	}
	factors, err := s.repo.ListFactors(ctx, actor.Ref())
	if err != nil {
		return nil, err
	}
	required, err := s.RequiresMfa(ctx, actor, context)
	if err != nil {
		return nil, err
	}
	shouldChallenge, err := s.ShouldChallengeOnLogin(ctx, actor, context)
	if err != nil {
		return nil, err
	}

	items := make([]Payload, 0, len(factors))
	for _, f := range factors {
		items = append(items, factorPayload(f))
	}

	var preferred interface{}
	if profile.PreferredDriver != nil {
		preferred = *profile.PreferredDriver
	}

	return Payload{
		"context": context,
		"actor": Payload{
			"id":    actor.ID,
			"email": actor.Email,
		},
		"profile": Payload{
			"is_enabled":         profile.IsEnabled,
			"preferred_driver":   preferred,
			"effective_required": required,
		},
		"available_drivers": cfg.ActorAllowedDrivers(context),
		"default_driver":    cfg.ActorDefaultDriver(context),
		"factors":           items,
		"effective": Payload{
			"should_challenge_on_login": shouldChallenge,
			"enabled_factor_count":      len(eligibleFactors(cfg, factors, context)),
		},
	}, nil
}

// UpdateSettings toggles the opt-in flag and changes the preferred driver.
// Choosing a preferred driver also makes its factor the primary one.
func (s *ProfileService) UpdateSettings(ctx context.Context, actor Actor, context string, update SettingsUpdate) (Payload, error) {
	context = NormalizeContext(context)
	cfg := s.opts.config
	now := s.opts.now()

	profile, err := s.repo.FirstOrCreateProfile(ctx, actor.Ref(), now)
	if err != nil {
		return nil, err
	}
	enabled, err := s.EnabledFactors(ctx, actor, context)
	if err != nil {
		return nil, err
	}

	changed := false
	if update.IsEnabled != nil {
		requested := *update.IsEnabled
		switch {
		case !requested && cfg.ActorRequired(context):
			return nil, ErrMfaRequired
		case !requested && !cfg.ActorAllowUserDisable(context):
			return nil, ErrDisableNotAllowed
		case requested && len(enabled) == 0:
			return nil, ErrNoEnabledFactor
		}
		profile.IsEnabled = requested
		changed = true
	}

	if update.PreferredDriver != nil {
		preferred := strings.TrimSpace(*update.PreferredDriver)
		if preferred != "" {
			if !cfg.DriverAllowed(context, preferred) {
				return nil, ErrDriverNotAllowed.WithMessage("preferred_driver", ErrDriverNotAllowed.Message)
			}
			factor := findDriver(enabled, preferred)
			if factor == nil {
				return nil, ErrPreferredNotEnabled
			}
			if err := s.repo.ClearPrimary(ctx, actor.Ref()); err != nil {
				return nil, err
			}
			factor.IsPrimary = true
			factor.UpdatedAt = now
			if err := s.repo.SaveFactor(ctx, factor); err != nil {
				return nil, err
			}
			profile.PreferredDriver = utils.Ptr(preferred)
		} else {
			profile.PreferredDriver = nil
		}
		changed = true
	}

	if changed {
		profile.UpdatedAt = now
		if err := s.repo.SaveProfile(ctx, profile); err != nil {
			return nil, err
		}
	}
	return s.GetSettingsPayload(ctx, actor, context)
}

func factorPayload(f Factor) Payload {
	return Payload{
		"driver":       f.Driver,
		"label":        f.Label,
		"is_enabled":   f.IsEnabled,
		"is_verified":  f.IsVerified,
		"is_primary":   f.IsPrimary,
		"verified_at":  utils.ISO8601(f.VerifiedAt),
		"last_used_at": utils.ISO8601(f.LastUsedAt),
	}
}
