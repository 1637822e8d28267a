package mfa

import (
	"context"
	"log/slog"
	"time"
)

// PruneService deletes old challenges.
type PruneService struct {
	repo ChallengeRepository
	opts options
}

func NewPruneService(repo ChallengeRepository, opts ...Option) *PruneService {
	return &PruneService{repo: repo, opts: buildOptions(opts)}
}

// Prune deletes challenges whose expiry is more than days (at least 1) in
// the past, whatever their state, and returns how many were removed.
func (s *PruneService) Prune(ctx context.Context, days int) (int64, error) {
	cutoff := s.opts.now().Add(-time.Duration(max(1, days)) * 24 * time.Hour)
	n, err := s.repo.PruneChallenges(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	slog.Info("Pruned MFA challenges", "count", n, "before", cutoff)
	return n, nil
}

// PruneConfigured prunes with the configured retention.
func (s *PruneService) PruneConfigured(ctx context.Context) (int64, error) {
	return s.Prune(ctx, s.opts.config.Challenge.PruneAfterDays)
}

// Run prunes every interval until ctx is done.
func (s *PruneService) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.PruneConfigured(ctx); err != nil {
				slog.Error("Failed to prune MFA challenges", "err", err)
			}
		}
	}
}
