package mfa

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Find methods return (nil, nil) when nothing matches.

// ProfileRepository stores one Profile per actor.
type ProfileRepository interface {
	FindProfile(ctx context.Context, actor ActorRef) (*Profile, error)
	// FirstOrCreateProfile returns the stored profile or creates a disabled one.
	FirstOrCreateProfile(ctx context.Context, actor ActorRef, now time.Time) (*Profile, error)
	SaveProfile(ctx context.Context, profile *Profile) error
}

// FactorRepository stores at most one Factor per (actor, driver).
type FactorRepository interface {
	// ListFactors orders primary first, then by driver.
	ListFactors(ctx context.Context, actor ActorRef) ([]Factor, error)
	FindFactor(ctx context.Context, actor ActorRef, driver string) (*Factor, error)
	FindFactorByID(ctx context.Context, id uuid.UUID) (*Factor, error)
	// SaveFactor inserts or updates by (actor, driver). A zero ID is assigned.
	SaveFactor(ctx context.Context, factor *Factor) error
	ClearPrimary(ctx context.Context, actor ActorRef) error
}

// ChallengeRepository stores challenges by token hash.
type ChallengeRepository interface {
	CreateChallenge(ctx context.Context, challenge *Challenge) error
	FindChallengeByID(ctx context.Context, id uuid.UUID) (*Challenge, error)
	// FindChallengeByTokenHash returns the challenge in any state.
	FindChallengeByTokenHash(ctx context.Context, tokenHash string) (*Challenge, error)
	// FindPendingChallenge matches token hash, context and purpose and only
	// returns a challenge that is pending at now.
	FindPendingChallenge(ctx context.Context, tokenHash, context, purpose string, now time.Time) (*Challenge, error)
	// SaveChallenge overwrites the mutable fields of an existing challenge.
	// A completed or invalidated timestamp already stored is kept.
	SaveChallenge(ctx context.Context, challenge *Challenge) error
	// InvalidateOpenChallenges terminates every challenge of (actor, driver,
	// purpose) that is neither completed nor invalidated.
	InvalidateOpenChallenges(ctx context.Context, actor ActorRef, driver, purpose string, now time.Time) (int64, error)
	// RecordFailedAttempt increments attempts of a pending challenge and
	// invalidates it once the ceiling is reached, as one atomic step.
	RecordFailedAttempt(ctx context.Context, id uuid.UUID, now time.Time) (*Challenge, error)
	// CompleteChallenge marks a pending challenge verified. It fails with
	// ErrChallengeNotFound when the challenge is no longer pending.
	CompleteChallenge(ctx context.Context, id uuid.UUID, now time.Time) (*Challenge, error)
	// PruneChallenges deletes challenges that expired before the cutoff.
	PruneChallenges(ctx context.Context, before time.Time) (int64, error)
}

// Repository is everything the MFA services persist.
type Repository interface {
	ProfileRepository
	FactorRepository
	ChallengeRepository
}

// RepositoryConfig contains configuration for creating an MFA repository
type RepositoryConfig struct {
	// Pool is required for PostgreSQL repositories
	Pool *pgxpool.Pool
	// DataDir is required for file-based repositories
	DataDir string
}

// NewRepository creates a repository based on the persistence type
func NewRepository(persistenceType string, config RepositoryConfig) (Repository, error) {
	switch persistenceType {
	case "postgres", "postgresql":
		if config.Pool == nil {
			return nil, fmt.Errorf("pool required for postgres repository")
		}
		return NewPostgresRepository(config.Pool), nil
	case "file":
		if config.DataDir == "" {
			return nil, fmt.Errorf("dataDir required for file repository")
		}
		return NewFileRepository(config.DataDir)
	case "memory", "inmem":
		return NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, file, memory)", persistenceType)
	}
}
