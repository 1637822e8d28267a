package mfa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository on the mfa_* tables.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const profileColumns = `id, actor_type, actor_id, is_enabled, preferred_driver, settings, created_at, updated_at`

const factorColumns = `id, actor_type, actor_id, driver, label, secret_encrypted, is_enabled, is_verified, is_primary,
	config, last_counter, verified_at, last_used_at, created_at, updated_at`

const challengeColumns = `id, token_hash, context, purpose, actor_type, actor_id, factor_id, driver, code_hash,
	attempts, max_attempts, resend_count, max_resends, last_sent_at, expires_at, completed_at, invalidated_at,
	payload, meta, created_at, updated_at`

// scanProfile returns (nil, nil) on pgx.ErrNoRows.
func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Actor.Type, &p.Actor.ID, &p.IsEnabled, &p.PreferredDriver, &p.Settings, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanFactor(row pgx.Row) (*Factor, error) {
	var f Factor
	var secret *string
	err := row.Scan(&f.ID, &f.Actor.Type, &f.Actor.ID, &f.Driver, &f.Label, &secret, &f.IsEnabled, &f.IsVerified,
		&f.IsPrimary, &f.Config, &f.LastCounter, &f.VerifiedAt, &f.LastUsedAt, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if secret != nil {
		f.SecretEncrypted = *secret
	}
	return &f, nil
}

func scanChallenge(row pgx.Row) (*Challenge, error) {
	var c Challenge
	var codeHash *string
	err := row.Scan(&c.ID, &c.TokenHash, &c.Context, &c.Purpose, &c.Actor.Type, &c.Actor.ID, &c.FactorID, &c.Driver,
		&codeHash, &c.Attempts, &c.MaxAttempts, &c.ResendCount, &c.MaxResends, &c.LastSentAt, &c.ExpiresAt,
		&c.CompletedAt, &c.InvalidatedAt, &c.Payload, &c.Meta, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if codeHash != nil {
		c.CodeHash = *codeHash
	}
	return &c, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stamp(created *time.Time, updated *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = now
	}
}

func (r *PostgresRepository) FindProfile(ctx context.Context, actor ActorRef) (*Profile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM mfa_profiles WHERE actor_type = $1 AND actor_id = $2`,
		actor.Type, actor.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to find MFA profile: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) FirstOrCreateProfile(ctx context.Context, actor ActorRef, now time.Time) (*Profile, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO mfa_profiles (id, actor_type, actor_id, is_enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, false, $4, $4)
		 ON CONFLICT (actor_type, actor_id) DO NOTHING`,
		uuid.New(), actor.Type, actor.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create MFA profile: %w", err)
	}
	return r.FindProfile(ctx, actor)
}

func (r *PostgresRepository) SaveProfile(ctx context.Context, profile *Profile) error {
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	stamp(&profile.CreatedAt, &profile.UpdatedAt)
	err := r.pool.QueryRow(ctx,
		`INSERT INTO mfa_profiles (id, actor_type, actor_id, is_enabled, preferred_driver, settings, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (actor_type, actor_id) DO UPDATE SET
		   is_enabled = EXCLUDED.is_enabled,
		   preferred_driver = EXCLUDED.preferred_driver,
		   settings = EXCLUDED.settings,
		   updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at`,
		profile.ID, profile.Actor.Type, profile.Actor.ID, profile.IsEnabled, profile.PreferredDriver,
		profile.Settings, profile.CreatedAt, profile.UpdatedAt,
	).Scan(&profile.ID, &profile.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save MFA profile: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListFactors(ctx context.Context, actor ActorRef) ([]Factor, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+factorColumns+` FROM mfa_factors
		 WHERE actor_type = $1 AND actor_id = $2
		 ORDER BY is_primary DESC, driver ASC`,
		actor.Type, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list MFA factors: %w", err)
	}
	defer rows.Close()

	var factors []Factor
	for rows.Next() {
		f, err := scanFactor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan MFA factor: %w", err)
		}
		factors = append(factors, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list MFA factors: %w", err)
	}
	return factors, nil
}

func (r *PostgresRepository) FindFactor(ctx context.Context, actor ActorRef, driver string) (*Factor, error) {
	f, err := scanFactor(r.pool.QueryRow(ctx,
		`SELECT `+factorColumns+` FROM mfa_factors WHERE actor_type = $1 AND actor_id = $2 AND driver = $3`,
		actor.Type, actor.ID, driver))
	if err != nil {
		return nil, fmt.Errorf("failed to find MFA factor: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) FindFactorByID(ctx context.Context, id uuid.UUID) (*Factor, error) {
	f, err := scanFactor(r.pool.QueryRow(ctx,
		`SELECT `+factorColumns+` FROM mfa_factors WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to find MFA factor: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) SaveFactor(ctx context.Context, factor *Factor) error {
	if factor.ID == uuid.Nil {
		factor.ID = uuid.New()
	}
	stamp(&factor.CreatedAt, &factor.UpdatedAt)
	err := r.pool.QueryRow(ctx,
		`INSERT INTO mfa_factors (id, actor_type, actor_id, driver, label, secret_encrypted, is_enabled, is_verified,
		   is_primary, config, last_counter, verified_at, last_used_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (actor_type, actor_id, driver) DO UPDATE SET
		   label = EXCLUDED.label,
		   secret_encrypted = EXCLUDED.secret_encrypted,
		   is_enabled = EXCLUDED.is_enabled,
		   is_verified = EXCLUDED.is_verified,
		   is_primary = EXCLUDED.is_primary,
		   config = EXCLUDED.config,
		   last_counter = EXCLUDED.last_counter,
		   verified_at = EXCLUDED.verified_at,
		   last_used_at = EXCLUDED.last_used_at,
		   updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at`,
		factor.ID, factor.Actor.Type, factor.Actor.ID, factor.Driver, factor.Label, nullString(factor.SecretEncrypted),
		factor.IsEnabled, factor.IsVerified, factor.IsPrimary, factor.Config, factor.LastCounter, factor.VerifiedAt,
		factor.LastUsedAt, factor.CreatedAt, factor.UpdatedAt,
	).Scan(&factor.ID, &factor.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save MFA factor: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ClearPrimary(ctx context.Context, actor ActorRef) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE mfa_factors SET is_primary = false, updated_at = now()
		 WHERE actor_type = $1 AND actor_id = $2 AND is_primary`,
		actor.Type, actor.ID)
	if err != nil {
		return fmt.Errorf("failed to clear primary MFA factor: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CreateChallenge(ctx context.Context, c *Challenge) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	stamp(&c.CreatedAt, &c.UpdatedAt)
	_, err := r.pool.Exec(ctx,
		`INSERT INTO mfa_challenges (`+challengeColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		c.ID, c.TokenHash, c.Context, c.Purpose, c.Actor.Type, c.Actor.ID, c.FactorID, c.Driver, nullString(c.CodeHash),
		c.Attempts, c.MaxAttempts, c.ResendCount, c.MaxResends, c.LastSentAt, c.ExpiresAt, c.CompletedAt,
		c.InvalidatedAt, c.Payload, c.Meta, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create MFA challenge: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindChallengeByID(ctx context.Context, id uuid.UUID) (*Challenge, error) {
	c, err := scanChallenge(r.pool.QueryRow(ctx,
		`SELECT `+challengeColumns+` FROM mfa_challenges WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to find MFA challenge: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) FindChallengeByTokenHash(ctx context.Context, tokenHash string) (*Challenge, error) {
	c, err := scanChallenge(r.pool.QueryRow(ctx,
		`SELECT `+challengeColumns+` FROM mfa_challenges WHERE token_hash = $1`, tokenHash))
	if err != nil {
		return nil, fmt.Errorf("failed to find MFA challenge: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) FindPendingChallenge(ctx context.Context, tokenHash, context, purpose string, now time.Time) (*Challenge, error) {
	c, err := scanChallenge(r.pool.QueryRow(ctx,
		`SELECT `+challengeColumns+` FROM mfa_challenges
		 WHERE token_hash = $1 AND context = $2 AND purpose = $3
		   AND completed_at IS NULL AND invalidated_at IS NULL AND expires_at > $4`,
		tokenHash, context, purpose, now))
	if err != nil {
		return nil, fmt.Errorf("failed to find MFA challenge: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) SaveChallenge(ctx context.Context, c *Challenge) error {
	c.UpdatedAt = time.Now().UTC()
	tag, err := r.pool.Exec(ctx,
		`UPDATE mfa_challenges SET
		   code_hash = $2, attempts = $3, resend_count = $4, last_sent_at = $5, expires_at = $6,
		   completed_at = COALESCE(completed_at, $7), invalidated_at = COALESCE(invalidated_at, $8),
		   payload = $9, meta = $10, updated_at = $11
		 WHERE id = $1`,
		c.ID, nullString(c.CodeHash), c.Attempts, c.ResendCount, c.LastSentAt, c.ExpiresAt, c.CompletedAt,
		c.InvalidatedAt, c.Payload, c.Meta, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save MFA challenge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrChallengeNotFound
	}
	return nil
}

func (r *PostgresRepository) InvalidateOpenChallenges(ctx context.Context, actor ActorRef, driver, purpose string, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE mfa_challenges SET invalidated_at = $5, updated_at = $5
		 WHERE actor_type = $1 AND actor_id = $2 AND driver = $3 AND purpose = $4
		   AND completed_at IS NULL AND invalidated_at IS NULL`,
		actor.Type, actor.ID, driver, purpose, now)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate MFA challenges: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) RecordFailedAttempt(ctx context.Context, id uuid.UUID, now time.Time) (*Challenge, error) {
	c, err := scanChallenge(r.pool.QueryRow(ctx,
		`UPDATE mfa_challenges SET
		   attempts = attempts + 1,
		   invalidated_at = CASE WHEN attempts + 1 >= max_attempts THEN $2 ELSE invalidated_at END,
		   updated_at = $2
		 WHERE id = $1 AND completed_at IS NULL AND invalidated_at IS NULL AND expires_at > $2
		 RETURNING `+challengeColumns,
		id, now))
	if err != nil {
		return nil, fmt.Errorf("failed to record MFA attempt: %w", err)
	}
	if c == nil {
		return nil, ErrChallengeNotFound
	}
	return c, nil
}

func (r *PostgresRepository) CompleteChallenge(ctx context.Context, id uuid.UUID, now time.Time) (*Challenge, error) {
	c, err := scanChallenge(r.pool.QueryRow(ctx,
		`UPDATE mfa_challenges SET completed_at = $2, updated_at = $2
		 WHERE id = $1 AND completed_at IS NULL AND invalidated_at IS NULL AND expires_at > $2
		 RETURNING `+challengeColumns,
		id, now))
	if err != nil {
		return nil, fmt.Errorf("failed to complete MFA challenge: %w", err)
	}
	if c == nil {
		return nil, ErrChallengeNotFound
	}
	return c, nil
}

func (r *PostgresRepository) PruneChallenges(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM mfa_challenges WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune MFA challenges: %w", err)
	}
	return tag.RowsAffected(), nil
}
