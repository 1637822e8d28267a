package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ninjaportal/portal-mfa/pkg/actor"
	"github.com/ninjaportal/portal-mfa/pkg/mfa"
	"github.com/ninjaportal/portal-mfa/pkg/utils"
)

const generatedPasswordLength = 20

// AdminBootstrapConfig contains configuration for seeding the first admin
type AdminBootstrapConfig struct {
	// Admin credentials (from PORTAL_MFA_ADMIN_EMAIL, PORTAL_MFA_ADMIN_PASSWORD)
	AdminEmail    string
	AdminPassword string

	Directory *actor.Directory
	// ActorsFile receives the updated directory when set
	ActorsFile string
}

// AdminBootstrapResult contains the result of admin bootstrap operation
type AdminBootstrapResult struct {
	ActorID     string
	Email       string
	Password    string // Only populated if auto-generated
	UserCreated bool   // true if the admin was created, false if skipped
	Persisted   bool   // true if the actors file was rewritten

	// Password was provided via environment variable
	PasswordFromEnv bool
}

// BootstrapAdmin adds an admin actor when none exists and an email is
// configured. It is a no-op otherwise.
func BootstrapAdmin(ctx context.Context, cfg AdminBootstrapConfig) (*AdminBootstrapResult, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid bootstrap configuration: %w", err)
	}

	if cfg.AdminEmail == "" {
		return &AdminBootstrapResult{UserCreated: false}, nil
	}
	if n := cfg.Directory.Count(mfa.ContextAdmin); n > 0 {
		slog.Info("Admin actors already exist - skipping admin bootstrap", "count", n)
		return &AdminBootstrapResult{UserCreated: false}, nil
	}

	password := cfg.AdminPassword
	if password == "" {
		generated, err := actor.GeneratePassword(generatedPasswordLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate admin password: %w", err)
		}
		password = generated
	}
	hash, err := actor.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}

	record := actor.Record{
		Type:         mfa.ContextAdmin,
		ID:           uuid.NewString(),
		Email:        utils.NormalizeEmail(cfg.AdminEmail),
		PasswordHash: hash,
	}
	if err := cfg.Directory.Add(record); err != nil {
		return nil, fmt.Errorf("failed to add admin actor: %w", err)
	}

	result := &AdminBootstrapResult{
		ActorID:         record.ID,
		Email:           record.Email,
		UserCreated:     true,
		PasswordFromEnv: cfg.AdminPassword != "",
	}
	if !result.PasswordFromEnv {
		result.Password = password
	}

	if cfg.ActorsFile != "" {
		if err := cfg.Directory.SaveFile(cfg.ActorsFile); err != nil {
			return nil, fmt.Errorf("failed to persist admin actor: %w", err)
		}
		result.Persisted = true
	}

	slog.Info("Admin bootstrap completed successfully",
		"actor_id", result.ActorID,
		"email", utils.MaskEmail(result.Email),
		"persisted", result.Persisted)

	return result, nil
}

// validateConfig validates the bootstrap configuration
func validateConfig(cfg AdminBootstrapConfig) error {
	if cfg.Directory == nil {
		return fmt.Errorf("Directory is required")
	}
	return nil
}
