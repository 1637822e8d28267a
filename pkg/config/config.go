package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Persistence backends accepted by mfa.NewRepository.
var persistenceTypes = []string{"postgres", "file", "memory"}

// ServerConfig holds process level settings.
type ServerConfig struct {
	BaseURL       string        `env:"PORTAL_MFA_BASE_URL" env-default:"http://localhost:3000"`
	Persistence   string        `env:"PORTAL_MFA_PERSISTENCE" env-default:"postgres"`
	DataDir       string        `env:"PORTAL_MFA_DATA_DIR" env-default:"./data"`
	ActorsFile    string        `env:"PORTAL_MFA_ACTORS_FILE" env-default:""`
	AppKey        string        `env:"PORTAL_MFA_APP_KEY" env-default:""`
	PruneInterval time.Duration `env:"PORTAL_MFA_PRUNE_INTERVAL" env-default:"1h"`
	MetricsPath   string        `env:"PORTAL_MFA_METRICS_PATH" env-default:"/metrics"`
}

// BootstrapConfig seeds the first admin account when the directory has none.
type BootstrapConfig struct {
	AdminEmail    string `env:"PORTAL_MFA_ADMIN_EMAIL" env-default:""`
	AdminPassword string `env:"PORTAL_MFA_ADMIN_PASSWORD" env-default:""`
}

// Config is everything the portal-mfa binaries read from the environment.
type Config struct {
	Server    ServerConfig
	Mfa       MfaConfig
	Database  DatabaseConfig
	Email     EmailConfig
	Redis     RedisConfig
	Jwt       JwtConfig
	RateLimit RateLimitConfig
	Bootstrap BootstrapConfig
}

// Load reads the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return &cfg, nil
}

// Validate returns every problem found, or nil.
func (c *Config) Validate() ValidationErrors {
	errs := c.Mfa.Validate()
	errs = append(errs, CollectErrors(
		RequireOneOf("server.persistence", c.Server.Persistence, persistenceTypes),
		RequireMinLength("jwt.secret", c.Jwt.Secret, 16),
		RequireNonEmpty("server.app_key", c.Server.AppKey),
	)...)
	if c.Server.Persistence == "file" {
		if err := RequireNonEmpty("server.data_dir", c.Server.DataDir); err != nil {
			errs = append(errs, *err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
