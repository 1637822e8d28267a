// Package bootstrap assembles the MFA services from configuration and seeds
// the first admin account.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	dbutils "github.com/tendant/db-utils/db"

	"github.com/ninjaportal/portal-mfa/pkg/actor"
	"github.com/ninjaportal/portal-mfa/pkg/config"
	"github.com/ninjaportal/portal-mfa/pkg/metrics"
	"github.com/ninjaportal/portal-mfa/pkg/mfa"
	"github.com/ninjaportal/portal-mfa/pkg/notification"
	"github.com/ninjaportal/portal-mfa/pkg/secretbox"
	"github.com/ninjaportal/portal-mfa/pkg/tokengenerator"
)

// Services holds every wired MFA component of a running process.
type Services struct {
	Repo       mfa.Repository
	Directory  *actor.Directory
	Issuer     *tokengenerator.JwtIssuer
	Events     *mfa.Dispatcher
	Metrics    *metrics.Listener
	Challenges *mfa.ChallengeService
	Profiles   *mfa.ProfileService
	Factors    *mfa.FactorService
	AuthFlow   *mfa.AuthFlow
	Prune      *mfa.PruneService

	pool  *pgxpool.Pool
	redis *redis.Client
}

// Option customises Build, mostly for tests.
type Option func(*buildOptions)

type buildOptions struct {
	codeSender mfa.CodeSender
	directory  *actor.Directory
	extra      []mfa.Option
}

// WithCodeSender replaces the SMTP backed code sender.
func WithCodeSender(s mfa.CodeSender) Option {
	return func(o *buildOptions) { o.codeSender = s }
}

// WithDirectory replaces the actor directory read from the actors file.
func WithDirectory(d *actor.Directory) Option {
	return func(o *buildOptions) { o.directory = d }
}

// WithServiceOptions appends options handed to every MFA service.
func WithServiceOptions(opts ...mfa.Option) Option {
	return func(o *buildOptions) { o.extra = append(o.extra, opts...) }
}

// Build connects storage and constructs the MFA services. Close releases
// whatever Build opened.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*Services, error) {
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	s := &Services{}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	if cfg.Server.Persistence == "postgres" {
		dbConfig := cfg.Database.ToDbConfig()
		pool, err := dbutils.NewDbPool(ctx, dbConfig)
		if err != nil {
			slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.pool = pool
	}

	repo, err := mfa.NewRepository(cfg.Server.Persistence, mfa.RepositoryConfig{
		Pool:    s.pool,
		DataDir: cfg.Server.DataDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}
	s.Repo = repo

	locker, client, err := cfg.Redis.NewLocker()
	if err != nil {
		return nil, fmt.Errorf("failed to create challenge locker: %w", err)
	}
	s.redis = client

	box, err := secretbox.New(cfg.Server.AppKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret cipher: %w", err)
	}

	sender := bo.codeSender
	if sender == nil {
		manager, err := notification.NewNotificationManagerWithOptions(cfg.Server.BaseURL,
			notification.WithSMTP(cfg.Email.ToSMTPConfig()),
			notification.WithDefaultTemplates(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create notification manager: %w", err)
		}
		sender = notification.NewOtpCodeSender(manager)
	}

	s.Directory = bo.directory
	if s.Directory == nil {
		s.Directory, err = loadDirectory(cfg.Server.ActorsFile)
		if err != nil {
			return nil, err
		}
	}

	s.Metrics = metrics.NewListener("")
	s.Events = mfa.NewDispatcher(mfa.LogListener{Logger: slog.Default()}, s.Metrics)
	s.Issuer = cfg.Jwt.NewIssuer()

	mfaConfig, err := cfg.Mfa.ToMfaConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build MFA configuration: %w", err)
	}
	svcOpts := append([]mfa.Option{
		mfa.WithConfig(mfaConfig),
		mfa.WithLocker(locker),
		mfa.WithEvents(s.Events),
	}, bo.extra...)

	drivers := mfa.NewRegistry(
		mfa.NewAuthenticatorDriver(box, svcOpts...),
		mfa.NewEmailOtpDriver(sender, svcOpts...),
	)
	s.Challenges = mfa.NewChallengeService(repo, drivers, s.Directory, s.Issuer, svcOpts...)
	s.Profiles = mfa.NewProfileService(repo, svcOpts...)
	s.Factors = mfa.NewFactorService(repo, drivers, s.Challenges, s.Profiles, svcOpts...)
	s.AuthFlow = mfa.NewAuthFlow(s.Directory, s.Directory, s.Issuer, s.Profiles, s.Challenges, svcOpts...)
	s.Prune = mfa.NewPruneService(repo, svcOpts...)

	slog.Info("MFA services ready",
		"persistence", cfg.Server.Persistence,
		"redis_lock", client != nil,
		"consumer_actors", s.Directory.Count(mfa.ContextConsumer),
		"admin_actors", s.Directory.Count(mfa.ContextAdmin))

	ok = true
	return s, nil
}

func loadDirectory(path string) (*actor.Directory, error) {
	if path == "" {
		slog.Warn("No actors file configured, starting with an empty directory")
		return actor.NewDirectory(), nil
	}
	d, err := actor.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Close releases the database pool and redis client.
func (s *Services) Close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			slog.Warn("Failed to close redis client", "err", err)
		}
		s.redis = nil
	}
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
}
