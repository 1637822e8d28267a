package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	"golang.org/x/sync/errgroup"

	"github.com/ninjaportal/portal-mfa/pkg/audit"
	"github.com/ninjaportal/portal-mfa/pkg/bootstrap"
	"github.com/ninjaportal/portal-mfa/pkg/config"
	"github.com/ninjaportal/portal-mfa/pkg/mfa/api"
	"github.com/ninjaportal/portal-mfa/pkg/ratelimit"
)

func main() {
	envFile := flag.String("env", ".env", "Optional .env file loaded before reading the environment")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	loadEnvFile(*envFile)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize MFA services", "err", err)
		os.Exit(1)
	}
	defer services.Close()

	result, err := bootstrap.BootstrapAdmin(ctx, bootstrap.AdminBootstrapConfig{
		AdminEmail:    cfg.Bootstrap.AdminEmail,
		AdminPassword: cfg.Bootstrap.AdminPassword,
		Directory:     services.Directory,
		ActorsFile:    cfg.Server.ActorsFile,
	})
	if err != nil {
		slog.Error("Admin bootstrap failed", "err", err)
		os.Exit(1)
	}
	bootstrap.PrintBootstrapResult(result)
	bootstrap.LogBootstrapSummary(result)

	var limiter *ratelimit.Middleware
	if rlConfig := cfg.RateLimit.ToRateLimitConfig(); rlConfig != nil {
		rlConfig.OnLimited = api.WriteRateLimited
		limiter = ratelimit.NewMiddleware(rlConfig)
		defer limiter.Close()
	}

	handle := api.NewHandle(services.Challenges, services.Profiles, services.Factors, services.AuthFlow, services.Directory)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)
	if cfg.Server.MetricsPath != "" {
		server.R.Handle(cfg.Server.MetricsPath, services.Metrics.Handler())
	}
	auditor := audit.NewMiddleware(audit.Config{Source: "portal-mfa"})
	server.R.Mount("/", api.Routes(handle, services.Issuer.JWTAuth(), limiter, auditor.AuditAuthMiddleware))

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Server.PruneInterval > 0 {
		g.Go(func() error {
			return services.Prune.Run(gctx, cfg.Server.PruneInterval)
		})
	}

	slog.Info("Portal MFA service ready",
		"base_url", cfg.Server.BaseURL,
		"persistence", cfg.Server.Persistence,
		"rate_limit", limiter != nil)

	server.Run()

	stop()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Background worker failed", "err", err)
	}
}

// loadEnvFile loads path into the environment when it exists. Variables
// already set win.
func loadEnvFile(path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Error("Failed to load .env file", "err", err, "path", path)
		return
	}
	slog.Info("Configuration loaded from .env file", "path", path)
}
