package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/ninjaportal/portal-mfa/pkg/bootstrap"
	"github.com/ninjaportal/portal-mfa/pkg/config"
)

func main() {
	days := flag.Int("days", 0, "Delete challenges that expired more than this many days ago (0 uses PORTAL_MFA_CHALLENGE_PRUNE_AFTER_DAYS)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	services, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize MFA services", "err", err)
		os.Exit(1)
	}
	defer services.Close()

	var n int64
	if *days > 0 {
		n, err = services.Prune.Prune(ctx, *days)
	} else {
		n, err = services.Prune.PruneConfigured(ctx)
	}
	if err != nil {
		slog.Error("Failed to prune MFA challenges", "err", err)
		services.Close()
		os.Exit(1)
	}
	fmt.Printf("Pruned %d MFA challenge(s).\n", n)
}
