package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ninjaportal/portal-mfa/pkg/config"
	"github.com/ninjaportal/portal-mfa/pkg/mfa/migrations"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [up|down]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	direction := "up"
	if flag.NArg() > 0 {
		direction = flag.Arg(0)
	}

	var dbConfig config.DatabaseConfig
	if err := cleanenv.ReadEnv(&dbConfig); err != nil {
		slog.Error("Failed to read database configuration", "err", err)
		os.Exit(1)
	}

	if err := migrations.Run(dbConfig.ToDatabaseURL(), direction); err != nil {
		slog.Error("Migration failed", "direction", direction, "db", dbConfig.Database, "host", dbConfig.Host, "err", err)
		os.Exit(1)
	}
	slog.Info("Migration complete", "direction", direction, "db", dbConfig.Database)
}
