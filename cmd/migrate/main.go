package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcpship/mcpship/internal/app/migrate"
	"github.com/mcpship/mcpship/pkg/config"
	"github.com/mcpship/mcpship/pkg/logger"
)

func main() {
	var (
		down   = flag.Bool("down", false, "roll back instead of applying")
		target = flag.Int64("to", 0, "target version for rollback (0 = latest only)")
		status = flag.Bool("status", false, "print migration status and exit")
	)
	flag.Parse()

	cfg := config.LoadShipConfig()
	log := logger.New("migrate", slog.LevelInfo)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()

	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}

	switch {
	case *status:
		err = runner.Status(ctx)
	case *down:
		err = runner.Down(ctx, *target)
	default:
		err = runner.Ensure(ctx)
	}
	if err != nil {
		log.Error("migration command failed", "error", err)
		os.Exit(1)
	}
}
