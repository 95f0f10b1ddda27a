// Package main applies the conversion ledger's schema migrations.
package main

import (
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/levelport/internal/config"
	"github.com/cory-johannsen/levelport/internal/observability"
	"github.com/cory-johannsen/levelport/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/levelport.yaml", "path to configuration file")
	dir := flag.String("dir", "migrations", "migrations directory")
	direction := flag.String("direction", "up", "migration direction: up or down")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	var down bool
	switch *direction {
	case "up":
	case "down":
		down = true
		*steps = -*steps
	default:
		logger.Fatal("invalid direction, must be up or down", zap.String("direction", *direction))
	}

	res, err := postgres.Migrate(cfg.Database.DSN(), *dir, *steps, down)
	if err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	fields := []zap.Field{
		zap.Uint("version", res.Version),
		zap.Bool("dirty", res.Dirty),
		zap.Duration("elapsed", time.Since(start)),
	}
	if res.NoChange {
		logger.Info("no changes", fields...)
		return
	}
	logger.Info("migrated", append(fields, zap.String("direction", *direction))...)
}
