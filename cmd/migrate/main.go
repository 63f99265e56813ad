package main

import (
	"context"
	"flag"
	"log"

	"github.com/byteball/btc-exchange/pkg/config"
	"github.com/byteball/btc-exchange/pkg/logger"
	"github.com/byteball/btc-exchange/pkg/migration"
	"github.com/byteball/btc-exchange/pkg/postgresql"
)

func main() {
	dir := flag.String("dir", "migrations", "directory with migration files")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.NewLogger(logger.WithLoggingLevel(logger.Level(cfg.App.LogLevel)))
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer lg.Sync()

	db, err := postgresql.NewClient(ctx, cfg.Postgres)
	if err != nil {
		lg.Error(err)
		return
	}
	defer db.Close()

	runner := migration.NewRunner(db, migration.Config{MigrationDir: *dir})
	if err := runner.Up(ctx); err != nil {
		lg.Error(err)
		return
	}

	lg.Info("migrations applied", logger.Field{Key: "dir", Value: *dir})
}
