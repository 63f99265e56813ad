package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/byteball/btc-exchange/internal/bootstrap"
	"github.com/byteball/btc-exchange/internal/gateway/bitcoin"
	"github.com/byteball/btc-exchange/pkg/config"
	"github.com/byteball/btc-exchange/pkg/logger"
	"github.com/byteball/btc-exchange/pkg/postgresql"
	"github.com/byteball/btc-exchange/pkg/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	redisClient, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		lg.Error(err)
		return
	}

	btcClient, err := bitcoin.NewClient(cfg.Bitcoin)
	if err != nil {
		lg.Error(err)
		return
	}
	defer btcClient.Shutdown()

	b := (&bootstrap.Bootstrap{}).Init(bootstrap.BootstrapConfig{
		DB:      db,
		Redis:   redisClient,
		Bitcoin: btcClient,
		Logger:  lg,
		Config:  cfg,
	})

	lg.Info("exchange started",
		logger.Field{Key: "app", Value: cfg.App.Name},
		logger.Field{Key: "environment", Value: cfg.App.Environment},
	)

	// Derive the opening quotes and drain anything left over from the
	// previous run before accepting new flow.
	b.Usecase.Instant.UpdateRates(ctx)
	b.Usecase.Settlement.SettleAll(ctx)

	go b.Usecase.DepositWatcher.Run(ctx)
	go b.Usecase.LedgerFeed.Run(ctx)
	go b.Usecase.CommandConsumer.Run(ctx)
	go b.Usecase.Solvency.Run(ctx)
	go b.Usecase.API.Run(ctx)

	<-ctx.Done()
	lg.Info("shutting down exchange")

	if err := b.Usecase.LedgerFeed.Close(); err != nil {
		lg.Error(err)
	}
	if err := b.Usecase.CommandConsumer.Close(); err != nil {
		lg.Error(err)
	}

	lg.Info("exchange stopped")
}
