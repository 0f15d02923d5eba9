package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"restaurant-fulfillment/internal/app"
	"restaurant-fulfillment/internal/config"
	"restaurant-fulfillment/internal/db"
	"restaurant-fulfillment/internal/logging"
)

func main() {
	cfg := config.FromEnv()
	logger := logging.New("worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DBConnString, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect db")
	}
	defer pool.Close()

	a, err := app.Build(ctx, cfg, pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("wire services")
	}
	defer a.Close()

	logger.Info().
		Dur("poll_interval", cfg.WorkerPollInterval).
		Int("batch_size", cfg.WorkerBatchSize).
		Msg("worker started")
	if err := a.Worker().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped")
		return
	}
	logger.Info().Msg("worker stopped")
}
