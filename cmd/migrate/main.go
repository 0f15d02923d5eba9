package main

import (
	"context"
	"flag"

	"restaurant-fulfillment/internal/config"
	"restaurant-fulfillment/internal/db"
	"restaurant-fulfillment/internal/logging"
	"restaurant-fulfillment/internal/migrate"
)

func main() {
	down := flag.Int("down", 0, "roll back this many migrations instead of applying")
	flag.Parse()

	cfg := config.FromEnv()
	logger := logging.New("migrate", cfg.LogLevel)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect db")
	}
	defer pool.Close()

	if *down > 0 {
		if err := migrate.Down(ctx, pool, *down); err != nil {
			logger.Fatal().Err(err).Msg("roll back migrations")
		}
		logger.Info().Int("steps", *down).Msg("migrations rolled back")
		return
	}
	if err := migrate.Apply(ctx, pool, logger); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}
	logger.Info().Msg("migrations applied")
}
