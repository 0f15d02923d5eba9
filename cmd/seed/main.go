package main

import (
	"context"

	"restaurant-fulfillment/internal/config"
	"restaurant-fulfillment/internal/db"
	"restaurant-fulfillment/internal/logging"
	couponrepo "restaurant-fulfillment/internal/repository/coupon"
	inventoryrepo "restaurant-fulfillment/internal/repository/inventory"
	menurepo "restaurant-fulfillment/internal/repository/menu"
	"restaurant-fulfillment/internal/seed"
)

func main() {
	cfg := config.FromEnv()
	logger := logging.New("seed", cfg.LogLevel)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect db")
	}
	defer pool.Close()

	err = seed.Apply(ctx,
		menurepo.NewPostgres(pool, logger),
		inventoryrepo.NewPostgres(pool, logger),
		couponrepo.NewPostgres(pool, logger),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed apply")
	}
	logger.Info().Msg("seed applied")
}
