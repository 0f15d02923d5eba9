package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"restaurant-fulfillment/internal/app"
	"restaurant-fulfillment/internal/config"
	"restaurant-fulfillment/internal/db"
	"restaurant-fulfillment/internal/httpserver"
	"restaurant-fulfillment/internal/logging"
)

func main() {
	cfg := config.FromEnv()
	logger := logging.New("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := db.Connect(ctx, cfg.DBConnString, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to db")
	}
	defer dbpool.Close()

	a, err := app.Build(ctx, cfg, dbpool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("wire services")
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn().Err(err).Msg("close app")
		}
	}()

	srv, err := httpserver.New(cfg.HTTPAddr, logger, a.HTTPDeps())
	if err != nil {
		logger.Fatal().Err(err).Msg("init server")
	}

	workerDone := make(chan struct{})
	if cfg.RunWorkerInAPI {
		go func() {
			defer close(workerDone)
			if err := a.Worker().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("in-process worker stopped")
			}
		}()
	} else {
		close(workerDone)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Bool("worker", cfg.RunWorkerInAPI).Msg("starting http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("received signal, shutting down")
	case err := <-serverErr:
		logger.Error().Err(err).Msg("server error")
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		logger.Info().Msg("server stopped")
	}
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("worker did not stop before shutdown timeout")
	}
}
