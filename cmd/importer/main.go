package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"restaurant-fulfillment/internal/config"
	"restaurant-fulfillment/internal/db"
	"restaurant-fulfillment/internal/importer"
	"restaurant-fulfillment/internal/logging"
	inventoryrepo "restaurant-fulfillment/internal/repository/inventory"
	menurepo "restaurant-fulfillment/internal/repository/menu"
)

func main() {
	var filePath string
	flag.StringVar(&filePath, "file", "", "Path to a menu recipe or ingredient stock CSV")
	flag.Parse()

	if filePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.FromEnv()
	logger := logging.New("importer", cfg.LogLevel)
	ctx := context.Background()

	kind, err := detect(filePath)
	if err != nil {
		logger.Fatal().Err(err).Str("file", filePath).Msg("detect csv kind")
	}

	pool, err := db.Connect(ctx, cfg.DBConnString, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect db")
	}
	defer pool.Close()

	f, err := os.Open(filePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("open file")
	}
	defer f.Close()

	imp := importer.NewCSVImporter(f, menurepo.NewPostgres(pool, logger), inventoryrepo.NewPostgres(pool, logger))

	start := time.Now()
	count, err := imp.Run(ctx)
	if err != nil {
		logger.Fatal().Err(err).Int("imported", count).Msg("import failed")
	}

	fmt.Printf("Imported %d %s rows in %s\n", count, kind, time.Since(start).Truncate(time.Millisecond))
}

func detect(path string) (importer.Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return importer.DetectKind(f)
}
