// initdb creates the orderbook_data hypertable in TimescaleDB.
// Usage: go run ./cmd/initdb --config configs/relay.example.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/rickgao/orderbook-relay/internal/config"
	"github.com/rickgao/orderbook-relay/internal/database"
)

func main() {
	configPath := flag.String("config", "", "path to config file (empty = environment variables)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the config")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to load env file", "path", *envFile, "error", err)
	}

	var (
		cfg *config.RelayConfig
		err error
	)
	if *configPath == "" {
		cfg, err = config.LoadFromEnv()
	} else {
		cfg, err = config.LoadAndValidate(*configPath)
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db := cfg.Sink.Timescale
	logger.Info("connecting to database",
		"host", db.Host,
		"port", db.Port,
		"database", db.Name,
	)

	pool, err := database.Connect(ctx, db)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool, logger); err != nil {
		logger.Error("failed to create schema", "error", err)
		pool.Close()
		os.Exit(1)
	}
}
