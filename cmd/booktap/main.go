// booktap polls a terminal source and prints one line per book change.
// It writes nothing downstream; use it to check a gateway or bridge.
// Usage: go run ./cmd/booktap --config configs/relay.example.yaml --verbose
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rickgao/orderbook-relay/internal/api"
	"github.com/rickgao/orderbook-relay/internal/auth"
	"github.com/rickgao/orderbook-relay/internal/config"
	"github.com/rickgao/orderbook-relay/internal/connection"
	"github.com/rickgao/orderbook-relay/internal/dedup"
	"github.com/rickgao/orderbook-relay/internal/model"
	"github.com/rickgao/orderbook-relay/internal/poller"
)

func main() {
	configPath := flag.String("config", "", "path to config file (empty = environment variables)")
	symbol := flag.String("symbol", "", "symbol to watch (default from config)")
	verbose := flag.Bool("verbose", false, "print every level")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to load .env", "error", err)
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
	if *symbol != "" {
		cfg.Sampler.Symbol = *symbol
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, closeSource, err := dial(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open source", "error", err)
		os.Exit(1)
	}
	defer closeSource()

	sym := cfg.Sampler.Symbol
	if err := source.Attach(ctx, sym); err != nil {
		logger.Error("failed to attach", "symbol", sym, "error", err)
		return
	}
	defer source.Release(context.WithoutCancel(ctx), sym)

	fmt.Printf("Watching %s every %s (Ctrl+C to stop)\n\n", sym, cfg.Sampler.PollInterval)

	prev := dedup.None
	var polls, changes int
	ticker := time.NewTicker(cfg.Sampler.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\n%d polls, %d changes\n", polls, changes)
			return
		case <-ticker.C:
		}

		polls++
		snap, err := source.Poll(ctx, sym)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("poll failed", "error", err)
			}
			continue
		}
		if snap.Empty() {
			continue
		}

		fp := dedup.Compute(snap.Levels)
		if dedup.Equal(fp, prev) {
			continue
		}
		prev = fp
		changes++

		printSnapshot(snap, fp, *verbose)
	}
}

// dial opens the source named in the config. Only the snapshot calls are
// used, so the terminal is assumed to be initialized already.
func dial(ctx context.Context, cfg *config.RelayConfig, logger *slog.Logger) (poller.SnapshotSource, func(), error) {
	var signer auth.Signer
	if cfg.Source.KeyID != "" {
		creds, err := auth.LoadCredentials(cfg.Source.KeyID, cfg.Source.PrivateKeyPath)
		if err != nil {
			return nil, nil, err
		}
		signer = creds
	}

	switch cfg.Source.Kind {
	case config.SourceBridge:
		streamCfg := connection.DefaultStreamConfig()
		streamCfg.Client.URL = cfg.Source.URL
		streamCfg.Client.Signer = signer
		stream := connection.NewBookStream(streamCfg, logger)
		if err := stream.Connect(ctx); err != nil {
			return nil, nil, err
		}
		return stream, func() { stream.Close() }, nil
	default:
		client := api.NewClient(cfg.Source.URL,
			api.WithLogger(logger),
			api.WithTimeout(cfg.Source.Timeout),
			api.WithSigner(signer),
		)
		return client, func() { client.Close() }, nil
	}
}

func printSnapshot(snap model.Snapshot, fp dedup.Fingerprint, verbose bool) {
	ts := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] %s levels=%d fp=%s\n", ts, snap.Symbol, len(snap.Levels), fp)
	if !verbose {
		return
	}
	for i, l := range snap.Levels {
		fmt.Printf("    %2d %-7s %14.5f %10d %12.4f\n", i, l.Side(), l.Price, l.Volume, l.VolumeDbl)
	}
}
