package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/orderbook-relay/internal/api"
	"github.com/rickgao/orderbook-relay/internal/auth"
	"github.com/rickgao/orderbook-relay/internal/config"
	"github.com/rickgao/orderbook-relay/internal/connection"
	"github.com/rickgao/orderbook-relay/internal/metrics"
	"github.com/rickgao/orderbook-relay/internal/poller"
	"github.com/rickgao/orderbook-relay/internal/version"
	"github.com/rickgao/orderbook-relay/internal/writer"
)

// terminal is a snapshot source that also drives the terminal lifecycle.
type terminal interface {
	poller.SnapshotSource
	Initialize(ctx context.Context, path string) error
	Login(ctx context.Context, login, password, server string) error
	Shutdown(ctx context.Context) error
	Close() error
}

func main() {
	configPath := flag.String("config", "", "path to config file (empty = environment variables)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the config")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to load env file", "path", *envFile, "error", err)
	}

	logger.Info("starting relay",
		"version", version.String(),
		"config", *configPath,
	)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("relay failed", "error", err)
		os.Exit(1)
	}
	logger.Info("relay stopped")
}

func loadConfig(path string) (*config.RelayConfig, error) {
	if path == "" {
		return config.LoadFromEnv()
	}
	return config.LoadAndValidate(path)
}

func run(cfg *config.RelayConfig, logger *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", cfg.Sampler.Timezone, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()

	source, err := openSource(ctx, cfg, reg, logger)
	if err != nil {
		return err
	}

	var (
		committer writer.Committer
		bw        *writer.BatchWriter
	)
	// Cleanup runs in reverse start order once the poller has drained.
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		closeAll(shutdownCtx, bw, source, committer, logger)
	}()

	if err := openTerminal(ctx, source, cfg.Terminal, logger); err != nil {
		return err
	}

	committer, err = writer.NewCommitter(ctx, cfg.Sink, logger)
	if err != nil {
		return fmt.Errorf("create %s committer: %w", cfg.Sink.Kind, err)
	}
	instrumented, err := metrics.InstrumentCommitter(reg, committer)
	if err != nil {
		return fmt.Errorf("instrument committer: %w", err)
	}
	committer = instrumented

	bw = writer.NewBatchWriter(writer.ConfigFrom(cfg.Writer), committer, logger)
	if err := bw.Start(context.Background()); err != nil {
		return fmt.Errorf("start batch writer: %w", err)
	}

	p := poller.New(poller.Config{
		Symbol:          cfg.Sampler.Symbol,
		Timezone:        cfg.Sampler.Timezone,
		Location:        loc,
		PollInterval:    cfg.Sampler.PollInterval,
		PollTimeout:     cfg.Source.Timeout,
		ShutdownTimeout: 10 * time.Second,
	}, source, bw, logger)

	if err := errors.Join(
		metrics.RegisterPoller(reg, cfg.Sampler.Symbol, p.Stats),
		metrics.RegisterWriter(reg, committer.Name(), bw.Stats),
	); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHandler(cfg, reg, p, bw, source),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	logger.Info("relay running",
		"symbol", cfg.Sampler.Symbol,
		"source", cfg.Source.Kind,
		"sink", cfg.Sink.Kind,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	return g.Wait()
}

// openSource builds and connects the source selected by cfg.Source.Kind.
func openSource(ctx context.Context, cfg *config.RelayConfig, reg *prometheus.Registry, logger *slog.Logger) (terminal, error) {
	var signer auth.Signer
	if cfg.Source.KeyID != "" {
		creds, err := auth.LoadCredentials(cfg.Source.KeyID, cfg.Source.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load credentials: %w", err)
		}
		signer = creds
	}

	switch cfg.Source.Kind {
	case config.SourceGateway:
		opts := []api.ClientOption{
			api.WithLogger(logger),
			api.WithTimeout(cfg.Source.Timeout),
		}
		if signer != nil {
			opts = append(opts, api.WithSigner(signer))
		}
		return api.NewClient(cfg.Source.URL, opts...), nil

	case config.SourceBridge:
		streamCfg := connection.DefaultStreamConfig()
		streamCfg.Client.URL = cfg.Source.URL
		streamCfg.Client.Signer = signer
		streamCfg.CommandTimeout = cfg.Source.Timeout

		stream := connection.NewBookStream(streamCfg, logger)
		if err := stream.Connect(ctx); err != nil {
			return nil, err
		}
		if err := metrics.RegisterStream(reg, stream.Stats); err != nil {
			stream.Close()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		return stream, nil

	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}

// openTerminal initializes the terminal and logs in when credentials are
// configured. A failed login is logged and the relay carries on with the
// terminal's current session.
func openTerminal(ctx context.Context, t terminal, cfg config.TerminalConfig, logger *slog.Logger) error {
	if err := t.Initialize(ctx, cfg.Path); err != nil {
		return fmt.Errorf("initialize terminal: %w", err)
	}
	logger.Info("terminal initialized", "path", cfg.Path)

	if !cfg.HasCredentials() {
		return nil
	}
	logger.Info("logging in", "server", cfg.Server)
	if err := t.Login(ctx, cfg.Login, cfg.Password, cfg.Server); err != nil {
		logger.Warn("terminal login failed", "server", cfg.Server, "error", err)
	}
	return nil
}

// closeAll stops the writer, shuts the terminal down and closes connections.
// Every step runs even if an earlier one fails.
func closeAll(ctx context.Context, bw *writer.BatchWriter, t terminal, c writer.Committer, logger *slog.Logger) {
	if bw != nil {
		if err := bw.Stop(ctx); err != nil {
			logger.Error("final flush failed", "error", err)
		}
	}
	if t != nil {
		if err := t.Shutdown(ctx); err != nil {
			logger.Warn("terminal shutdown failed", "error", err)
		}
		if err := t.Close(); err != nil {
			logger.Warn("failed to close source", "error", err)
		}
	}
	if c != nil {
		if err := c.Close(); err != nil {
			logger.Warn("failed to close committer", "error", err)
		}
	}
}

// createHandler serves /health and the Prometheus endpoint.
func createHandler(cfg *config.RelayConfig, reg *prometheus.Registry, p *poller.Poller, bw *writer.BatchWriter, source terminal) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, metrics.Handler(reg))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		state := p.State()
		pollerStats := p.Stats()
		health.Components["poller"] = map[string]any{
			"state":     state.String(),
			"symbol":    cfg.Sampler.Symbol,
			"emits":     pollerStats.Emits,
			"last_emit": pollerStats.LastEmit,
		}
		if state == poller.StateTerminated {
			health.Status = "unhealthy"
		}

		writerStats := bw.Stats()
		health.Components["writer"] = map[string]any{
			"sink":      cfg.Sink.Kind,
			"buffered":  writerStats.Buffered,
			"committed": writerStats.Committed,
			"dropped":   writerStats.DroppedRecords,
		}

		if stream, ok := source.(*connection.BookStream); ok {
			st := stream.Stats()
			health.Components["bridge"] = map[string]any{
				"connected":  st.Connected,
				"reconnects": st.Reconnects,
			}
			if !st.Connected && health.Status == "healthy" {
				health.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
