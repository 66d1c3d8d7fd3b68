package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/brojonat/daiwatch/service/config"
	"github.com/brojonat/daiwatch/service/db"
	"github.com/brojonat/daiwatch/service/ethereum"
	"github.com/brojonat/daiwatch/service/metrics"
	natspkg "github.com/brojonat/daiwatch/service/nats"
	"github.com/brojonat/daiwatch/service/server"
	"github.com/brojonat/daiwatch/service/transfers"
	"github.com/brojonat/daiwatch/service/watcher"
)

func main() {
	// Load .env files for local development. In production, env vars are set directly.
	// Values already in the environment win, and .env.local wins over .env.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"contract", cfg.DAIContractAddress,
		"block_window", cfg.BlockWindow,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics(nil)

	// Ethereum RPC clients. Subscriptions need a websocket endpoint; without
	// one the watcher polls over HTTP.
	rpcClient, err := ethereum.NewRPCClient(ctx, cfg.EthRPCURL)
	if err != nil {
		logger.Error("failed to connect to ethereum node", "url", cfg.RedactedRPCURL(), "error", err)
		os.Exit(1)
	}
	defer rpcClient.Close()

	var liveClient ethereum.RPCClient
	if cfg.EthWSURL != "" {
		liveClient, err = ethereum.NewRPCClient(ctx, cfg.EthWSURL)
		if err != nil {
			logger.Warn("failed to connect websocket endpoint, falling back to polling", "error", err)
			liveClient = nil
		} else {
			defer liveClient.Close()
		}
	}

	contract, err := ethereum.NewTokenContract(common.HexToAddress(cfg.DAIContractAddress))
	if err != nil {
		logger.Error("failed to load token contract", "error", err)
		os.Exit(1)
	}

	ethClient, err := ethereum.NewClient(rpcClient, liveClient, contract, ethereum.ClientConfig{
		Concurrency:     cfg.RPCConcurrency,
		PollInterval:    cfg.PollInterval,
		HeaderCacheSize: cfg.HeaderCacheSize,
	}, m, logger)
	if err != nil {
		logger.Error("failed to create ethereum client", "error", err)
		os.Exit(1)
	}
	logger.Info("initialized ethereum client",
		"rpc_url", cfg.RedactedRPCURL(),
		"websocket", cfg.EthWSURL != "",
	)

	feed := transfers.NewFeed(cfg.MaxTransfers, logger)
	feed.OnDrop(m.RecordFeedEventDropped)

	wcfg := watcher.Config{
		Source:      ethClient,
		Feed:        feed,
		Contract:    contract.Address().Hex(),
		BlockWindow: cfg.BlockWindow,
		Metrics:     m,
		Logger:      logger,
	}

	// Optional sinks
	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to initialize NATS publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		wcfg.Publisher = publisher
	}

	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		store := db.NewStore(pool, m)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Error("failed to apply database schema", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to database")
		wcfg.Archiver = store
	}

	w := watcher.New(wcfg)

	httpServer := server.New(cfg.ServerAddr, cfg, feed, m, logger)
	if err := httpServer.WithTemplates(); err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	// The watcher stopping is not fatal: the dashboard keeps serving the
	// last list it saw.
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("watcher stopped", "error", err)
		}
	}()

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Tear down the subscription before the HTTP server.
		cancel()
		<-watcherDone

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
