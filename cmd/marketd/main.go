package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"marketplaced/config"
	"marketplaced/core"
	"marketplaced/observability/logging"
	"marketplaced/observability/otel"
	"marketplaced/rpc"
	"marketplaced/storage"
)

const envEnvironment = "MARKET_ENV"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	stdio := flag.Bool("stdio", false, "Serve line-delimited JSON-RPC over stdin/stdout instead of HTTP")
	memory := flag.Bool("memory", false, "DEV ONLY: keep all state in memory instead of the data directory")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	env := strings.TrimSpace(os.Getenv(envEnvironment))
	if env == "" {
		env = cfg.Environment
	}
	var logger *slog.Logger
	if cfg.LogFile != "" {
		logger = logging.SetupWithRotation("marketd", env, cfg.LogFile)
	} else {
		logger = logging.Setup("marketd", env)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Metrics || cfg.Telemetry.Traces {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "marketd",
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("Failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("Telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	var db storage.Database
	if *memory {
		db = storage.NewMemDB()
	} else {
		leveldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open database: %v", err))
		}
		db = leveldb
	}
	defer db.Close()

	var nodeOpts []core.NodeOption
	if cfg.AllowDevFaucet {
		logger.Warn("Dev faucet enabled; never run this configuration in production")
		nodeOpts = append(nodeOpts, core.WithDevFaucet())
	}
	node := core.NewNode(db, nodeOpts...)
	logger.Info("Marketplace node ready",
		slog.String("network", cfg.NetworkName),
		slog.String("program", node.Program().String()),
	)

	server := rpc.NewServer(node,
		rpc.WithAuthToken(cfg.Token()),
		rpc.WithRateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		rpc.WithLogger(logger),
	)

	if *stdio {
		if err := server.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Stdio server failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	httpSrv := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting JSON-RPC server", slog.String("addr", cfg.RPCAddress))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server failed", slog.Any("error", err))
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Graceful shutdown failed", slog.Any("error", err))
		}
	}
}
