package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/veritax/veritax/service/alchemy"
	"github.com/veritax/veritax/service/config"
	"github.com/veritax/veritax/service/db"
	"github.com/veritax/veritax/service/ens"
	"github.com/veritax/veritax/service/jobs"
	"github.com/veritax/veritax/service/ledger"
	"github.com/veritax/veritax/service/metrics"
	"github.com/veritax/veritax/service/nats"
	"github.com/veritax/veritax/service/prover"
	"github.com/veritax/veritax/service/server"
	"github.com/veritax/veritax/service/solana"
	"github.com/veritax/veritax/service/temporal"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"runner", cfg.Runner,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// The attestation archive is optional; without a database the
	// service keeps results in memory only.
	var archiver jobs.Archiver
	if cfg.DatabaseURL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		dbStore := db.NewStore(dbPool)
		if err := dbStore.Migrate(ctx); err != nil {
			logger.Error("failed to run database migrations", "error", err)
			os.Exit(1)
		}
		archiver = dbStore
		logger.Info("connected to database")
	} else {
		logger.Warn("DATABASE_URL not set, attestation archive disabled")
	}

	// Event publishing and SSE streaming both ride on NATS. Either can
	// fail independently without taking the service down.
	var publisher jobs.Publisher
	if natsPub, err := nats.NewPublisher(cfg.NATSURL, logger); err != nil {
		logger.Warn("failed to connect to NATS, attestation events disabled", "error", err)
	} else {
		defer natsPub.Close()
		publisher = natsPub
	}

	var ssePublisher *server.SSEPublisher
	if sse, err := server.NewSSEPublisher(cfg.NATSURL, logger); err != nil {
		logger.Warn("failed to connect to NATS, SSE streaming disabled", "error", err)
	} else {
		ssePublisher = sse
	}

	store := jobs.NewStore(logger)
	if cfg.JobRetention > 0 {
		go store.RunJanitor(ctx, time.Minute, cfg.JobRetention)
	}

	p := prover.NewLocalProver(logger)

	var runner jobs.Runner
	switch cfg.Runner {
	case config.RunnerTemporal:
		tc, err := temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
		if err != nil {
			logger.Error("failed to connect to temporal", "error", err)
			os.Exit(1)
		}
		defer tc.Close()
		runner = temporal.NewRunner(logger, store, tc)
	default:
		runner = jobs.NewAsyncRunner(logger, store, p, archiver, publisher)
	}

	categorizer := ledger.NewCategorizer(ledger.KnownContracts{
		Gains:  cfg.GainContracts,
		Losses: cfg.LossContracts,
		Yield:  cfg.YieldContracts,
	})

	evmClient := alchemy.NewClient(cfg.AlchemyURL, cfg.AlchemyAPIKey, alchemy.MainnetChainID, m, logger)
	solClient := solana.NewClient(solana.NewRPCClient(cfg.SolanaRPCURL), cfg.SolanaRPCURL, m, logger)
	fetcher := &chainFetcher{evm: evmClient, sol: solClient}

	resolver := ens.NewResolver(cfg.ENSSubgraphURL, m, logger)

	httpServer := server.New(
		cfg.ServerAddr,
		cfg,
		store,
		runner,
		p,
		categorizer,
		fetcher,
		resolver,
		ssePublisher,
		m,
		logger,
	)

	logger.Info("server initialized, all dependencies ready",
		"alchemy_url", cfg.AlchemyURL,
		"solana_rpc", cfg.SolanaRPCURL,
		"ens_subgraph", cfg.ENSSubgraphURL,
		"nats_url", cfg.NATSURL,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// chainFetcher routes wallet history lookups by address format: 0x
// prefixed addresses go to the Ethereum client, anything else is
// treated as a Solana base58 address.
type chainFetcher struct {
	evm *alchemy.Client
	sol *solana.Client
}

func (f *chainFetcher) GetTransfers(ctx context.Context, wallet string) ([]ledger.LedgerRow, error) {
	if strings.HasPrefix(strings.ToLower(wallet), "0x") {
		return f.evm.GetTransfers(ctx, wallet)
	}
	return f.sol.GetLedgerRows(ctx, wallet, 0)
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
