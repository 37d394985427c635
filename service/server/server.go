// Package server exposes the attestation service over HTTP: transfer
// fetching, categorization, tax estimates, and the async attestation
// job lifecycle.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veritax/veritax/service/config"
	"github.com/veritax/veritax/service/ens"
	"github.com/veritax/veritax/service/jobs"
	"github.com/veritax/veritax/service/ledger"
	"github.com/veritax/veritax/service/metrics"
	"github.com/veritax/veritax/service/prover"
)

// TransferFetcher fetches normalized ledger rows for one wallet. Both
// the Alchemy and Solana clients satisfy it.
type TransferFetcher interface {
	GetTransfers(ctx context.Context, wallet string) ([]ledger.LedgerRow, error)
}

// NameResolver resolves an ENS name to its subdomains.
type NameResolver interface {
	ResolveSubdomains(ctx context.Context, rootName string) ([]ens.ResolvedName, error)
}

// Server is the HTTP server for the attestation service.
type Server struct {
	addr         string
	cfg          *config.Config
	store        *jobs.Store
	runner       jobs.Runner
	prover       prover.Prover
	categorizer  *ledger.Categorizer
	transfers    TransferFetcher
	resolver     NameResolver
	ssePublisher *SSEPublisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	server       *http.Server
}

// New creates an HTTP server with the given dependencies.
// transfers, resolver, ssePublisher, and metrics are optional; their
// endpoints are disabled when nil.
func New(
	addr string,
	cfg *config.Config,
	store *jobs.Store,
	runner jobs.Runner,
	p prover.Prover,
	categorizer *ledger.Categorizer,
	transfers TransferFetcher,
	resolver NameResolver,
	ssePublisher *SSEPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Server {
	return &Server{
		addr:         addr,
		cfg:          cfg,
		store:        store,
		runner:       runner,
		prover:       p,
		categorizer:  categorizer,
		transfers:    transfers,
		resolver:     resolver,
		ssePublisher: ssePublisher,
		metrics:      m,
		logger:       logger,
	}
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Attestation job lifecycle
	mux.Handle("POST /api/v1/attestations", s.instrument("/api/v1/attestations",
		handleCreateAttestation(s.store, s.runner, s.logger)))
	mux.Handle("GET /api/v1/attestations/{id}", s.instrument("/api/v1/attestations/{id}",
		handleGetAttestation(s.store, s.logger)))
	mux.Handle("GET /api/v1/vkey", handleGetVKey(s.prover))

	// Synchronous tax estimate, no proof attached
	mux.Handle("POST /api/v1/tax/estimate", s.instrument("/api/v1/tax/estimate",
		handleTaxEstimate(s.categorizer, s.logger)))

	// Wallet data collaborators
	if s.transfers != nil {
		mux.Handle("POST /api/v1/transfers", s.instrument("/api/v1/transfers",
			handleGetTransfers(s.transfers, s.categorizer, s.logger)))
	} else {
		s.logger.Warn("transfer fetcher not configured, /api/v1/transfers disabled")
	}
	if s.resolver != nil {
		mux.Handle("GET /api/v1/ens/{name}", s.instrument("/api/v1/ens/{name}",
			handleResolveENS(s.resolver, s.logger)))
	} else {
		s.logger.Warn("ens resolver not configured, /api/v1/ens disabled")
	}

	// SSE streaming of attestation lifecycle events
	if s.ssePublisher != nil {
		mux.Handle("GET /api/v1/attestations/{id}/stream",
			handleStreamAttestation(s.ssePublisher, s.store, s.logger))
		s.logger.Info("SSE streaming endpoint enabled")
	} else {
		s.logger.Warn("SSE publisher not configured, streaming endpoint disabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	handler := corsMiddleware(mux)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// instrument wraps a handler with HTTP metrics when a collector is
// configured.
func (s *Server) instrument(name string, h http.Handler) http.Handler {
	if s.metrics == nil {
		return h
	}
	return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close SSE publisher first (disconnects all clients)
	if s.ssePublisher != nil {
		s.ssePublisher.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
