// Package main is the entry point for the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/turf/internal/api"
	"github.com/onnwee/turf/internal/claim"
	"github.com/onnwee/turf/internal/config"
	"github.com/onnwee/turf/internal/events"
	"github.com/onnwee/turf/internal/health"
	"github.com/onnwee/turf/internal/ledger"
	"github.com/onnwee/turf/internal/middleware"
	"github.com/onnwee/turf/internal/proximity"
	"github.com/onnwee/turf/internal/session"
	"github.com/onnwee/turf/internal/store"
	"github.com/onnwee/turf/internal/stream"
	"github.com/onnwee/turf/internal/territory"
	"github.com/onnwee/turf/internal/tracing"
)

const (
	readinessInterval = 30 * time.Second
	sweepInterval     = time.Minute
	shutdownTimeout   = 10 * time.Second
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configFile := flag.String("config", "", "path to optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Turf API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configFile)
	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	if len(errs) > 0 {
		for _, err := range errs {
			logger.Error("configuration error", "error", err)
		}
		os.Exit(1)
	}
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	provider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "turf-api",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingProtocol,
		OTLPEndpoint: cfg.TracingEndpoint,
		SamplingRate: cfg.TracingSample,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down tracing", "error", err)
		}
	}()

	// Database
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	st := store.NewStore(db, logger)

	// Metrics registry with process and Go runtime collectors
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	httpMetrics := middleware.NewMetrics()
	sessionMetrics := session.NewMetrics()
	claimMetrics := claim.NewMetrics()
	for _, register := range []func(prometheus.Registerer) error{
		httpMetrics.Register,
		sessionMetrics.Register,
		claimMetrics.Register,
	} {
		if err := register(registry); err != nil {
			logger.Error("failed to register metrics", "error", err)
			os.Exit(1)
		}
	}

	// Event bus and WebSocket fan-out
	bus := events.NewBus()
	broadcaster := stream.NewBroadcaster()
	go broadcaster.Run(bus)
	defer broadcaster.Close()

	// Settlement ledger client doubles as the wallet
	ledgerClient := ledger.NewClient(cfg.LedgerRPCURL, os.Getenv("CLAIM_ACCOUNT"), cfg.DefaultNetworkID)
	if err := ledgerClient.Ping(ctx); err != nil {
		logger.Warn("settlement ledger not reachable at startup", "error", err)
	}
	go ledgerClient.WatchReadiness(ctx, readinessInterval)

	// Core pipeline. The claimed set is authoritative in memory and must be
	// reloaded from storage, otherwise overlap checks start from nothing
	// after a restart.
	repo := territory.NewInMemoryRepository()
	persisted, err := st.ListTerritories(ctx, "")
	if err != nil {
		logger.Error("failed to load persisted territories", "error", err)
		os.Exit(1)
	}
	if n, err := territory.Rehydrate(repo, persisted); err != nil {
		logger.Error("failed to rehydrate territories", "error", err)
		os.Exit(1)
	} else if n > 0 {
		logger.Info("territories rehydrated", "count", n)
	}
	recorder := session.NewRecorder(session.Config{
		AccuracyThresholdMeters:    cfg.AccuracyThresholdMeters,
		MinSampleIntervalMs:        cfg.MinSampleIntervalMs,
		MinMovementMeters:          cfg.MinMovementMeters,
		SmoothingFactor:            cfg.SmoothingFactor,
		MinTerritoryDistanceMeters: cfg.MinTerritoryDistanceMeters,
		MaxLoopDeviationMeters:     cfg.MaxLoopDeviationMeters,
	}, bus, sessionMetrics)
	synthesizer := territory.NewSynthesizer(repo, nil, nil, ledgerClient, bus)

	claimCfg := claim.DefaultConfig()
	claimCfg.BaseCosts = map[string]float64{cfg.DefaultNetworkID: cfg.BaseClaimCost}
	claimCfg.StalePendingAfter = time.Duration(cfg.ClaimStaleAfterSec) * time.Second
	claimCfg.RetainTerminal = time.Duration(cfg.ClaimRetainTermSec) * time.Second
	orchestrator := claim.NewOrchestrator(claimCfg, ledgerClient, ledgerClient, repo, synthesizer, bus, claimMetrics)
	monitor := proximity.NewMonitor(cfg.ProximityThresholdMeters, repo, bus)

	// Persist territory changes as they are announced
	go persistEvents(ctx, bus, repo, st, logger)

	// Expire settled transactions in the background
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if removed := orchestrator.SweepExpired(now); removed > 0 {
					logger.Debug("swept settled transactions", "count", removed)
				}
				for _, tx := range orchestrator.StalePending(now) {
					logger.Warn("claim transaction pending past threshold",
						"handle", tx.Handle,
						"territory_id", tx.TerritoryID,
						"submitted_at_ms", tx.SubmittedAtMs)
				}
			}
		}
	}()

	server := api.NewServer(recorder, synthesizer, orchestrator, monitor, repo, logger)
	server.SetSessionStore(st)
	mux := server.Routes()

	mux.Handle("GET /ws", broadcaster)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"healthy"}`)); err != nil {
			slog.Error("failed to write health response", "error", err)
		}
	})

	dbChecker := health.NewDBChecker(db)
	ledgerChecker := health.NewLedgerChecker(ledgerClient)
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := health.CheckAll(r.Context(), dbChecker, ledgerChecker); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"not_ready","error":%q}`, err.Error())
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	// Apply middleware: RequestID -> Tracing -> HTTPMetrics -> Logging
	handler := middleware.RequestID(
		middleware.Tracing("turf-api")(
			middleware.HTTPMetrics(httpMetrics)(
				middleware.Logging(logger)(mux))))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// persistEvents writes territory state changes to the database as they
// happen. Persistence failures are logged, never fatal.
func persistEvents(ctx context.Context, bus *events.Bus, repo territory.Repository, st *store.Store, logger *slog.Logger) {
	ch, cancel := bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.Kind {
			case events.KindTerritoryReady, events.KindClaimSubmitted, events.KindClaimConfirmed, events.KindClaimFailed:
				id := ""
				if ev.TerritoryReady != nil {
					id = ev.TerritoryReady.TerritoryID
				} else if ev.Claim != nil {
					id = ev.Claim.TerritoryID
				}
				if id == "" {
					continue
				}
				t, err := repo.Get(id)
				if err != nil {
					logger.Warn("territory missing during persistence", "territory_id", id, "error", err)
					continue
				}
				if err := st.SaveTerritory(ctx, t); err != nil {
					logger.Error("failed to persist territory", "territory_id", id, "error", err)
				}
			}
		}
	}
}
