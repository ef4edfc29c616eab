package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	torbithttp "github.com/RedBackRubbish/torbit/internal/adapter/http"
	"github.com/RedBackRubbish/torbit/internal/adapter/mcp"
	natssink "github.com/RedBackRubbish/torbit/internal/adapter/nats"
	"github.com/RedBackRubbish/torbit/internal/adapter/natskv"
	oteladapter "github.com/RedBackRubbish/torbit/internal/adapter/otel"
	"github.com/RedBackRubbish/torbit/internal/adapter/ristretto"
	"github.com/RedBackRubbish/torbit/internal/adapter/tiered"
	"github.com/RedBackRubbish/torbit/internal/adapter/ws"
	"github.com/RedBackRubbish/torbit/internal/config"
	"github.com/RedBackRubbish/torbit/internal/domain/pricing"
	"github.com/RedBackRubbish/torbit/internal/history"
	"github.com/RedBackRubbish/torbit/internal/logger"
	"github.com/RedBackRubbish/torbit/internal/middleware"
	"github.com/RedBackRubbish/torbit/internal/port/cache"
	"github.com/RedBackRubbish/torbit/internal/resilience"
	"github.com/RedBackRubbish/torbit/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"default_limit", cfg.Budget.DefaultLimit,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---
	var metrics *oteladapter.Metrics
	if cfg.Otel.Enabled {
		shutdown, err := oteladapter.Setup(ctx, cfg.Logging.Service, cfg.Otel.Endpoint)
		if err != nil {
			return fmt.Errorf("otel: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				slog.Error("otel shutdown failed", "error", err)
			}
		}()
		metrics, err = oteladapter.NewMetrics()
		if err != nil {
			return fmt.Errorf("otel metrics: %w", err)
		}
	}

	// --- Audit sink (optional) ---
	var sink *natssink.Sink
	if cfg.NATS.URL != "" {
		sink, err = natssink.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = sink.Close() }()
	}

	// --- Core service ---
	hub := ws.NewHub()
	ring := history.NewRing(cfg.History.MaxSummaries)
	table := pricingTable(cfg)

	meter := service.NewMeterService(table, cfg.Budget.DefaultLimit, resilience.Limits{
		MaxSpend:    cfg.Breaker.MaxSpend,
		MaxRetries:  cfg.Breaker.MaxRetries,
		MaxWallTime: cfg.Breaker.MaxWallTime,
	}, ring)
	meter.SetBroadcaster(hub)
	if sink != nil {
		meter.SetAuditSink(sink)
	}
	if metrics != nil {
		meter.SetMetrics(metrics)
	}

	// --- Idempotency cache: in-process L1, NATS KV L2 when available ---
	idemCache, err := buildIdempotencyCache(ctx, cfg, sink)
	if err != nil {
		return fmt.Errorf("idempotency cache: %w", err)
	}

	// --- MCP ---
	var mcpServer *mcp.Server
	if cfg.MCP.Enabled {
		mcpServer = mcp.NewServer(
			mcp.ServerConfig{Addr: cfg.MCP.Addr, Name: cfg.Logging.Service, Version: "0.1.0"},
			mcp.ServerDeps{StatusReader: meter, BreakerReader: meter, HistoryReader: meter},
		)
		if err := mcpServer.Start(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
	}

	// --- HTTP ---
	r := chi.NewRouter()
	r.Use(torbithttp.CORS(cfg.Server.CORSOrigin))
	r.Use(torbithttp.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(torbithttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	if cfg.Otel.Enabled {
		r.Use(oteladapter.HTTPMiddleware(cfg.Logging.Service))
	}
	r.Use(middleware.Auth(cfg.Auth.HashedKeys, cfg.Auth.Enabled))
	r.Use(middleware.Idempotency(idemCache, cfg.Cache.IdempotencyTTL))

	r.Get("/health", healthHandler(cfg, sink))
	r.Get("/ws", hub.HandleWS)
	torbithttp.MountRoutes(r, torbithttp.NewHandlers(meter))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if mcpServer != nil {
			if err := mcpServer.Stop(shutdownCtx); err != nil {
				slog.Error("mcp shutdown failed", "error", err)
			}
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// pricingTable builds the immutable pricing table from config.
func pricingTable(cfg *config.Config) *pricing.Table {
	return &pricing.Table{
		InputRate:         cfg.Pricing.InputRate,
		OutputRate:        cfg.Pricing.OutputRate,
		ToolPrices:        cfg.Pricing.ToolPrices,
		ToolBasePrice:     cfg.Pricing.ToolBasePrice,
		ProviderPrices:    cfg.Pricing.ProviderPrices,
		ProviderBasePrice: cfg.Pricing.ProviderBasePrice,
		Multipliers:       cfg.Pricing.Multipliers,
		PenaltyEnabled:    cfg.Penalty.Enabled,
		PenaltyMultiplier: cfg.Penalty.Multiplier,
	}
}

// buildIdempotencyCache assembles the replay cache: always an in-process
// ristretto L1, tiered with a NATS KV L2 when a NATS connection exists so
// replays are still deduplicated across restarts.
func buildIdempotencyCache(ctx context.Context, cfg *config.Config, sink *natssink.Sink) (cache.Cache, error) {
	l1, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		return l1, nil
	}

	kv, err := sink.KeyValue(ctx, "torbit-idempotency", cfg.Cache.IdempotencyTTL)
	if err != nil {
		slog.Warn("idempotency L2 unavailable, using in-process cache only", "error", err)
		return l1, nil
	}
	return tiered.New(l1, natskv.New(kv), cfg.Cache.IdempotencyTTL), nil
}

// healthHandler reports service health and configured collaborators.
func healthHandler(cfg *config.Config, sink *natssink.Sink) http.HandlerFunc {
	type healthStatus struct {
		Status string `json:"status"`
		NATS   string `json:"nats"`
		MCP    string `json:"mcp,omitempty"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{Status: "ok", NATS: "disabled"}
		if sink != nil {
			status.NATS = cfg.NATS.URL
		}
		if cfg.MCP.Enabled {
			status.MCP = cfg.MCP.Addr
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
