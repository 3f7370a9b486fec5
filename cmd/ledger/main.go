package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/pj-ledger-go/internal/config"
	"github.com/boddenberg/pj-ledger-go/internal/handler"
	"github.com/boddenberg/pj-ledger-go/internal/infra/cache"
	"github.com/boddenberg/pj-ledger-go/internal/infra/clock"
	"github.com/boddenberg/pj-ledger-go/internal/infra/observability"
	"github.com/boddenberg/pj-ledger-go/internal/infra/resilience"
	"github.com/boddenberg/pj-ledger-go/internal/infra/store"
	"github.com/boddenberg/pj-ledger-go/internal/infra/store/bolt"
	"github.com/boddenberg/pj-ledger-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("db_path", cfg.DBPath),
		zap.String("ledger_timezone", cfg.LedgerTimezone),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
		zap.Duration("idempotency_ttl", cfg.IdempotencyTTL),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "pj-ledger")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Clock ---
	loc, err := time.LoadLocation(cfg.LedgerTimezone)
	if err != nil {
		logger.Fatal("invalid ledger timezone", zap.String("timezone", cfg.LedgerTimezone), zap.Error(err))
	}
	clk := clock.NewSystem(loc)

	// --- Store ---
	boltStore, err := bolt.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to open ledger database", zap.String("path", cfg.DBPath), zap.Error(err))
	}
	defer boltStore.Close()

	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("ledger-store")
	ledgerStore := store.NewResilient(boltStore, cb, resilienceCfg, metrics, logger)

	// --- Idempotency cache ---
	idempotency := cache.New[string](cfg.IdempotencyTTL)

	// --- Services ---
	locks := service.NewAccountLocks()
	accountSvc := service.NewAccountService(ledgerStore, clk, locks, metrics, logger)
	ledgerSvc := service.NewLedgerService(
		ledgerStore,
		clk,
		idempotency,
		resilience.NewBulkhead(cfg.MaxConcurrency),
		locks,
		metrics,
		logger,
	)

	// --- Router ---
	router := handler.NewRouter(accountSvc, ledgerSvc, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
