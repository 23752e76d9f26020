package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/segyhp/loan-ledger/internal/cache"
	"github.com/segyhp/loan-ledger/internal/config"
	"github.com/segyhp/loan-ledger/internal/handler"
	"github.com/segyhp/loan-ledger/internal/logger"
	"github.com/segyhp/loan-ledger/internal/metrics"
	"github.com/segyhp/loan-ledger/internal/repository"
	"github.com/segyhp/loan-ledger/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()
	zap.ReplaceGlobals(appLogger)

	appLogger.Info("starting ledger scheduler")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN())
	if err != nil {
		appLogger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	// Shares the API cache so repairs invalidate cached loans.
	var loanCache cache.LoanCache = cache.NoopCache{}
	redisClient, err := cache.NewClient(ctx, cfg.Redis)
	if err != nil {
		appLogger.Warn("redis unavailable, cache invalidation disabled", zap.Error(err))
	} else if redisClient != nil {
		defer redisClient.Close()
		loanCache = cache.NewRedisLoanCache(redisClient, cfg.Redis.CacheTTL)
	}

	registry := prometheus.NewRegistry()
	metricsServer := startMetricsServer(cfg.Scheduler.MetricsAddr, registry, appLogger)

	store := repository.NewPostgresStore(db, cfg.Database.TxTimeout)
	loanService := service.NewLoanService(store, loanCache, metrics.New(registry), appLogger, cfg)

	// Initialize cron scheduler
	c := cron.New(cron.WithSeconds(), cron.WithLocation(cfg.GetSchedulerLocation()))

	// Schedule tasks
	if err := setupCronJobs(ctx, c, cfg, loanService, appLogger); err != nil {
		appLogger.Fatal("failed to schedule jobs", zap.Error(err))
	}

	// Start the scheduler
	c.Start()
	appLogger.Info("scheduler started", zap.String("reconcile_schedule", cfg.Scheduler.ReconcileSchedule))

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down scheduler")
	cancel()
	<-c.Stop().Done()

	if metricsServer != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancelShutdown()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("metrics listener shutdown failed", zap.Error(err))
		}
	}
	appLogger.Info("scheduler stopped")
}

// startMetricsServer exposes the scheduler's reconciliation metrics. An empty
// or "off" address disables the listener.
func startMetricsServer(addr string, gatherer prometheus.Gatherer, logger *zap.Logger) *http.Server {
	if addr == "" || addr == "off" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler.NewMetricsHandler(gatherer))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics listener starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", zap.Error(err))
		}
	}()
	return server
}

func setupCronJobs(ctx context.Context, c *cron.Cron, cfg *config.Config, loanService *service.LoanService, logger *zap.Logger) error {
	_, err := c.AddFunc(cfg.Scheduler.ReconcileSchedule, func() {
		logger.Info("running balance reconciliation", zap.Bool("repair", cfg.Scheduler.Repair))

		report, err := loanService.ReconcileBalances(ctx, cfg.Scheduler.Repair)
		if err != nil {
			logger.Error("balance reconciliation failed", zap.Error(err))
		}
		if report != nil {
			logger.Info("balance reconciliation finished",
				zap.Int("checked", report.Checked),
				zap.Int("drifts", len(report.Drifts)),
				zap.Int("failures", report.Failures),
			)
		}
	})
	return err
}
