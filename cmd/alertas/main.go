package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alertas/alertas-admin/internal/alerts"
	alertshttp "github.com/alertas/alertas-admin/internal/alerts/http"
	"github.com/alertas/alertas-admin/internal/apiclient"
	"github.com/alertas/alertas-admin/internal/app"
	"github.com/alertas/alertas-admin/internal/auth"
	jobmetrics "github.com/alertas/alertas-admin/internal/jobs"
	"github.com/alertas/alertas-admin/internal/observability"
	"github.com/alertas/alertas-admin/internal/platform/cache"
	"github.com/alertas/alertas-admin/internal/platform/db"
	"github.com/alertas/alertas-admin/internal/shared"
	"github.com/alertas/alertas-admin/internal/telemetry"
	"github.com/alertas/alertas-admin/internal/view"
	"github.com/alertas/alertas-admin/jobs"
)

const idempotencyRetention = 7 * 24 * time.Hour

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	redisClient, err := cache.NewRedis(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	deps := alerts.ServiceDeps{
		Cache:   cache.New(redisClient, cfg.CacheTTL).WithLogger(logger),
		Metrics: jobMetrics,
		Logger:  logger,
	}

	var pool *pgxpool.Pool
	if cfg.PGDSN != "" {
		pool, err = db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			logger.Error("ensure schema", slog.Any("error", err))
			os.Exit(1)
		}
		idem := shared.NewIdempotencyStore(pool)
		deps.Audit = shared.NewAuditLogger(pool)
		deps.Idempotency = idem
		go cleanupIdempotency(ctx, idem, logger)
	} else {
		logger.Warn("PG_DSN not set, audit trail and forward idempotency keys disabled")
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	queue := jobs.NewClient(redisOpts)
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()
	deps.Queue = queue

	api := apiclient.New(apiclient.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.APITimeout,
		Logger:  logger,
	})
	service := alerts.NewService(api, deps)

	sessionManager := shared.NewSessionManager(redisClient, "alertas_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	authHandler := auth.NewHandler(logger, api, templates, sessionManager, csrfManager)
	alertsHandler := alertshttp.NewHandler(logger, service, templates, csrfManager, metrics, alertshttp.Config{
		ExternalSync:   cfg.FiltersExternalSync,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	collector := telemetry.NewCollector(telemetry.Config{
		ForwardURL: cfg.TelemetryCollectorURL,
		Registerer: metrics.Registerer(),
		Logger:     logger,
	}).WithUser(func(r *http.Request) string {
		return shared.SessionFromContext(r.Context()).User()
	})
	go collector.Run(ctx)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    authHandler,
		AlertsHandler:  alertsHandler,
		JobHandler:     jobs.NewHandler(inspector, logger),
		Telemetry:      collector,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	select {
	case <-collector.Done():
	case <-shutdownCtx.Done():
		logger.Warn("telemetry queue not drained")
	}
}

func cleanupIdempotency(ctx context.Context, store *shared.IdempotencyStore, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Cleanup(ctx, idempotencyRetention); err != nil {
				logger.Warn("idempotency cleanup", slog.Any("error", err))
			}
		}
	}
}
