package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platterhq/platter/pkg/api"
	"github.com/platterhq/platter/pkg/audit"
	"github.com/platterhq/platter/pkg/config"
	"github.com/platterhq/platter/pkg/docstore"
	"github.com/platterhq/platter/pkg/middleware"
	"github.com/platterhq/platter/pkg/observability"
	"github.com/platterhq/platter/pkg/payfast"
	"github.com/platterhq/platter/pkg/subscription"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	store, err := docstore.NewFirestoreStore(ctx, cfg.Firestore)
	if err != nil {
		logger.WithError(err).Error("failed to connect to firestore")
		os.Exit(1)
	}

	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	recorder, auditDB := buildAuditRecorder(cfg, store, logger)
	dispatcher := audit.NewDispatcher(recorder, logger, metrics)
	go drainAuditErrors(dispatcher, logger)

	var redisClient *redis.Client
	var limiter *middleware.RateLimiter
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		limiter = middleware.NewRateLimiter(redisClient, middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Redis.RateLimitPerMinute,
			WindowDuration:    time.Minute,
		}, logger)
	}

	verifier, err := buildVerifier(ctx, cfg, store)
	if err != nil {
		logger.WithError(err).Error("failed to initialize token verifier")
		os.Exit(1)
	}

	provider := payfast.NewClient(cfg.PayFast, logger)
	resolver := subscription.NewTokenResolver(store, logger, metrics)
	service := subscription.NewService(store, provider, resolver, dispatcher, logger, metrics)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      api.NewServer(service, verifier, limiter, logger, metrics),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthServer := startHealthServer(cfg, store, auditDB, redisClient, registry, logger)

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("health-server", func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc("audit", func(context.Context) error {
		return dispatcher.Close()
	})
	shutdown.RegisterShutdownFunc("docstore", func(context.Context) error {
		return store.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc("redis", func(context.Context) error {
			return redisClient.Close()
		})
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("subscription API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("server stopped unexpectedly")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// buildAuditRecorder always records to the document store and fans out to
// Postgres when configured.
func buildAuditRecorder(cfg *config.Config, store docstore.Store, logger *observability.Logger) (audit.Recorder, *sql.DB) {
	storeRecorder := audit.NewStoreRecorder(store)
	if cfg.Audit.PostgresURL == "" {
		return storeRecorder, nil
	}

	db, err := sql.Open("postgres", cfg.Audit.PostgresURL)
	if err != nil {
		logger.WithError(err).Warn("audit postgres unavailable, using document store only")
		return storeRecorder, nil
	}
	db.SetMaxOpenConns(cfg.Audit.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Audit.MaxIdleConns)

	dbRecorder, err := audit.NewDBRecorder(db)
	if err != nil {
		logger.WithError(err).Warn("audit postgres unavailable, using document store only")
		_ = db.Close()
		return storeRecorder, nil
	}
	return audit.NewMultiRecorder(storeRecorder, dbRecorder), db
}

func buildVerifier(ctx context.Context, cfg *config.Config, store *docstore.FirestoreStore) (middleware.Verifier, error) {
	if len(cfg.Auth.DevTokens) > 0 {
		return middleware.NewStaticVerifier(cfg.Auth.DevTokens), nil
	}
	return middleware.NewFirebaseVerifier(ctx, store.App())
}

func startHealthServer(cfg *config.Config, store docstore.Store, auditDB *sql.DB, redisClient *redis.Client, registry *prometheus.Registry, logger *observability.Logger) *http.Server {
	mux := http.NewServeMux()
	observability.RegisterHealthRoutes(mux, observability.NewHealthChecker(store, auditDB, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(mux, registry)
	}

	healthServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.HealthPort),
		Handler: mux,
	}
	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server stopped unexpectedly")
		}
	}()
	return healthServer
}

func drainAuditErrors(dispatcher *audit.Dispatcher, logger *observability.Logger) {
	for err := range dispatcher.Errors() {
		logger.WithError(err).Warn("audit write failed")
	}
}
