package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/platterhq/platter/pkg/audit"
	"github.com/platterhq/platter/pkg/config"
	"github.com/platterhq/platter/pkg/docstore"
	"github.com/platterhq/platter/pkg/observability"
	"github.com/platterhq/platter/pkg/payfast"
	"github.com/platterhq/platter/pkg/subscription"
)

func main() {
	once := flag.Bool("once", false, "Run a single reconcile sweep and exit")
	schedule := flag.String("schedule", "30 * * * *", "Cron schedule for reconcile sweeps")
	flag.Parse()

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
	defer store.Close()

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	dispatcher := audit.NewDispatcher(audit.NewStoreRecorder(store), logger, metrics)
	defer dispatcher.Close()

	provider := payfast.NewClient(cfg.PayFast, logger)
	reconciler := subscription.NewReconciler(store, provider, dispatcher, logger, metrics)

	if *once {
		if err := reconciler.Run(ctx); err != nil {
			logger.WithError(err).Error("reconcile sweep failed")
			os.Exit(1)
		}
		logger.Info("reconcile sweep complete")
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(*schedule, func() {
		if err := reconciler.Run(context.Background()); err != nil {
			logger.WithError(err).Error("reconcile sweep failed")
			return
		}
		logger.Info("reconcile sweep complete")
	}); err != nil {
		logger.WithError(err).Errorf("invalid schedule %q", *schedule)
		os.Exit(1)
	}

	c.Start()
	logger.WithField("schedule", *schedule).Info("reconciler started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	<-c.Stop().Done()
}
