package subscription

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platterhq/platter/pkg/audit"
	"github.com/platterhq/platter/pkg/docstore"
	"github.com/platterhq/platter/pkg/observability"
	"github.com/platterhq/platter/pkg/payfast"
	"github.com/platterhq/platter/pkg/retry"
)

const defaultReconcileConcurrency = 8

// Reconciler sweeps non-terminal subscriptions and repairs status drift
// between the store and the provider. It exists because mutations can fail
// after the provider accepted them, leaving the two views disagreeing.
type Reconciler struct {
	store       docstore.Store
	provider    ProviderClient
	audit       *audit.Dispatcher
	retry       retry.Policy
	logger      *observability.Logger
	metrics     *observability.Metrics
	concurrency int
}

func NewReconciler(store docstore.Store, provider ProviderClient, dispatcher *audit.Dispatcher, logger *observability.Logger, metrics *observability.Metrics) *Reconciler {
	return &Reconciler{
		store:       store,
		provider:    provider,
		audit:       dispatcher,
		retry:       retry.DefaultPolicy(),
		logger:      logger,
		metrics:     metrics,
		concurrency: defaultReconcileConcurrency,
	}
}

// Run performs one sweep. It checks every active and paused subscription
// that carries a token and rewrites any record whose status disagrees with
// the provider. The first hard error aborts the sweep.
func (r *Reconciler) Run(ctx context.Context) error {
	runErr := r.run(ctx)
	if r.metrics != nil {
		r.metrics.ReconcileRunsTotal.WithLabelValues(outcomeLabel(runErr)).Inc()
	}
	return runErr
}

func (r *Reconciler) run(ctx context.Context) error {
	var candidates []*docstore.Document
	for _, status := range []Status{StatusActive, StatusPaused} {
		docs, err := r.store.RunQuery(ctx, docstore.Query{
			Collection: CollectionSubscriptions,
			Filters:    []docstore.Filter{{Path: fieldStatus, Op: "==", Value: string(status)}},
		})
		if err != nil {
			return fmt.Errorf("listing %s subscriptions: %w", status, err)
		}
		candidates = append(candidates, docs...)
	}

	r.logger.WithField("count", len(candidates)).Info("reconcile sweep started")

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(r.concurrency)
	for _, doc := range candidates {
		sub := subscriptionFromDoc(doc)
		group.Go(func() error {
			return r.reconcileOne(ctx, sub)
		})
	}
	return group.Wait()
}

func (r *Reconciler) reconcileOne(ctx context.Context, sub *Subscription) error {
	log := r.logger.WithFields(map[string]interface{}{
		"subscriptionId": sub.ID,
		"userId":         sub.Owner,
	})
	if sub.Token == "" {
		log.Debug("skipping subscription without token")
		return nil
	}

	var result *payfast.Result
	err := r.retry.Do(ctx, r.logger, string(audit.ActionReconcile), func(ctx context.Context) error {
		res, err := r.provider.Fetch(ctx, sub.Token)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		// One unreachable record should not abort the sweep.
		log.WithError(err).Warn("provider fetch failed during reconcile")
		return nil
	}

	remote := *sub
	overlayRemote(&remote, result.Fields)
	if remote.Status == sub.Status {
		return nil
	}

	log.WithFields(map[string]interface{}{
		"localStatus":  string(sub.Status),
		"remoteStatus": string(remote.Status),
	}).Warn("subscription status drift detected")
	if r.metrics != nil {
		r.metrics.ReconcileDriftTotal.Inc()
	}

	now := time.Now().UTC()
	batch := r.store.NewBatch()
	batch.SetMerge(CollectionSubscriptions, sub.ID, map[string]interface{}{
		fieldStatus:    string(remote.Status),
		fieldUpdatedAt: now,
	})
	batch.SetMerge(CollectionUsers, sub.Owner, map[string]interface{}{
		fieldStatus: string(remote.Status),
	})
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("repairing subscription %s: %w", sub.ID, err)
	}

	if r.audit != nil {
		r.audit.Dispatch(audit.NewEntry(audit.ActionReconcile, sub.Owner, sub.ID, audit.ResultSuccess).WithMetadata(map[string]interface{}{
			"previousStatus": string(sub.Status),
			"status":         string(remote.Status),
		}))
	}
	return nil
}
