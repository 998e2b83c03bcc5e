package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platterhq/platter/pkg/docstore"
	"github.com/platterhq/platter/pkg/observability"
	"github.com/platterhq/platter/pkg/payfast"
	"github.com/platterhq/platter/pkg/retry"
)

func newTestReconciler(store docstore.Store, provider ProviderClient) *Reconciler {
	log := observability.NewNopLogger()
	rec := NewReconciler(store, provider, nil, log, nil)
	rec.retry = retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}
	return rec
}

func TestReconcileRepairsStatusDrift(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedActiveSubscription(store)
	provider := &stubProvider{respond: func(string) (*payfast.Result, error) {
		return &payfast.Result{Fields: map[string]interface{}{
			"status_text": "CANCELLED",
		}}, nil
	}}

	require.NoError(t, newTestReconciler(store, provider).Run(context.Background()))

	sub, err := store.Get(context.Background(), CollectionSubscriptions, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", sub.Data[fieldStatus])

	user, err := store.Get(context.Background(), CollectionUsers, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", user.Data[fieldStatus])
}

func TestReconcileLeavesAgreeingRecordsAlone(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedActiveSubscription(store)
	before, err := store.Get(context.Background(), CollectionSubscriptions, "sub-1")
	require.NoError(t, err)

	provider := &stubProvider{respond: func(string) (*payfast.Result, error) {
		return &payfast.Result{Fields: map[string]interface{}{
			"status_text": "ACTIVE",
		}}, nil
	}}

	require.NoError(t, newTestReconciler(store, provider).Run(context.Background()))

	after, err := store.Get(context.Background(), CollectionSubscriptions, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, before.Data[fieldUpdatedAt], after.Data[fieldUpdatedAt])
	assert.Equal(t, "active", after.Data[fieldStatus])
}

func TestReconcileSkipsCancelledSubscriptions(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedActiveSubscription(store)
	require.NoError(t, store.Set(context.Background(), CollectionSubscriptions, "sub-1", map[string]interface{}{fieldStatus: "cancelled"}, true))
	provider := okProvider("ok")

	require.NoError(t, newTestReconciler(store, provider).Run(context.Background()))
	assert.Equal(t, 0, provider.callCount())
}

func TestReconcileSkipsRecordsWithoutTokens(t *testing.T) {
	store := docstore.NewMemoryStore()
	store.Seed(CollectionSubscriptions, "sub-1", map[string]interface{}{
		fieldOwner:  "user-1",
		fieldStatus: "active",
	})
	provider := okProvider("ok")

	require.NoError(t, newTestReconciler(store, provider).Run(context.Background()))
	assert.Equal(t, 0, provider.callCount())
}

func TestReconcileSurvivesProviderFailures(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedActiveSubscription(store)
	store.Seed(CollectionSubscriptions, "sub-2", map[string]interface{}{
		fieldOwner:     "user-2",
		fieldToken:     "tok-2",
		fieldStatus:    "active",
		fieldUpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	store.Seed(CollectionUsers, "user-2", map[string]interface{}{fieldStatus: "active"})

	provider := &stubProvider{}
	provider.respond = func(string) (*payfast.Result, error) {
		provider.mu.Lock()
		lastToken := provider.calls[len(provider.calls)-1].token
		provider.mu.Unlock()
		if lastToken == "tok-1" {
			return nil, errors.New("dial tcp: connection refused")
		}
		return &payfast.Result{Fields: map[string]interface{}{"status_text": "PAUSED"}}, nil
	}

	rec := newTestReconciler(store, provider)
	rec.concurrency = 1
	require.NoError(t, rec.Run(context.Background()))

	// The unreachable record is skipped; the other one is still repaired.
	sub1, err := store.Get(context.Background(), CollectionSubscriptions, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "active", sub1.Data[fieldStatus])

	sub2, err := store.Get(context.Background(), CollectionSubscriptions, "sub-2")
	require.NoError(t, err)
	assert.Equal(t, "paused", sub2.Data[fieldStatus])
}
