package subscription

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platterhq/platter/pkg/docstore"
	"github.com/platterhq/platter/pkg/observability"
)

func TestTxLogRollbackRestoresSnapshots(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	store.Seed(CollectionSubscriptions, "sub-1", map[string]interface{}{
		fieldStatus: "active",
		fieldCycles: int64(12),
	})
	store.Seed(CollectionUsers, "user-1", map[string]interface{}{
		fieldStatus: "active",
	})

	txlog := NewTxLog(store, observability.NewNopLogger())
	require.NoError(t, txlog.Snapshot(ctx, CollectionSubscriptions, "sub-1"))
	require.NoError(t, txlog.Snapshot(ctx, CollectionUsers, "user-1"))
	assert.Equal(t, 2, txlog.Len())

	require.NoError(t, store.Set(ctx, CollectionSubscriptions, "sub-1", map[string]interface{}{
		fieldStatus: "paused",
		fieldCycles: int64(2),
	}, true))
	require.NoError(t, store.Set(ctx, CollectionUsers, "user-1", map[string]interface{}{
		fieldStatus: "paused",
	}, true))

	require.NoError(t, txlog.Rollback(ctx))

	sub, err := store.Get(ctx, CollectionSubscriptions, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "active", sub.Data[fieldStatus])
	assert.Equal(t, int64(12), sub.Data[fieldCycles])

	user, err := store.Get(ctx, CollectionUsers, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "active", user.Data[fieldStatus])
}

func TestTxLogRollbackIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	store.Seed(CollectionSubscriptions, "sub-1", map[string]interface{}{fieldStatus: "active"})

	txlog := NewTxLog(store, observability.NewNopLogger())
	require.NoError(t, txlog.Snapshot(ctx, CollectionSubscriptions, "sub-1"))
	require.NoError(t, store.Set(ctx, CollectionSubscriptions, "sub-1", map[string]interface{}{fieldStatus: "paused"}, true))

	require.NoError(t, txlog.Rollback(ctx))
	require.NoError(t, txlog.Rollback(ctx))

	doc, err := store.Get(ctx, CollectionSubscriptions, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "active", doc.Data[fieldStatus])
}

func TestTxLogSkipsDocumentsThatDidNotExist(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()

	txlog := NewTxLog(store, observability.NewNopLogger())
	require.NoError(t, txlog.Snapshot(ctx, CollectionSubscriptions, "ghost"))
	assert.Equal(t, 1, txlog.Len())

	require.NoError(t, store.Set(ctx, CollectionSubscriptions, "ghost", map[string]interface{}{fieldStatus: "active"}, false))
	require.NoError(t, txlog.Rollback(ctx))

	// A non-existent snapshot is warn-skipped, not deleted.
	doc, err := store.Get(ctx, CollectionSubscriptions, "ghost")
	require.NoError(t, err)
	assert.Equal(t, "active", doc.Data[fieldStatus])
}

func TestTxLogClear(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	store.Seed(CollectionSubscriptions, "sub-1", map[string]interface{}{fieldStatus: "active"})

	txlog := NewTxLog(store, observability.NewNopLogger())
	require.NoError(t, txlog.Snapshot(ctx, CollectionSubscriptions, "sub-1"))
	require.NoError(t, store.Set(ctx, CollectionSubscriptions, "sub-1", map[string]interface{}{fieldStatus: "paused"}, true))

	txlog.Clear()
	assert.Equal(t, 0, txlog.Len())
	require.NoError(t, txlog.Rollback(ctx))

	doc, err := store.Get(ctx, CollectionSubscriptions, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "paused", doc.Data[fieldStatus])
}

func TestTxLogEmptyRollbackIsNoOp(t *testing.T) {
	store := docstore.NewMemoryStore()
	txlog := NewTxLog(store, observability.NewNopLogger())
	assert.NoError(t, txlog.Rollback(context.Background()))
}
