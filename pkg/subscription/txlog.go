package subscription

import (
	"context"

	"github.com/platterhq/platter/pkg/docstore"
	"github.com/platterhq/platter/pkg/observability"
)

type snapshot struct {
	collection string
	id         string
	data       map[string]interface{}
	existed    bool
}

// TxLog records document state before a mutation so a failed operation can
// be compensated. Snapshots are applied back in one atomic batch; the log
// is cleared after the mutation commits.
type TxLog struct {
	store     docstore.Store
	logger    *observability.Logger
	snapshots []snapshot
}

func NewTxLog(store docstore.Store, logger *observability.Logger) *TxLog {
	return &TxLog{store: store, logger: logger}
}

// Snapshot captures the current state of one document. A missing document
// is recorded as non-existent and skipped on rollback.
func (t *TxLog) Snapshot(ctx context.Context, collection, id string) error {
	doc, err := t.store.Get(ctx, collection, id)
	if err != nil {
		if docstore.IsNotFound(err) {
			t.snapshots = append(t.snapshots, snapshot{collection: collection, id: id})
			return nil
		}
		return err
	}
	t.snapshots = append(t.snapshots, snapshot{
		collection: collection,
		id:         id,
		data:       doc.Data,
		existed:    true,
	})
	return nil
}

// Rollback restores every snapshotted document in a single batch. It is
// safe to call with an empty log and safe to call more than once; each
// write merges the captured fields back over whatever is there now.
func (t *TxLog) Rollback(ctx context.Context) error {
	batch := t.store.NewBatch()
	for _, snap := range t.snapshots {
		if !snap.existed {
			if t.logger != nil {
				t.logger.WithFields(map[string]interface{}{
					"collection": snap.collection,
					"documentId": snap.id,
				}).Warn("skipping rollback of document that did not exist")
			}
			continue
		}
		batch.SetMerge(snap.collection, snap.id, snap.data)
	}
	if batch.Len() == 0 {
		return nil
	}
	return batch.Commit(ctx)
}

// Clear forgets all snapshots. Call after the guarded mutation commits.
func (t *TxLog) Clear() {
	t.snapshots = nil
}

// Len reports how many documents are currently snapshotted.
func (t *TxLog) Len() int {
	return len(t.snapshots)
}
