package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platterhq/platter/pkg/docstore"
)

type stubRecorder struct {
	entries []*Entry
	err     error
	closed  bool
}

func (s *stubRecorder) Record(_ context.Context, entry *Entry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubRecorder) Close() error {
	s.closed = true
	return nil
}

func TestNewEntry(t *testing.T) {
	t.Run("fills defaults", func(t *testing.T) {
		entry := NewEntry(ActionCancel, "u-1", "sub-1", ResultSuccess)

		assert.NotEmpty(t, entry.ID)
		assert.Equal(t, ActionCancel, entry.Action)
		assert.Equal(t, "u-1", entry.UserID)
		assert.Equal(t, "sub-1", entry.SubscriptionID)
		assert.Equal(t, ResultSuccess, entry.Result)
		assert.WithinDuration(t, time.Now().UTC(), entry.Timestamp, time.Minute)
	})

	t.Run("empty subscription ID becomes the sentinel", func(t *testing.T) {
		entry := NewEntry(ActionPause, "u-1", "", ResultFailure)
		assert.Equal(t, UnknownSubscriptionID, entry.SubscriptionID)
	})

	t.Run("unique IDs", func(t *testing.T) {
		a := NewEntry(ActionFetch, "u-1", "sub-1", ResultSuccess)
		b := NewEntry(ActionFetch, "u-1", "sub-1", ResultSuccess)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("WithError attaches message", func(t *testing.T) {
		entry := NewEntry(ActionUpdate, "u-1", "sub-1", ResultFailure).WithError(errors.New("provider rejected"))
		assert.Equal(t, "provider rejected", entry.ErrorMessage)
	})
}

func TestMultiRecorder(t *testing.T) {
	ctx := context.Background()

	t.Run("writes to all sinks", func(t *testing.T) {
		a, b := &stubRecorder{}, &stubRecorder{}
		multi := NewMultiRecorder(a, b)

		entry := NewEntry(ActionCancel, "u-1", "sub-1", ResultSuccess)
		require.NoError(t, multi.Record(ctx, entry))

		assert.Len(t, a.entries, 1)
		assert.Len(t, b.entries, 1)
	})

	t.Run("one failing sink does not stop the others", func(t *testing.T) {
		failing := &stubRecorder{err: errors.New("sink down")}
		healthy := &stubRecorder{}
		multi := NewMultiRecorder(failing, healthy)

		err := multi.Record(ctx, NewEntry(ActionPause, "u-1", "sub-1", ResultFailure))

		require.Error(t, err)
		assert.Len(t, healthy.entries, 1)
	})

	t.Run("close closes every recorder", func(t *testing.T) {
		a, b := &stubRecorder{}, &stubRecorder{}
		require.NoError(t, NewMultiRecorder(a, b).Close())
		assert.True(t, a.closed)
		assert.True(t, b.closed)
	})
}

func TestStoreRecorder(t *testing.T) {
	ctx := context.Background()

	t.Run("persists the entry fields", func(t *testing.T) {
		store := docstore.NewMemoryStore()
		recorder := NewStoreRecorder(store)

		entry := NewEntry(ActionResume, "u-1", "sub-9", ResultFailure).
			WithError(errors.New("not paused")).
			WithMetadata(map[string]interface{}{"status": "active"})
		require.NoError(t, recorder.Record(ctx, entry))

		doc, err := store.Get(ctx, "auditLogs", entry.ID)
		require.NoError(t, err)
		assert.Equal(t, "resumeSubscription", doc.Data["action"])
		assert.Equal(t, "u-1", doc.Data["userId"])
		assert.Equal(t, "sub-9", doc.Data["subscriptionId"])
		assert.Equal(t, "failure", doc.Data["result"])
		assert.Equal(t, "not paused", doc.Data["errorMessage"])
	})

	t.Run("omits empty optional fields", func(t *testing.T) {
		store := docstore.NewMemoryStore()
		recorder := NewStoreRecorder(store)

		entry := NewEntry(ActionFetch, "u-1", "sub-1", ResultSuccess)
		require.NoError(t, recorder.Record(ctx, entry))

		doc, err := store.Get(ctx, "auditLogs", entry.ID)
		require.NoError(t, err)
		assert.NotContains(t, doc.Data, "errorMessage")
		assert.NotContains(t, doc.Data, "metadata")
	})
}

func TestNopRecorder(t *testing.T) {
	var r NopRecorder
	assert.NoError(t, r.Record(context.Background(), NewEntry(ActionCancel, "u", "s", ResultSuccess)))
	assert.NoError(t, r.Close())
}
