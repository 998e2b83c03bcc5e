package audit

import (
	"context"
	"fmt"

	"github.com/platterhq/platter/pkg/docstore"
)

// Recorder persists audit entries.
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
	Close() error
}

// NopRecorder discards all entries.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *Entry) error { return nil }
func (NopRecorder) Close() error                         { return nil }

// MultiRecorder fans entries out to several recorders. Every recorder is
// attempted; the first error is returned.
type MultiRecorder struct {
	recorders []Recorder
}

// NewMultiRecorder creates a recorder writing to all the given sinks.
func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	return &MultiRecorder{recorders: recorders}
}

func (m *MultiRecorder) Record(ctx context.Context, entry *Entry) error {
	var firstErr error
	for _, r := range m.recorders {
		if err := r.Record(ctx, entry); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiRecorder) Close() error {
	var firstErr error
	for _, r := range m.recorders {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// auditCollection is the document collection holding audit entries.
const auditCollection = "auditLogs"

// StoreRecorder writes entries to the document store, alongside the
// subscription data they describe.
type StoreRecorder struct {
	store docstore.Store
}

// NewStoreRecorder creates a document-store backed recorder.
func NewStoreRecorder(store docstore.Store) *StoreRecorder {
	return &StoreRecorder{store: store}
}

func (r *StoreRecorder) Record(ctx context.Context, entry *Entry) error {
	data := map[string]interface{}{
		"action":         string(entry.Action),
		"userId":         entry.UserID,
		"subscriptionId": entry.SubscriptionID,
		"result":         string(entry.Result),
		"timestamp":      entry.Timestamp,
	}
	if entry.ErrorMessage != "" {
		data["errorMessage"] = entry.ErrorMessage
	}
	if len(entry.Metadata) > 0 {
		data["metadata"] = entry.Metadata
	}

	if err := r.store.Set(ctx, auditCollection, entry.ID, data, false); err != nil {
		return fmt.Errorf("writing audit entry %s: %w", entry.ID, err)
	}
	return nil
}

func (r *StoreRecorder) Close() error {
	return nil
}
