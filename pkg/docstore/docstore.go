// Package docstore abstracts the document database holding subscription and
// user records.
//
// The production implementation is backed by Cloud Firestore; tests use the
// in-memory implementation. The abstraction is deliberately narrow: point
// reads, filtered-and-ordered queries, merge writes, and atomic batches are
// all the billing core needs.
package docstore

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrNotFound is returned by Get when no document exists at the given path.
var ErrNotFound = errors.New("docstore: document not found")

// DeleteField marks a field for removal in a merge write.
var DeleteField = deleteSentinel{}

type deleteSentinel struct{}

// Document is a stored record with its identifier.
type Document struct {
	ID   string
	Data map[string]interface{}
}

// Filter is a single equality or comparison constraint.
type Filter struct {
	Path  string
	Op    string
	Value interface{}
}

// Query selects documents from one collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Desc       bool
	Limit      int
}

// Batch accumulates merge writes and applies them atomically. Either all
// writes commit or none do.
type Batch interface {
	// SetMerge queues a merge write. Fields set to DeleteField are removed.
	SetMerge(collection, id string, data map[string]interface{})

	// Len returns the number of queued writes.
	Len() int

	// Commit applies all queued writes atomically.
	Commit(ctx context.Context) error
}

// Store is the document database used for subscription and user state.
type Store interface {
	// Get reads a single document. Returns ErrNotFound if absent.
	Get(ctx context.Context, collection, id string) (*Document, error)

	// RunQuery returns documents matching the query, in query order.
	RunQuery(ctx context.Context, q Query) ([]*Document, error)

	// Set writes a document. With merge true only the given fields change.
	Set(ctx context.Context, collection, id string, data map[string]interface{}, merge bool) error

	// NewBatch starts an atomic write batch.
	NewBatch() Batch

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// IsNotFound reports whether err means the document does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || status.Code(err) == codes.NotFound
}

// IsIndexUnavailable reports whether err means the backing store rejected a
// query because no composite index covers it. Callers fall back to simpler
// queries on this condition.
func IsIndexUnavailable(err error) bool {
	return status.Code(err) == codes.FailedPrecondition
}
