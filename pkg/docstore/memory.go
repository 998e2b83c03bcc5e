package docstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// MemoryStore is an in-memory Store used by tests. It mirrors the merge and
// delete-sentinel semantics of the Firestore backend and can simulate a
// missing composite index or a failing batch commit.
type MemoryStore struct {
	mu sync.RWMutex

	// collections[collection][id] = fields
	collections map[string]map[string]map[string]interface{}

	indexUnavailable map[string]bool
	failNextCommit   error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections:      make(map[string]map[string]map[string]interface{}),
		indexUnavailable: make(map[string]bool),
	}
}

// Seed inserts a document directly, replacing any existing one.
func (s *MemoryStore) Seed(collection, id string, data map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(collection)[id] = deepCopy(data)
}

// SetIndexUnavailable makes ordered queries against the collection fail the
// way Firestore does when a composite index is missing.
func (s *MemoryStore) SetIndexUnavailable(collection string, unavailable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexUnavailable[collection] = unavailable
}

// FailNextCommit makes the next batch commit return err without applying
// any writes.
func (s *MemoryStore) FailNextCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNextCommit = err
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Document{ID: id, Data: deepCopy(data)}, nil
}

func (s *MemoryStore) RunQuery(ctx context.Context, q Query) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if q.OrderBy != "" && len(q.Filters) > 0 && s.indexUnavailable[q.Collection] {
		return nil, status.Error(codes.FailedPrecondition, "The query requires an index.")
	}

	var docs []*Document
	for id, data := range s.collections[q.Collection] {
		if matchesFilters(data, q.Filters) {
			docs = append(docs, &Document{ID: id, Data: deepCopy(data)})
		}
	}

	if q.OrderBy != "" {
		sort.Slice(docs, func(i, j int) bool {
			less := compareValues(docs[i].Data[q.OrderBy], docs[j].Data[q.OrderBy])
			if q.Desc {
				return !less
			}
			return less
		})
	} else {
		// deterministic order for tests
		sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	}

	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, data map[string]interface{}, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(collection, id, data, merge)
	return nil
}

func (s *MemoryStore) NewBatch() Batch {
	return &memoryBatch{store: s}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// must hold mu
func (s *MemoryStore) ensure(collection string) map[string]map[string]interface{} {
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]map[string]interface{})
	}
	return s.collections[collection]
}

// must hold mu
func (s *MemoryStore) apply(collection, id string, data map[string]interface{}, merge bool) {
	coll := s.ensure(collection)

	if !merge {
		clean := make(map[string]interface{})
		for k, v := range data {
			if _, isDelete := v.(deleteSentinel); !isDelete {
				clean[k] = v
			}
		}
		coll[id] = deepCopy(clean)
		return
	}

	existing := coll[id]
	if existing == nil {
		existing = make(map[string]interface{})
	}
	for k, v := range data {
		if _, isDelete := v.(deleteSentinel); isDelete {
			delete(existing, k)
			continue
		}
		existing[k] = deepCopyValue(v)
	}
	coll[id] = existing
}

type batchWrite struct {
	collection string
	id         string
	data       map[string]interface{}
}

type memoryBatch struct {
	store  *MemoryStore
	writes []batchWrite
}

func (b *memoryBatch) SetMerge(collection, id string, data map[string]interface{}) {
	b.writes = append(b.writes, batchWrite{collection: collection, id: id, data: deepCopy(data)})
}

func (b *memoryBatch) Len() int {
	return len(b.writes)
}

func (b *memoryBatch) Commit(ctx context.Context) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	if err := b.store.failNextCommit; err != nil {
		b.store.failNextCommit = nil
		return err
	}

	for _, w := range b.writes {
		b.store.apply(w.collection, w.id, w.data, true)
	}
	return nil
}

func matchesFilters(data map[string]interface{}, filters []Filter) bool {
	for _, f := range filters {
		value, ok := data[f.Path]
		if !ok {
			return false
		}
		switch f.Op {
		case "==":
			if value != f.Value {
				return false
			}
		case "!=":
			if value == f.Value {
				return false
			}
		case "<":
			if !compareValues(value, f.Value) {
				return false
			}
		case ">":
			if !compareValues(f.Value, value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compareValues reports a < b for the value types the store holds.
func compareValues(a, b interface{}) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && strings.Compare(av, bv) < 0
	case int64:
		bv, ok := b.(int64)
		return ok && av < bv
	case float64:
		bv, ok := b.(float64)
		return ok && av < bv
	case int:
		bv, ok := b.(int)
		return ok && av < bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Before(bv)
	default:
		return false
	}
}

func deepCopy(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch tv := v.(type) {
	case map[string]interface{}:
		return deepCopy(tv)
	case []interface{}:
		out := make([]interface{}, len(tv))
		for i, item := range tv {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
