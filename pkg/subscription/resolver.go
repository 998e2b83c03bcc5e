package subscription

import (
	"context"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platterhq/platter/pkg/apperrors"
	"github.com/platterhq/platter/pkg/docstore"
	"github.com/platterhq/platter/pkg/observability"
)

const (
	resolverCacheSize = 4096
	resolverCacheTTL  = 5 * time.Minute
)

// tokenSource is one lookup strategy in the resolution chain. It returns
// the token, whether it produced an answer, and a hard error. A strategy
// that finds nothing returns ("", false, nil) so the chain moves on.
type tokenSource interface {
	Lookup(ctx context.Context, userID string) (string, bool, error)
}

// TokenResolver locates a user's provider token. Strategies run in order;
// the subscription record is authoritative and the user document is the
// legacy fallback. Results are cached per user.
type TokenResolver struct {
	sources []tokenSource
	store   docstore.Store
	cache   *expirable.LRU[string, string]
	logger  *observability.Logger
	metrics *observability.Metrics
}

func NewTokenResolver(store docstore.Store, logger *observability.Logger, metrics *observability.Metrics) *TokenResolver {
	r := &TokenResolver{
		store:   store,
		cache:   expirable.NewLRU[string, string](resolverCacheSize, nil, resolverCacheTTL),
		logger:  logger,
		metrics: metrics,
	}
	r.sources = []tokenSource{
		&subscriptionTokenSource{store: store, logger: logger},
		&userTokenSource{store: store},
	}
	return r
}

// Resolve returns the provider token for userID. It fails with a not-found
// error when the user record does not exist and with a failed-precondition
// error when the user exists but carries no token anywhere.
func (r *TokenResolver) Resolve(ctx context.Context, userID string) (string, error) {
	if token, ok := r.cache.Get(userID); ok {
		if r.metrics != nil {
			r.metrics.ResolverCacheHitsTotal.Inc()
		}
		return token, nil
	}
	if r.metrics != nil {
		r.metrics.ResolverCacheMissesTotal.Inc()
	}

	for _, source := range r.sources {
		token, found, err := source.Lookup(ctx, userID)
		if err != nil {
			return "", err
		}
		if found {
			r.cache.Add(userID, token)
			return token, nil
		}
	}

	// No strategy answered. Whether that is a missing user or a user
	// without billing decides the error the caller reports.
	if _, err := r.store.Get(ctx, CollectionUsers, userID); err != nil {
		if docstore.IsNotFound(err) {
			return "", apperrors.Newf(apperrors.CodeNotFound, "user %s not found", userID)
		}
		return "", apperrors.Wrap(apperrors.CodeInternal, "loading user record", err)
	}
	return "", apperrors.New(apperrors.CodeFailedPrecondition, "no token associated with this user")
}

// Invalidate drops the cached token for userID. Mutating operations call
// this after any write that can change token placement.
func (r *TokenResolver) Invalidate(userID string) {
	r.cache.Remove(userID)
}

// subscriptionTokenSource scans the user's subscription records, newest
// first, and picks the first one carrying a token.
type subscriptionTokenSource struct {
	store  docstore.Store
	logger *observability.Logger
}

func (s *subscriptionTokenSource) Lookup(ctx context.Context, userID string) (string, bool, error) {
	docs, err := queryByOwner(ctx, s.store, s.logger, userID)
	if err != nil {
		return "", false, err
	}
	for _, doc := range docs {
		if token := asString(doc.Data[fieldToken]); token != "" {
			return token, true, nil
		}
	}
	return "", false, nil
}

// userTokenSource reads the token mirrored on the user document itself.
type userTokenSource struct {
	store docstore.Store
}

func (s *userTokenSource) Lookup(ctx context.Context, userID string) (string, bool, error) {
	doc, err := s.store.Get(ctx, CollectionUsers, userID)
	if err != nil {
		if docstore.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, apperrors.Wrap(apperrors.CodeInternal, "loading user record", err)
	}
	if token := asString(doc.Data[fieldToken]); token != "" {
		return token, true, nil
	}
	return "", false, nil
}

// queryByOwner fetches a user's subscriptions ordered by updatedAt
// descending. When the store reports the composite index as unavailable it
// reruns the query unordered and sorts locally, so a missing index degrades
// instead of failing the request.
func queryByOwner(ctx context.Context, store docstore.Store, logger *observability.Logger, userID string) ([]*docstore.Document, error) {
	ordered := docstore.Query{
		Collection: CollectionSubscriptions,
		Filters:    []docstore.Filter{{Path: fieldOwner, Op: "==", Value: userID}},
		OrderBy:    fieldUpdatedAt,
		Desc:       true,
	}
	docs, err := store.RunQuery(ctx, ordered)
	if err == nil {
		return docs, nil
	}
	if !docstore.IsIndexUnavailable(err) {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "querying subscriptions", err)
	}

	if logger != nil {
		logger.WithField("userId", userID).Warn("subscription index unavailable, sorting locally")
	}
	unordered := ordered
	unordered.OrderBy = ""
	unordered.Desc = false
	docs, err = store.RunQuery(ctx, unordered)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "querying subscriptions", err)
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return asTime(docs[i].Data[fieldUpdatedAt]).After(asTime(docs[j].Data[fieldUpdatedAt]))
	})
	return docs, nil
}
