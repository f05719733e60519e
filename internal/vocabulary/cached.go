package vocabulary

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/indicate-eu/data-dictionary/internal/domain"
)

// CachedStore decorates a VocabularyStore with in-memory LRU caches for the
// lookups the hierarchy traversal hits repeatedly. Vocabulary data only
// changes on re-import, so entries expire on a coarse TTL rather than being
// invalidated.
type CachedStore struct {
	inner domain.VocabularyStore

	concepts *expirable.LRU[int64, *domain.Concept]
	parents  *expirable.LRU[int64, []int64]
	children *expirable.LRU[int64, []int64]

	hits   atomic.Int64
	misses atomic.Int64

	log *logrus.Logger
}

// NewCachedStore wraps the inner store with caches of the given size and TTL.
func NewCachedStore(inner domain.VocabularyStore, size int, ttl time.Duration, logger *logrus.Logger) *CachedStore {
	if size <= 0 {
		size = 10000
	}
	return &CachedStore{
		inner:    inner,
		concepts: expirable.NewLRU[int64, *domain.Concept](size, nil, ttl),
		parents:  expirable.NewLRU[int64, []int64](size, nil, ttl),
		children: expirable.NewLRU[int64, []int64](size, nil, ttl),
		log:      logger,
	}
}

// Concept looks up a concept, serving from cache when possible. Misses
// (domain.ErrNotFound) are not cached; orphaned IDs are rare and retrying
// them is cheap.
func (cs *CachedStore) Concept(ctx context.Context, conceptID int64) (*domain.Concept, error) {
	if c, ok := cs.concepts.Get(conceptID); ok {
		cs.hits.Add(1)
		return c, nil
	}
	cs.misses.Add(1)

	c, err := cs.inner.Concept(ctx, conceptID)
	if err != nil {
		return nil, err
	}
	cs.concepts.Add(conceptID, c)
	return c, nil
}

// Concepts resolves a batch, serving cached entries and fetching only the
// remainder from the inner store.
func (cs *CachedStore) Concepts(ctx context.Context, conceptIDs []int64) (map[int64]*domain.Concept, error) {
	result := make(map[int64]*domain.Concept, len(conceptIDs))
	var missing []int64

	for _, id := range conceptIDs {
		if c, ok := cs.concepts.Get(id); ok {
			cs.hits.Add(1)
			result[id] = c
		} else {
			cs.misses.Add(1)
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		fetched, err := cs.inner.Concepts(ctx, missing)
		if err != nil {
			return nil, err
		}
		for id, c := range fetched {
			cs.concepts.Add(id, c)
			result[id] = c
		}
	}

	return result, nil
}

// RelationshipsFrom delegates to the inner store. Relationship fans are only
// read once per enrichment run, so caching them buys nothing.
func (cs *CachedStore) RelationshipsFrom(ctx context.Context, conceptID int64, kinds []string) ([]int64, error) {
	return cs.inner.RelationshipsFrom(ctx, conceptID, kinds)
}

// DescendantsOf delegates to the inner store.
func (cs *CachedStore) DescendantsOf(ctx context.Context, conceptID int64) ([]int64, error) {
	return cs.inner.DescendantsOf(ctx, conceptID)
}

// Parents returns the direct parents, serving from cache when possible.
func (cs *CachedStore) Parents(ctx context.Context, conceptID int64) ([]int64, error) {
	if ids, ok := cs.parents.Get(conceptID); ok {
		cs.hits.Add(1)
		return ids, nil
	}
	cs.misses.Add(1)

	ids, err := cs.inner.Parents(ctx, conceptID)
	if err != nil {
		return nil, err
	}
	cs.parents.Add(conceptID, ids)
	return ids, nil
}

// Children returns the direct children, serving from cache when possible.
func (cs *CachedStore) Children(ctx context.Context, conceptID int64) ([]int64, error) {
	if ids, ok := cs.children.Get(conceptID); ok {
		cs.hits.Add(1)
		return ids, nil
	}
	cs.misses.Add(1)

	ids, err := cs.inner.Children(ctx, conceptID)
	if err != nil {
		return nil, err
	}
	cs.children.Add(conceptID, ids)
	return ids, nil
}

// CacheStats reports hit/miss counters for monitoring.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Stats returns the current cache counters.
func (cs *CachedStore) Stats() CacheStats {
	return CacheStats{
		Hits:   cs.hits.Load(),
		Misses: cs.misses.Load(),
	}
}

// Purge drops all cached entries, e.g. after a vocabulary re-import.
func (cs *CachedStore) Purge() {
	cs.concepts.Purge()
	cs.parents.Purge()
	cs.children.Purge()
	if cs.log != nil {
		cs.log.Info("Vocabulary caches purged")
	}
}
