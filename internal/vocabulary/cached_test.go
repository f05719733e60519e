package vocabulary

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedStore_Concept(t *testing.T) {
	store := createTestStore(t)
	seedConcept(t, store, 100, "Hemoglobin A1c measurement", "Measurement", "LOINC", "Lab Test", "S", "")

	cached := NewCachedStore(store, 100, time.Minute, testLogger())
	ctx := context.Background()

	// First lookup misses, second hits
	c1, err := cached.Concept(ctx, 100)
	require.NoError(t, err)
	c2, err := cached.Concept(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, c1, c2)

	stats := cached.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestCachedStore_Concept_NotFoundNotCached(t *testing.T) {
	store := createTestStore(t)
	cached := NewCachedStore(store, 100, time.Minute, testLogger())
	ctx := context.Background()

	_, err := cached.Concept(ctx, 999)
	require.Error(t, err)
	_, err = cached.Concept(ctx, 999)
	require.Error(t, err)

	// Both lookups went to the inner store
	assert.Equal(t, int64(2), cached.Stats().Misses)
}

func TestCachedStore_Concepts_PartialHit(t *testing.T) {
	store := createTestStore(t)
	seedConcept(t, store, 100, "Concept A", "Measurement", "LOINC", "Lab Test", "S", "")
	seedConcept(t, store, 101, "Concept B", "Measurement", "LOINC", "Lab Test", "S", "")

	cached := NewCachedStore(store, 100, time.Minute, testLogger())
	ctx := context.Background()

	// Warm 100 only
	_, err := cached.Concept(ctx, 100)
	require.NoError(t, err)

	result, err := cached.Concepts(ctx, []int64{100, 101})
	require.NoError(t, err)
	assert.Len(t, result, 2)

	stats := cached.Stats()
	assert.Equal(t, int64(1), stats.Hits)
}

func TestCachedStore_ParentsChildren(t *testing.T) {
	store := createTestStore(t)
	seedAncestor(t, store, 10, 100, 1, 1)
	seedAncestor(t, store, 100, 102, 1, 1)

	cached := NewCachedStore(store, 100, time.Minute, testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		parents, err := cached.Parents(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, []int64{10}, parents)

		children, err := cached.Children(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, []int64{102}, children)
	}

	stats := cached.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
}

func TestCachedStore_Purge(t *testing.T) {
	store := createTestStore(t)
	seedConcept(t, store, 100, "Concept A", "Measurement", "LOINC", "Lab Test", "S", "")

	cached := NewCachedStore(store, 100, time.Minute, testLogger())
	ctx := context.Background()

	_, err := cached.Concept(ctx, 100)
	require.NoError(t, err)

	cached.Purge()

	_, err = cached.Concept(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cached.Stats().Misses)
}
