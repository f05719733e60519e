package service

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indicate-eu/data-dictionary/internal/domain"
)

// fakeVocabularyStore is an in-memory domain.VocabularyStore for tests.
type fakeVocabularyStore struct {
	concepts    map[int64]*domain.Concept
	edges       map[int64][]fakeEdge // relationship edges by source
	children    map[int64][]int64    // direct child edges
	descendants map[int64][]int64    // full closure, excluding self
}

type fakeEdge struct {
	to   int64
	kind string
}

func newFakeStore() *fakeVocabularyStore {
	return &fakeVocabularyStore{
		concepts:    make(map[int64]*domain.Concept),
		edges:       make(map[int64][]fakeEdge),
		children:    make(map[int64][]int64),
		descendants: make(map[int64][]int64),
	}
}

func (f *fakeVocabularyStore) addConcept(id int64, name, domainID, vocabularyID, classID, invalidReason string) {
	f.concepts[id] = &domain.Concept{
		ConceptID:      id,
		Name:           name,
		DomainID:       domainID,
		VocabularyID:   vocabularyID,
		ConceptClassID: classID,
		Code:           name,
		StandardTier:   domain.STANDARD,
		InvalidReason:  invalidReason,
	}
}

func (f *fakeVocabularyStore) addEdge(from, to int64, kind string) {
	f.edges[from] = append(f.edges[from], fakeEdge{to: to, kind: kind})
}

func (f *fakeVocabularyStore) addChild(parent, child int64) {
	f.children[parent] = append(f.children[parent], child)
}

func (f *fakeVocabularyStore) addDescendant(ancestor, descendant int64) {
	f.descendants[ancestor] = append(f.descendants[ancestor], descendant)
}

func (f *fakeVocabularyStore) Concept(ctx context.Context, conceptID int64) (*domain.Concept, error) {
	c, ok := f.concepts[conceptID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (f *fakeVocabularyStore) Concepts(ctx context.Context, conceptIDs []int64) (map[int64]*domain.Concept, error) {
	result := make(map[int64]*domain.Concept)
	for _, id := range conceptIDs {
		if c, ok := f.concepts[id]; ok {
			result[id] = c
		}
	}
	return result, nil
}

func (f *fakeVocabularyStore) RelationshipsFrom(ctx context.Context, conceptID int64, kinds []string) ([]int64, error) {
	wanted := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		wanted[k] = struct{}{}
	}
	var ids []int64
	for _, e := range f.edges[conceptID] {
		if _, ok := wanted[e.kind]; ok {
			ids = append(ids, e.to)
		}
	}
	return ids, nil
}

func (f *fakeVocabularyStore) DescendantsOf(ctx context.Context, conceptID int64) ([]int64, error) {
	return f.descendants[conceptID], nil
}

func (f *fakeVocabularyStore) Parents(ctx context.Context, conceptID int64) ([]int64, error) {
	var parents []int64
	for parent, kids := range f.children {
		for _, kid := range kids {
			if kid == conceptID {
				parents = append(parents, parent)
			}
		}
	}
	return parents, nil
}

func (f *fakeVocabularyStore) Children(ctx context.Context, conceptID int64) ([]int64, error) {
	return f.children[conceptID], nil
}

func enrichTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel) // Reduce noise in tests
	return logger
}

func manualMapping(general, omop int64, recommended bool) domain.ConceptMapping {
	return domain.ConceptMapping{
		GeneralConceptID: general,
		OMOPConceptID:    omop,
		Recommended:      recommended,
		Provenance:       domain.PROVENANCE_MANUAL,
	}
}

// snomedScenario builds the base fixture: concept 100 is SNOMED with one
// "Maps to" edge to 101 and one descendant 102.
func snomedScenario() *fakeVocabularyStore {
	store := newFakeStore()
	store.addConcept(100, "Source concept", "Observation", "SNOMED", "Clinical Finding", "")
	store.addConcept(101, "Mapped concept", "Observation", "SNOMED", "Clinical Finding", "")
	store.addConcept(102, "Descendant concept", "Observation", "SNOMED", "Clinical Finding", "")
	store.addEdge(100, 101, domain.RelationshipMapsTo)
	store.addDescendant(100, 102)
	return store
}

func derivedRows(mappings []domain.ConceptMapping) []domain.ConceptMapping {
	var derived []domain.ConceptMapping
	for _, m := range mappings {
		if m.Provenance.IsDerived() {
			derived = append(derived, m)
		}
	}
	return derived
}

func TestEnrich_BasicScenario(t *testing.T) {
	store := snomedScenario()
	enricher := NewEnricher(enrichTestLogger(), nil)

	mappings := []domain.ConceptMapping{manualMapping(1, 100, true)}

	result, err := enricher.Enrich(context.Background(), store, mappings, false)
	require.NoError(t, err)

	derived := derivedRows(result.Mappings)
	require.Len(t, derived, 2)

	ids := []int64{derived[0].OMOPConceptID, derived[1].OMOPConceptID}
	assert.ElementsMatch(t, []int64{101, 102}, ids)

	for _, d := range derived {
		assert.Equal(t, int64(1), d.GeneralConceptID)
		assert.False(t, d.Recommended)
		assert.Equal(t, domain.PROVENANCE_DERIVED, d.Provenance)
	}
	assert.Equal(t, 1, result.ManualExpanded)
	assert.Equal(t, 2, result.DerivedAdded)
}

func TestEnrich_NilStore(t *testing.T) {
	enricher := NewEnricher(enrichTestLogger(), nil)

	_, err := enricher.Enrich(context.Background(), nil, nil, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrVocabularyNotConfigured)
}

func TestEnrich_InvalidCandidateExcluded(t *testing.T) {
	store := snomedScenario()
	store.concepts[101].InvalidReason = "D"

	enricher := NewEnricher(enrichTestLogger(), nil)
	mappings := []domain.ConceptMapping{manualMapping(1, 100, true)}

	result, err := enricher.Enrich(context.Background(), store, mappings, false)
	require.NoError(t, err)

	derived := derivedRows(result.Mappings)
	require.Len(t, derived, 1)
	assert.Equal(t, int64(102), derived[0].OMOPConceptID)
}

func TestEnrich_DisallowedVocabulary(t *testing.T) {
	store := newFakeStore()
	store.addConcept(200, "Custom source", "Observation", "Custom", "Clinical Finding", "")
	store.addConcept(201, "Custom target", "Observation", "Custom", "Clinical Finding", "")
	store.addEdge(200, 201, domain.RelationshipMapsTo)

	enricher := NewEnricher(enrichTestLogger(), nil)
	mappings := []domain.ConceptMapping{manualMapping(1, 200, true)}

	result, err := enricher.Enrich(context.Background(), store, mappings, false)
	require.NoError(t, err)
	assert.Empty(t, derivedRows(result.Mappings))
	assert.Equal(t, 1, result.SkippedOrphans)
}

func TestEnrich_VocabularyRestriction(t *testing.T) {
	store := snomedScenario()
	// A LOINC concept reachable from a SNOMED source must be filtered out.
	store.addConcept(103, "Cross-vocabulary concept", "Observation", "LOINC", "Lab Test", "")
	store.addEdge(100, 103, domain.RelationshipMapsTo)

	enricher := NewEnricher(enrichTestLogger(), nil)
	mappings := []domain.ConceptMapping{manualMapping(1, 100, true)}

	result, err := enricher.Enrich(context.Background(), store, mappings, false)
	require.NoError(t, err)

	for _, d := range derivedRows(result.Mappings) {
		assert.Equal(t, "SNOMED", store.concepts[d.OMOPConceptID].VocabularyID)
	}
}

func TestEnrich_DrugDomainFilter(t *testing.T) {
	store := newFakeStore()
	store.addConcept(300, "Drug source", "Drug", "RxNorm", "Clinical Drug", "")
	store.addConcept(301, "Clinical drug", "Drug", "RxNorm", "Clinical Drug", "")
	store.addConcept(302, "Branded pack", "Drug", "RxNorm", "Branded Pack", "")
	store.addConcept(303, "Ingredient", "Drug", "RxNorm", "Ingredient", "")
	store.addDescendant(300, 301)
	store.addDescendant(300, 302)
	store.addEdge(300, 303, domain.RelationshipMapsTo)

	enricher := NewEnricher(enrichTestLogger(), nil)
	mappings := []domain.ConceptMapping{manualMapping(1, 300, true)}

	result, err := enricher.Enrich(context.Background(), store, mappings, false)
	require.NoError(t, err)

	derived := derivedRows(result.Mappings)
	require.Len(t, derived, 1)
	assert.Equal(t, int64(301), derived[0].OMOPConceptID)
}

func TestEnrich_OrphanedSourceSkipped(t *testing.T) {
	store := snomedScenario()

	enricher := NewEnricher(enrichTestLogger(), nil)
	mappings := []domain.ConceptMapping{
		manualMapping(1, 100, true),
		manualMapping(2, 999, true), // not in the vocabulary store
	}

	result, err := enricher.Enrich(context.Background(), store, mappings, false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.SkippedOrphans)
	assert.Equal(t, 1, result.ManualExpanded)
	// The orphaned manual row itself survives untouched
	assert.Contains(t, result.Mappings, manualMapping(2, 999, true))
}

func TestEnrich_NoRecommendedShortCircuits(t *testing.T) {
	store := snomedScenario()

	enricher := NewEnricher(enrichTestLogger(), nil)
	mappings := []domain.ConceptMapping{
		manualMapping(1, 100, false),
		{GeneralConceptID: 1, OMOPConceptID: 101, Provenance: domain.PROVENANCE_DERIVED},
	}

	result, err := enricher.Enrich(context.Background(), store, mappings, false)
	require.NoError(t, err)

	// Prior derived rows are dropped and nothing is regenerated
	assert.Equal(t, []domain.ConceptMapping{manualMapping(1, 100, false)}, result.Mappings)
	assert.Equal(t, 1, result.DerivedDropped)
	assert.Equal(t, 0, result.DerivedAdded)
}

func TestEnrich_Idempotent(t *testing.T) {
	store := snomedScenario()
	enricher := NewEnricher(enrichTestLogger(), nil)

	mappings := []domain.ConceptMapping{manualMapping(1, 100, true)}

	first, err := enricher.Enrich(context.Background(), store, mappings, false)
	require.NoError(t, err)

	second, err := enricher.Enrich(context.Background(), store, first.Mappings, false)
	require.NoError(t, err)

	assert.Equal(t, first.Mappings, second.Mappings)
}

func TestEnrich_NoDuplicatePairs(t *testing.T) {
	store := snomedScenario()
	// 101 is reachable both via relationship edge and as a descendant
	store.addDescendant(100, 101)

	enricher := NewEnricher(enrichTestLogger(), nil)
	// The pair (1, 101) also already exists as a manual row
	mappings := []domain.ConceptMapping{
		manualMapping(1, 100, true),
		manualMapping(1, 101, false),
	}

	result, err := enricher.Enrich(context.Background(), store, mappings, false)
	require.NoError(t, err)

	seen := make(map[domain.MappingKey]int)
	for _, m := range result.Mappings {
		seen[m.Key()]++
	}
	for key, n := range seen {
		assert.Equal(t, 1, n, "pair %v appears %d times", key, n)
	}

	// 101 stayed manual, only 102 was derived
	derived := derivedRows(result.Mappings)
	require.Len(t, derived, 1)
	assert.Equal(t, int64(102), derived[0].OMOPConceptID)
}

func TestEnrich_PreserveRecommendedRoundTrip(t *testing.T) {
	store := snomedScenario()
	enricher := NewEnricher(enrichTestLogger(), nil)
	ctx := context.Background()

	mappings := []domain.ConceptMapping{manualMapping(1, 100, true)}

	first, err := enricher.Enrich(ctx, store, mappings, true)
	require.NoError(t, err)

	// Curator recommends derived pair (1, 101)
	current := first.Mappings
	for i := range current {
		if current[i].Provenance.IsDerived() && current[i].OMOPConceptID == 101 {
			current[i].Recommended = true
		}
	}

	second, err := enricher.Enrich(ctx, store, current, true)
	require.NoError(t, err)

	var got map[int64]bool = map[int64]bool{}
	for _, d := range derivedRows(second.Mappings) {
		got[d.OMOPConceptID] = d.Recommended
	}
	assert.True(t, got[101], "recommended flag should carry over")
	assert.False(t, got[102])

	// Without preservation, everything resets
	third, err := enricher.Enrich(ctx, store, second.Mappings, false)
	require.NoError(t, err)
	for _, d := range derivedRows(third.Mappings) {
		assert.False(t, d.Recommended)
	}
}

func TestEnrich_UnitConceptCarried(t *testing.T) {
	store := snomedScenario()
	enricher := NewEnricher(enrichTestLogger(), nil)

	unit := int64(8840)
	src := manualMapping(1, 100, true)
	src.UnitConceptID = &unit

	result, err := enricher.Enrich(context.Background(), store, []domain.ConceptMapping{src}, false)
	require.NoError(t, err)

	for _, d := range derivedRows(result.Mappings) {
		require.NotNil(t, d.UnitConceptID)
		assert.Equal(t, unit, *d.UnitConceptID)
	}
}

func TestEnrich_CustomAllowList(t *testing.T) {
	store := newFakeStore()
	store.addConcept(400, "ATC source", "Observation", "ATC", "ATC 5th", "")
	store.addConcept(401, "ATC target", "Observation", "ATC", "ATC 5th", "")
	store.addEdge(400, 401, domain.RelationshipMapsTo)

	// ATC is not in the default allow-list but can be configured in
	enricher := NewEnricher(enrichTestLogger(), []string{"ATC"})
	mappings := []domain.ConceptMapping{manualMapping(1, 400, true)}

	result, err := enricher.Enrich(context.Background(), store, mappings, false)
	require.NoError(t, err)

	derived := derivedRows(result.Mappings)
	require.Len(t, derived, 1)
	assert.Equal(t, int64(401), derived[0].OMOPConceptID)
}
