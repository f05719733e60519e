package service

import (
	"context"
	"fmt"

	"github.com/indicate-eu/data-dictionary/internal/domain"
)

// StatisticsService aggregates dictionary-wide numbers for reporting. The
// vocabulary breakdowns are best-effort: they stay empty when the vocabulary
// store is not configured.
type StatisticsService struct {
	mappings domain.MappingStore
	concepts domain.GeneralConceptRepository
	store    domain.VocabularyStore
}

// NewStatisticsService creates a statistics service. store may be nil.
func NewStatisticsService(mappings domain.MappingStore, concepts domain.GeneralConceptRepository, store domain.VocabularyStore) *StatisticsService {
	return &StatisticsService{
		mappings: mappings,
		concepts: concepts,
		store:    store,
	}
}

// Collect computes the current dictionary statistics.
func (s *StatisticsService) Collect(ctx context.Context) (*domain.MappingStatistics, error) {
	stats := &domain.MappingStatistics{}

	counts, err := s.mappings.CountByProvenance(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting mappings: %w", err)
	}
	stats.ManualMappings = counts[domain.PROVENANCE_MANUAL]
	stats.DerivedMappings = counts[domain.PROVENANCE_DERIVED]
	stats.TotalMappings = stats.ManualMappings + stats.DerivedMappings

	generalConcepts, err := s.concepts.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting general concepts: %w", err)
	}
	stats.GeneralConcepts = generalConcepts

	all, err := s.mappings.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading mappings: %w", err)
	}
	for i := range all {
		if all[i].Recommended {
			stats.Recommended++
		}
	}

	if s.store != nil {
		if err := s.breakdown(ctx, all, stats); err != nil {
			return nil, err
		}
	}

	return stats, nil
}

// breakdown resolves the mapped OMOP concepts and tallies them by vocabulary
// and domain. Orphaned references are left out of the tallies.
func (s *StatisticsService) breakdown(ctx context.Context, all []domain.ConceptMapping, stats *domain.MappingStatistics) error {
	idSet := make(map[int64]struct{}, len(all))
	ids := make([]int64, 0, len(all))
	for i := range all {
		if _, ok := idSet[all[i].OMOPConceptID]; ok {
			continue
		}
		idSet[all[i].OMOPConceptID] = struct{}{}
		ids = append(ids, all[i].OMOPConceptID)
	}

	concepts, err := s.store.Concepts(ctx, ids)
	if err != nil {
		return fmt.Errorf("resolving mapped concepts: %w", err)
	}

	stats.ByVocabulary = make(map[string]int64)
	stats.ByDomain = make(map[string]int64)
	for i := range all {
		c, ok := concepts[all[i].OMOPConceptID]
		if !ok {
			continue
		}
		stats.ByVocabulary[c.VocabularyID]++
		stats.ByDomain[c.DomainID]++
	}

	return nil
}
