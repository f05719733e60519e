// Package service implements the dictionary's core logic: relationship
// enrichment of curated concept mappings and bounded hierarchy traversal
// over the OMOP vocabulary graph.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/indicate-eu/data-dictionary/internal/domain"
)

// Enricher expands recommended manual mappings into derived mappings by
// following "Maps to"/"Mapped from" relationship edges and hierarchy
// descendants, restricted to the source concept's vocabulary.
//
// Derived rows are wholly owned by the enricher: every run drops and
// regenerates them, leaving manual rows untouched.
type Enricher struct {
	logger  *logrus.Logger
	allowed domain.VocabularySet
}

// NewEnricher creates an enricher. An empty allow-list falls back to the
// built-in domain.AllowedVocabularies.
func NewEnricher(logger *logrus.Logger, allowedVocabularies []string) *Enricher {
	if len(allowedVocabularies) == 0 {
		allowedVocabularies = domain.AllowedVocabularies
	}
	return &Enricher{
		logger:  logger,
		allowed: domain.NewVocabularySet(allowedVocabularies),
	}
}

// EnrichResult reports what an enrichment run did.
type EnrichResult struct {
	Mappings       []domain.ConceptMapping `json:"-"`
	ManualExpanded int                     `json:"manual_expanded"`
	DerivedAdded   int                     `json:"derived_added"`
	DerivedDropped int                     `json:"derived_dropped"`
	SkippedOrphans int                     `json:"skipped_orphans"`
	Elapsed        time.Duration           `json:"elapsed"`
}

// Enrich regenerates the derived portion of the mapping set.
//
// When preserveRecommended is set, derived rows that were marked recommended
// before the run keep that flag if the same (general concept, OMOP concept)
// pair is produced again; pairs that fell out of the candidate set and later
// reappear start over as not recommended.
func (e *Enricher) Enrich(ctx context.Context, store domain.VocabularyStore, mappings []domain.ConceptMapping, preserveRecommended bool) (*EnrichResult, error) {
	start := time.Now()

	if store == nil {
		return nil, fmt.Errorf("enrichment: %w", domain.ErrVocabularyNotConfigured)
	}

	// Snapshot the recommended derived pairs before dropping anything.
	carryOver := make(map[domain.MappingKey]struct{})
	if preserveRecommended {
		for i := range mappings {
			m := &mappings[i]
			if m.Provenance.IsDerived() && m.Recommended {
				carryOver[m.Key()] = struct{}{}
			}
		}
	}

	// Derived rows are fully regenerated, never incrementally patched.
	kept := make([]domain.ConceptMapping, 0, len(mappings))
	droppedDerived := 0
	for i := range mappings {
		if mappings[i].Provenance.IsDerived() {
			droppedDerived++
			continue
		}
		kept = append(kept, mappings[i])
	}

	// No recommended manual rows means no enrichment at all for this run.
	var sources []domain.ConceptMapping
	for i := range kept {
		if kept[i].Recommended {
			sources = append(sources, kept[i])
		}
	}
	if len(sources) == 0 {
		e.logger.Info("No recommended manual mappings; skipping enrichment")
		return &EnrichResult{
			Mappings:       kept,
			DerivedDropped: droppedDerived,
			Elapsed:        time.Since(start),
		}, nil
	}

	existing := make(map[domain.MappingKey]struct{}, len(kept))
	for i := range kept {
		existing[kept[i].Key()] = struct{}{}
	}

	result := &EnrichResult{
		DerivedDropped: droppedDerived,
	}

	for i := range sources {
		src := &sources[i]

		derived, skipped, err := e.expandMapping(ctx, store, src, carryOver, preserveRecommended, existing)
		if err != nil {
			return nil, err
		}
		if skipped {
			result.SkippedOrphans++
			continue
		}

		kept = append(kept, derived...)
		result.ManualExpanded++
		result.DerivedAdded += len(derived)
	}

	result.Mappings = kept
	result.Elapsed = time.Since(start)

	e.logger.WithFields(logrus.Fields{
		"manual_expanded": result.ManualExpanded,
		"derived_added":   result.DerivedAdded,
		"derived_dropped": result.DerivedDropped,
		"skipped_orphans": result.SkippedOrphans,
		"elapsed":         result.Elapsed,
	}).Info("Enrichment run completed")

	return result, nil
}

// expandMapping produces the derived rows for a single recommended manual
// mapping. It returns skipped=true when the source concept is orphaned or in
// a vocabulary outside the allow-list; both are expected data drift, not
// errors. The existing set is updated in place as rows are produced.
func (e *Enricher) expandMapping(
	ctx context.Context,
	store domain.VocabularyStore,
	src *domain.ConceptMapping,
	carryOver map[domain.MappingKey]struct{},
	preserveRecommended bool,
	existing map[domain.MappingKey]struct{},
) ([]domain.ConceptMapping, bool, error) {
	source, err := store.Concept(ctx, src.OMOPConceptID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Orphaned reference: vocabulary data was refreshed independently.
			e.logger.WithFields(logrus.Fields{
				"general_concept_id": src.GeneralConceptID,
				"omop_concept_id":    src.OMOPConceptID,
			}).Debug("Source concept not in vocabulary store; skipping mapping")
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("looking up source concept %d: %w", src.OMOPConceptID, err)
	}

	if !e.allowed.Contains(source.VocabularyID) {
		return nil, true, nil
	}

	// Candidates: relationship edges unioned with hierarchy descendants.
	// Set semantics so a concept reachable by both paths is produced once.
	related, err := store.RelationshipsFrom(ctx, source.ConceptID, []string{
		domain.RelationshipMapsTo,
		domain.RelationshipMappedFrom,
	})
	if err != nil {
		return nil, false, fmt.Errorf("looking up relationships of concept %d: %w", source.ConceptID, err)
	}

	descendants, err := store.DescendantsOf(ctx, source.ConceptID)
	if err != nil {
		return nil, false, fmt.Errorf("looking up descendants of concept %d: %w", source.ConceptID, err)
	}

	candidateSet := make(map[int64]struct{}, len(related)+len(descendants))
	for _, id := range related {
		candidateSet[id] = struct{}{}
	}
	for _, id := range descendants {
		candidateSet[id] = struct{}{}
	}

	candidateIDs := make([]int64, 0, len(candidateSet))
	for id := range candidateSet {
		candidateIDs = append(candidateIDs, id)
	}
	// Deterministic output order regardless of map iteration.
	sort.Slice(candidateIDs, func(i, j int) bool { return candidateIDs[i] < candidateIDs[j] })

	concepts, err := store.Concepts(ctx, candidateIDs)
	if err != nil {
		return nil, false, fmt.Errorf("resolving enrichment candidates of concept %d: %w", source.ConceptID, err)
	}

	var derived []domain.ConceptMapping
	for _, id := range candidateIDs {
		candidate, ok := concepts[id]
		if !ok {
			continue
		}
		if !e.eligible(source, candidate) {
			continue
		}

		row := domain.ConceptMapping{
			GeneralConceptID: src.GeneralConceptID,
			OMOPConceptID:    candidate.ConceptID,
			UnitConceptID:    src.UnitConceptID,
			Provenance:       domain.PROVENANCE_DERIVED,
		}
		if preserveRecommended {
			_, row.Recommended = carryOver[row.Key()]
		}

		// Composite-key dedup against the whole mapping set, manual and
		// already-appended derived rows alike.
		if _, dup := existing[row.Key()]; dup {
			continue
		}
		existing[row.Key()] = struct{}{}
		derived = append(derived, row)
	}

	return derived, false, nil
}

// eligible applies the candidate filters: same vocabulary as the source, no
// invalidity marker, and Drug-domain concepts restricted to the Clinical Drug
// class so expansion doesn't reach packaging or ingredient-only artifacts.
// The filter is the same for relationship-edge and descendant candidates.
func (e *Enricher) eligible(source, candidate *domain.Concept) bool {
	if candidate.VocabularyID != source.VocabularyID {
		return false
	}
	if !candidate.IsValidConcept() {
		return false
	}
	if candidate.DomainID == domain.DomainDrug && candidate.ConceptClassID != domain.ConceptClassClinicalDrug {
		return false
	}
	return true
}
