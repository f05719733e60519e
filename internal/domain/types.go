// Package domain contains core business entities and types for the concept
// dictionary: OMOP/OHDSI vocabulary concepts, curated general concepts, and
// the mappings between them.
//
// Reference: OHDSI Common Data Model vocabulary tables (CONCEPT,
// CONCEPT_RELATIONSHIP, CONCEPT_ANCESTOR).
package domain

import (
	"errors"
	"fmt"
)

// StandardTier represents OMOP's concept-standardization tiers, used to
// prioritize which vocabulary concepts represent canonical clinical meaning.
type StandardTier string

const (
	STANDARD       StandardTier = "Standard"
	CLASSIFICATION StandardTier = "Classification"
	NON_STANDARD   StandardTier = "Non-standard"
)

// Provenance distinguishes mappings entered by a human curator from mappings
// generated by the relationship enrichment engine. Derived rows are wholly
// owned by the enrichment pass and may be regenerated at any time.
type Provenance string

const (
	PROVENANCE_MANUAL  Provenance = "manual"
	PROVENANCE_DERIVED Provenance = "ohdsi_relationships"
)

// Relationship kinds followed during enrichment.
const (
	RelationshipMapsTo     = "Maps to"
	RelationshipMappedFrom = "Mapped from"
)

// Concept domains and classes with special handling in enrichment.
const (
	DomainDrug               = "Drug"
	ConceptClassClinicalDrug = "Clinical Drug"
)

// Validation errors for dictionary data integrity
var (
	ErrInvalidProvenance   = errors.New("invalid mapping provenance")
	ErrInvalidStandardTier = errors.New("invalid standard tier")
)

// StandardTierFromCode converts the OMOP standard_concept column value
// ("S", "C", or empty) into a StandardTier.
func StandardTierFromCode(code string) StandardTier {
	switch code {
	case "S":
		return STANDARD
	case "C":
		return CLASSIFICATION
	default:
		return NON_STANDARD
	}
}

// Code returns the OMOP standard_concept column value for the tier.
func (st StandardTier) Code() string {
	switch st {
	case STANDARD:
		return "S"
	case CLASSIFICATION:
		return "C"
	default:
		return ""
	}
}

// IsValid validates the standard tier.
func (st StandardTier) IsValid() bool {
	switch st {
	case STANDARD, CLASSIFICATION, NON_STANDARD:
		return true
	default:
		return false
	}
}

// IsValid validates the mapping provenance.
func (p Provenance) IsValid() bool {
	switch p {
	case PROVENANCE_MANUAL, PROVENANCE_DERIVED:
		return true
	default:
		return false
	}
}

// String returns the string representation of the provenance.
func (p Provenance) String() string {
	return string(p)
}

// IsDerived reports whether the provenance marks an enrichment-owned row.
func (p Provenance) IsDerived() bool {
	return p == PROVENANCE_DERIVED
}

// Validate ensures the provenance is one of the known values before a mapping
// row enters the persistence layer.
func (p Provenance) Validate() error {
	if !p.IsValid() {
		return fmt.Errorf("provenance validation: %w", ErrInvalidProvenance)
	}
	return nil
}

// AllowedVocabularies is the fixed allow-list of vocabularies that participate
// in relationship enrichment. It is a configuration constant, not persisted
// state; deployments can override it via the enrichment config section.
var AllowedVocabularies = []string{
	"RxNorm",
	"RxNorm Extension",
	"LOINC",
	"SNOMED",
	"ICD10",
}

// VocabularySet is a membership set over vocabulary IDs.
type VocabularySet map[string]struct{}

// NewVocabularySet builds a VocabularySet from a list of vocabulary IDs.
func NewVocabularySet(ids []string) VocabularySet {
	set := make(VocabularySet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Contains reports whether the vocabulary ID is in the set.
func (vs VocabularySet) Contains(vocabularyID string) bool {
	_, ok := vs[vocabularyID]
	return ok
}
