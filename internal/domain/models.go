package domain

import (
	"errors"
	"fmt"
	"time"
)

// Concept represents an OMOP vocabulary concept. Concepts are immutable
// reference data loaded from the vocabulary store; the dictionary never
// creates or mutates them.
type Concept struct {
	ConceptID      int64        `json:"concept_id"`
	Name           string       `json:"concept_name"`
	VocabularyID   string       `json:"vocabulary_id"`
	DomainID       string       `json:"domain_id"`
	ConceptClassID string       `json:"concept_class_id"`
	Code           string       `json:"concept_code"`
	StandardTier   StandardTier `json:"standard_tier"`
	InvalidReason  string       `json:"invalid_reason,omitempty"`
}

// IsValidConcept reports whether the concept carries no invalidity marker.
func (c *Concept) IsValidConcept() bool {
	return c.InvalidReason == ""
}

// ConceptRelationship is a directed edge between two vocabulary concepts,
// e.g. "Maps to" or "Mapped from". Immutable reference data.
type ConceptRelationship struct {
	FromConceptID    int64  `json:"concept_id_1"`
	ToConceptID      int64  `json:"concept_id_2"`
	RelationshipKind string `json:"relationship_id"`
}

// ConceptAncestor is a transitive-closure edge of the vocabulary hierarchy.
// MinLevels/MaxLevels carry the separation metadata from the closure table;
// direct parent/child edges have MinLevels == 1.
type ConceptAncestor struct {
	AncestorConceptID   int64 `json:"ancestor_concept_id"`
	DescendantConceptID int64 `json:"descendant_concept_id"`
	MinLevels           int   `json:"min_levels_of_separation"`
	MaxLevels           int   `json:"max_levels_of_separation"`
}

// ConceptMapping links a curated general concept to an OMOP vocabulary
// concept. The pair (GeneralConceptID, OMOPConceptID) is unique within the
// mapping set. Manual rows are created and edited by curators; derived rows
// belong to the enrichment engine.
type ConceptMapping struct {
	GeneralConceptID int64      `json:"general_concept_id"`
	OMOPConceptID    int64      `json:"omop_concept_id"`
	UnitConceptID    *int64     `json:"unit_concept_id,omitempty"`
	Recommended      bool       `json:"recommended"`
	Provenance       Provenance `json:"source"`
}

// Key returns the composite identity of the mapping within the mapping set.
func (m *ConceptMapping) Key() MappingKey {
	return MappingKey{GeneralConceptID: m.GeneralConceptID, OMOPConceptID: m.OMOPConceptID}
}

// Validate ensures the mapping row meets dictionary requirements before it
// enters the persistence layer.
func (m *ConceptMapping) Validate() error {
	if m.GeneralConceptID <= 0 {
		return fmt.Errorf("mapping validation: %w", errors.New("general concept ID must be positive"))
	}
	if m.OMOPConceptID <= 0 {
		return fmt.Errorf("mapping validation: %w", errors.New("OMOP concept ID must be positive"))
	}
	if err := m.Provenance.Validate(); err != nil {
		return fmt.Errorf("mapping validation: %w", err)
	}
	return nil
}

// MappingKey is the composite (general concept, OMOP concept) pair used for
// set-based deduplication across the mapping collection.
type MappingKey struct {
	GeneralConceptID int64
	OMOPConceptID    int64
}

// GeneralConcept is an application-defined clinical abstraction (e.g.
// "Hemoglobin A1c") that maps to one or more standard vocabulary concepts.
type GeneralConcept struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate ensures the general concept meets dictionary requirements.
func (g *GeneralConcept) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("general concept validation: %w", errors.New("name is required"))
	}
	return nil
}

// HistoryEntry records a change to the dictionary for the audit trail.
type HistoryEntry struct {
	ID               string    `json:"id"`
	GeneralConceptID int64     `json:"general_concept_id,omitempty"`
	Action           string    `json:"action"`
	Detail           string    `json:"detail,omitempty"`
	Actor            string    `json:"actor,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// History actions recorded by the service layer.
const (
	ActionMappingCreated = "mapping_created"
	ActionMappingUpdated = "mapping_updated"
	ActionMappingDeleted = "mapping_deleted"
	ActionEnrichmentRun  = "enrichment_run"
	ActionMappingsImport = "mappings_imported"
	ActionConceptCreated = "general_concept_created"
	ActionConceptUpdated = "general_concept_updated"
	ActionConceptDeleted = "general_concept_deleted"
)

// HierarchyCount is the pre-flight result of a bounded hierarchy traversal.
// TotalCount is a promise about what BuildHierarchyGraph will subsequently
// materialize for the same bounds.
type HierarchyCount struct {
	AncestorCount   int `json:"ancestor_count"`
	DescendantCount int `json:"descendant_count"`
	TotalCount      int `json:"total_count"`
}

// NodeTier places a hierarchy graph node relative to the focal concept.
type NodeTier string

const (
	TierAncestor   NodeTier = "ancestor"
	TierSelf       NodeTier = "self"
	TierDescendant NodeTier = "descendant"
)

// HierarchyNode is a renderable node of the concept hierarchy graph. Level is
// negative for ancestors, zero for the focal concept, positive for
// descendants.
type HierarchyNode struct {
	ConceptID int64    `json:"id"`
	Label     string   `json:"label"`
	Level     int      `json:"level"`
	Tier      NodeTier `json:"tier"`
	Current   bool     `json:"current,omitempty"`
	Previous  bool     `json:"previous,omitempty"`
}

// HierarchyEdge is a direct parent→child relation actually traversed while
// building the graph.
type HierarchyEdge struct {
	ParentConceptID int64 `json:"from"`
	ChildConceptID  int64 `json:"to"`
}

// HierarchyGraph is the materialized node/edge set for a bounded hierarchy
// traversal around a focal concept.
type HierarchyGraph struct {
	Nodes []HierarchyNode `json:"nodes"`
	Edges []HierarchyEdge `json:"edges"`
	Stats HierarchyCount  `json:"stats"`
}

// MappingStatistics summarizes the mapping collection for the dictionary's
// statistics screen.
type MappingStatistics struct {
	TotalMappings   int64            `json:"total_mappings"`
	ManualMappings  int64            `json:"manual_mappings"`
	DerivedMappings int64            `json:"derived_mappings"`
	Recommended     int64            `json:"recommended_mappings"`
	GeneralConcepts int64            `json:"general_concepts"`
	ByVocabulary    map[string]int64 `json:"by_vocabulary,omitempty"`
	ByDomain        map[string]int64 `json:"by_domain,omitempty"`
}
