package domain

import (
	"context"
	"io"
)

// VocabularyStore is the read-only handle onto the OMOP vocabulary tables.
// Lookups may miss: a concept ID absent from the store yields ErrNotFound
// from Concept and empty slices from the edge lookups, never a fatal error.
type VocabularyStore interface {
	// Concept looks up a single concept by ID.
	Concept(ctx context.Context, conceptID int64) (*Concept, error)

	// Concepts looks up a batch of concepts by ID; missing IDs are omitted.
	Concepts(ctx context.Context, conceptIDs []int64) (map[int64]*Concept, error)

	// RelationshipsFrom returns the target concept IDs of relationship edges
	// of the given kinds leaving the concept.
	RelationshipsFrom(ctx context.Context, conceptID int64, kinds []string) ([]int64, error)

	// DescendantsOf returns all descendant concept IDs via the
	// transitive-closure table.
	DescendantsOf(ctx context.Context, conceptID int64) ([]int64, error)

	// Parents returns the direct parents (one level up) of the concept.
	Parents(ctx context.Context, conceptID int64) ([]int64, error)

	// Children returns the direct children (one level down) of the concept.
	Children(ctx context.Context, conceptID int64) ([]int64, error)
}

// MappingStore persists the ConceptMapping collection. The enrichment engine
// never touches persistence directly: callers Load the full set, run the
// engine, and Replace-save the result.
type MappingStore interface {
	Load(ctx context.Context) ([]ConceptMapping, error)
	LoadByGeneralConcept(ctx context.Context, generalConceptID int64) ([]ConceptMapping, error)
	Replace(ctx context.Context, mappings []ConceptMapping) error
	Upsert(ctx context.Context, mapping *ConceptMapping) error
	Delete(ctx context.Context, key MappingKey) error
	CountByProvenance(ctx context.Context) (map[Provenance]int64, error)
	ExportCSV(ctx context.Context, w io.Writer) error
	ImportCSV(ctx context.Context, r io.Reader) (imported int, skipped int, err error)
	Close() error
}

// GeneralConceptRepository persists curated general concepts.
type GeneralConceptRepository interface {
	Create(ctx context.Context, concept *GeneralConcept) error
	GetByID(ctx context.Context, id int64) (*GeneralConcept, error)
	List(ctx context.Context, search string, limit, offset int) ([]*GeneralConcept, error)
	Update(ctx context.Context, concept *GeneralConcept) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int64, error)
}

// HistoryRepository persists the dictionary audit trail.
type HistoryRepository interface {
	Append(ctx context.Context, entry *HistoryEntry) error
	ListByGeneralConcept(ctx context.Context, generalConceptID int64, limit, offset int) ([]*HistoryEntry, error)
	ListRecent(ctx context.Context, limit, offset int) ([]*HistoryEntry, error)
}

// ConceptResolver resolves concept details, falling back to a remote source
// for concepts absent from the local vocabulary store.
type ConceptResolver interface {
	Resolve(ctx context.Context, conceptID int64) (*Concept, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetVocabularyConfig() *VocabularyConfig
	GetServerConfig() *ServerConfig
	GetEnrichmentConfig() *EnrichmentConfig
	GetHierarchyConfig() *HierarchyConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
