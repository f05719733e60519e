// Package vocabulary provides the local OMOP vocabulary store: a SQLite
// database holding the concept, concept_relationship and concept_ancestor
// tables from an OHDSI Athena release, plus a CSV importer and an LRU-cached
// read decorator.
//
// The store is effectively read-only at query time; the importer is the only
// writer and runs out-of-band.
package vocabulary

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/indicate-eu/data-dictionary/internal/domain"
)

// Store implements domain.VocabularyStore backed by SQLite.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens the vocabulary database at dbPath, creating the file and
// schema if they don't exist.
func NewStore(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// Open database
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	// Create schema
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanConcept scans a row into a Concept struct.
func scanConcept(s scanner) (*domain.Concept, error) {
	c := &domain.Concept{}
	var standardCode, invalidReason sql.NullString

	err := s.Scan(
		&c.ConceptID, &c.Name, &c.DomainID, &c.VocabularyID,
		&c.ConceptClassID, &standardCode, &c.Code, &invalidReason,
	)
	if err != nil {
		return nil, err
	}

	c.StandardTier = domain.StandardTierFromCode(standardCode.String)
	c.InvalidReason = invalidReason.String
	return c, nil
}

// createSchema creates the vocabulary tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS concept (
		concept_id INTEGER PRIMARY KEY,
		concept_name TEXT NOT NULL,
		domain_id TEXT NOT NULL,
		vocabulary_id TEXT NOT NULL,
		concept_class_id TEXT NOT NULL,
		standard_concept TEXT,
		concept_code TEXT NOT NULL,
		invalid_reason TEXT
	);

	CREATE TABLE IF NOT EXISTS concept_relationship (
		concept_id_1 INTEGER NOT NULL,
		concept_id_2 INTEGER NOT NULL,
		relationship_id TEXT NOT NULL,
		PRIMARY KEY (concept_id_1, concept_id_2, relationship_id)
	);

	CREATE TABLE IF NOT EXISTS concept_ancestor (
		ancestor_concept_id INTEGER NOT NULL,
		descendant_concept_id INTEGER NOT NULL,
		min_levels_of_separation INTEGER NOT NULL DEFAULT 0,
		max_levels_of_separation INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (ancestor_concept_id, descendant_concept_id)
	);

	CREATE INDEX IF NOT EXISTS idx_concept_vocabulary ON concept(vocabulary_id);
	CREATE INDEX IF NOT EXISTS idx_relationship_from ON concept_relationship(concept_id_1, relationship_id);
	CREATE INDEX IF NOT EXISTS idx_ancestor_desc ON concept_ancestor(descendant_concept_id, min_levels_of_separation);
	CREATE INDEX IF NOT EXISTS idx_ancestor_anc ON concept_ancestor(ancestor_concept_id, min_levels_of_separation);
	`

	_, err := db.Exec(schema)
	return err
}

const conceptColumns = `concept_id, concept_name, domain_id, vocabulary_id,
		concept_class_id, standard_concept, concept_code, invalid_reason`

// Concept looks up a single concept by ID. Returns domain.ErrNotFound when
// the ID is absent from the store.
func (s *Store) Concept(ctx context.Context, conceptID int64) (*domain.Concept, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+conceptColumns+`
		FROM concept
		WHERE concept_id = ?
	`, conceptID)

	c, err := scanConcept(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("concept %d: %w", conceptID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan concept: %w", err)
	}
	return c, nil
}

// Concepts looks up a batch of concepts by ID; missing IDs are omitted from
// the result map.
func (s *Store) Concepts(ctx context.Context, conceptIDs []int64) (map[int64]*domain.Concept, error) {
	result := make(map[int64]*domain.Concept, len(conceptIDs))
	if len(conceptIDs) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(conceptIDs))
	args := make([]interface{}, len(conceptIDs))
	for i, id := range conceptIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conceptColumns+`
		FROM concept
		WHERE concept_id IN (`+strings.Join(placeholders, ",")+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query concepts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan concept row: %w", err)
		}
		result[c.ConceptID] = c
	}
	return result, rows.Err()
}

// RelationshipsFrom returns the target concept IDs of relationship edges of
// the given kinds leaving the concept.
func (s *Store) RelationshipsFrom(ctx context.Context, conceptID int64, kinds []string) ([]int64, error) {
	if len(kinds) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(kinds))
	args := make([]interface{}, 0, len(kinds)+1)
	args = append(args, conceptID)
	for i, kind := range kinds {
		placeholders[i] = "?"
		args = append(args, kind)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT concept_id_2
		FROM concept_relationship
		WHERE concept_id_1 = ? AND relationship_id IN (`+strings.Join(placeholders, ",")+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	return collectIDs(rows)
}

// DescendantsOf returns all descendant concept IDs via the transitive-closure
// table. The self-referencing closure row (separation 0) is excluded.
func (s *Store) DescendantsOf(ctx context.Context, conceptID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT descendant_concept_id
		FROM concept_ancestor
		WHERE ancestor_concept_id = ? AND descendant_concept_id != ?
	`, conceptID, conceptID)
	if err != nil {
		return nil, fmt.Errorf("failed to query descendants: %w", err)
	}
	defer rows.Close()

	return collectIDs(rows)
}

// Parents returns the direct parents (one level up) of the concept.
func (s *Store) Parents(ctx context.Context, conceptID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ancestor_concept_id
		FROM concept_ancestor
		WHERE descendant_concept_id = ? AND min_levels_of_separation = 1
	`, conceptID)
	if err != nil {
		return nil, fmt.Errorf("failed to query parents: %w", err)
	}
	defer rows.Close()

	return collectIDs(rows)
}

// Children returns the direct children (one level down) of the concept.
func (s *Store) Children(ctx context.Context, conceptID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT descendant_concept_id
		FROM concept_ancestor
		WHERE ancestor_concept_id = ? AND min_levels_of_separation = 1
	`, conceptID)
	if err != nil {
		return nil, fmt.Errorf("failed to query children: %w", err)
	}
	defer rows.Close()

	return collectIDs(rows)
}

// ConceptCount returns the number of concepts in the store.
func (s *Store) ConceptCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM concept").Scan(&count)
	return count, err
}

// collectIDs drains an ID result set into a slice.
func collectIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan concept ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the store and releases resources.
func (s *Store) Close() error {
	return s.db.Close()
}
