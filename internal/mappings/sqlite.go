package mappings

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/indicate-eu/data-dictionary/internal/domain"
)

// SQLiteStore implements domain.MappingStore using SQLite. It is the default
// backend for single-node deployments and shares the data directory with the
// vocabulary store.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite mapping store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the mapping table and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS concept_mappings (
		general_concept_id INTEGER NOT NULL,
		omop_concept_id INTEGER NOT NULL,
		unit_concept_id INTEGER,
		recommended INTEGER NOT NULL DEFAULT 0,
		source TEXT NOT NULL DEFAULT 'manual',
		PRIMARY KEY (general_concept_id, omop_concept_id)
	);

	CREATE INDEX IF NOT EXISTS idx_mappings_general ON concept_mappings(general_concept_id);
	CREATE INDEX IF NOT EXISTS idx_mappings_source ON concept_mappings(source);
	`

	_, err := db.Exec(schema)
	return err
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanMapping scans a row into a ConceptMapping.
func scanMapping(s scanner) (domain.ConceptMapping, error) {
	var m domain.ConceptMapping
	var unit sql.NullInt64
	var provenance string

	err := s.Scan(&m.GeneralConceptID, &m.OMOPConceptID, &unit, &m.Recommended, &provenance)
	if err != nil {
		return domain.ConceptMapping{}, err
	}

	if unit.Valid {
		m.UnitConceptID = &unit.Int64
	}
	m.Provenance = domain.Provenance(provenance)
	return m, nil
}

const mappingColumns = "general_concept_id, omop_concept_id, unit_concept_id, recommended, source"

// Load returns the full mapping set.
func (s *SQLiteStore) Load(ctx context.Context) ([]domain.ConceptMapping, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM concept_mappings
		ORDER BY general_concept_id, omop_concept_id
	`, mappingColumns)

	return s.queryMappings(ctx, query)
}

// LoadByGeneralConcept returns the mappings of a single general concept.
func (s *SQLiteStore) LoadByGeneralConcept(ctx context.Context, generalConceptID int64) ([]domain.ConceptMapping, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM concept_mappings
		WHERE general_concept_id = ?
		ORDER BY omop_concept_id
	`, mappingColumns)

	return s.queryMappings(ctx, query, generalConceptID)
}

func (s *SQLiteStore) queryMappings(ctx context.Context, query string, args ...interface{}) ([]domain.ConceptMapping, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query mappings: %w", err)
	}
	defer rows.Close()

	var result []domain.ConceptMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// Replace swaps the stored mapping set for the given one in a single
// transaction. This is how enrichment results are persisted: the run is
// all-or-nothing, a failed replace leaves the previous set intact.
func (s *SQLiteStore) Replace(ctx context.Context, mappings []domain.ConceptMapping) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM concept_mappings"); err != nil {
		return fmt.Errorf("failed to clear mappings: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO concept_mappings (general_concept_id, omop_concept_id, unit_concept_id, recommended, source)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range mappings {
		m := &mappings[i]
		if err := m.Validate(); err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, m.GeneralConceptID, m.OMOPConceptID, nullableID(m.UnitConceptID), m.Recommended, string(m.Provenance)); err != nil {
			return fmt.Errorf("failed to insert mapping (%d, %d): %w", m.GeneralConceptID, m.OMOPConceptID, err)
		}
	}

	return tx.Commit()
}

// Upsert inserts a mapping or updates an existing row with the same
// composite key.
func (s *SQLiteStore) Upsert(ctx context.Context, mapping *domain.ConceptMapping) error {
	if err := mapping.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO concept_mappings (general_concept_id, omop_concept_id, unit_concept_id, recommended, source)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (general_concept_id, omop_concept_id) DO UPDATE SET
			unit_concept_id = excluded.unit_concept_id,
			recommended = excluded.recommended,
			source = excluded.source
	`, mapping.GeneralConceptID, mapping.OMOPConceptID, nullableID(mapping.UnitConceptID), mapping.Recommended, string(mapping.Provenance))
	if err != nil {
		return fmt.Errorf("failed to upsert mapping: %w", err)
	}
	return nil
}

// Delete removes a mapping by composite key.
func (s *SQLiteStore) Delete(ctx context.Context, key domain.MappingKey) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM concept_mappings WHERE general_concept_id = ? AND omop_concept_id = ?",
		key.GeneralConceptID, key.OMOPConceptID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete mapping: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CountByProvenance returns the mapping count per provenance value.
func (s *SQLiteStore) CountByProvenance(ctx context.Context) (map[domain.Provenance]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT source, COUNT(*) FROM concept_mappings GROUP BY source")
	if err != nil {
		return nil, fmt.Errorf("failed to count mappings: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Provenance]int64)
	for rows.Next() {
		var provenance string
		var count int64
		if err := rows.Scan(&provenance, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[domain.Provenance(provenance)] = count
	}
	return counts, rows.Err()
}

// ExportCSV writes the full mapping set in the dictionary exchange format.
func (s *SQLiteStore) ExportCSV(ctx context.Context, w io.Writer) error {
	all, err := s.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load mappings: %w", err)
	}
	return writeCSV(w, all)
}

// ImportCSV imports mappings from the dictionary exchange format. Rows whose
// composite key already exists are skipped, matching the store's
// curator-wins policy.
func (s *SQLiteStore) ImportCSV(ctx context.Context, r io.Reader) (imported int, skipped int, err error) {
	incoming, malformed, err := readCSV(r)
	if err != nil {
		return 0, 0, err
	}
	skipped = malformed

	for i := range incoming {
		m := &incoming[i]

		var exists int
		err := s.db.QueryRowContext(ctx,
			"SELECT 1 FROM concept_mappings WHERE general_concept_id = ? AND omop_concept_id = ?",
			m.GeneralConceptID, m.OMOPConceptID,
		).Scan(&exists)
		if err == nil {
			skipped++
			continue
		}
		if err != sql.ErrNoRows {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}

		if err := s.Upsert(ctx, m); err != nil {
			return imported, skipped, err
		}
		imported++
	}

	return imported, skipped, nil
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullableID(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}
