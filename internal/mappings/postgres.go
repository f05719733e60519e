package mappings

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"

	"github.com/indicate-eu/data-dictionary/internal/domain"
)

// PostgresStore implements domain.MappingStore using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL mapping store.
// It expects the database and schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL mapping store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Load returns the full mapping set.
func (s *PostgresStore) Load(ctx context.Context) ([]domain.ConceptMapping, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM concept_mappings
		ORDER BY general_concept_id, omop_concept_id
	`, mappingColumns)

	return s.queryMappings(ctx, query)
}

// LoadByGeneralConcept returns the mappings of a single general concept.
func (s *PostgresStore) LoadByGeneralConcept(ctx context.Context, generalConceptID int64) ([]domain.ConceptMapping, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM concept_mappings
		WHERE general_concept_id = $1
		ORDER BY omop_concept_id
	`, mappingColumns)

	return s.queryMappings(ctx, query, generalConceptID)
}

func (s *PostgresStore) queryMappings(ctx context.Context, query string, args ...interface{}) ([]domain.ConceptMapping, error) {
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
// transaction.
func (s *PostgresStore) Replace(ctx context.Context, mappings []domain.ConceptMapping) error {
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
		VALUES ($1, $2, $3, $4, $5)
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
func (s *PostgresStore) Upsert(ctx context.Context, mapping *domain.ConceptMapping) error {
	if err := mapping.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO concept_mappings (general_concept_id, omop_concept_id, unit_concept_id, recommended, source)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (general_concept_id, omop_concept_id) DO UPDATE SET
			unit_concept_id = EXCLUDED.unit_concept_id,
			recommended = EXCLUDED.recommended,
			source = EXCLUDED.source
	`, mapping.GeneralConceptID, mapping.OMOPConceptID, nullableID(mapping.UnitConceptID), mapping.Recommended, string(mapping.Provenance))
	if err != nil {
		return fmt.Errorf("failed to upsert mapping: %w", err)
	}
	return nil
}

// Delete removes a mapping by composite key.
func (s *PostgresStore) Delete(ctx context.Context, key domain.MappingKey) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM concept_mappings WHERE general_concept_id = $1 AND omop_concept_id = $2",
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
func (s *PostgresStore) CountByProvenance(ctx context.Context) (map[domain.Provenance]int64, error) {
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
func (s *PostgresStore) ExportCSV(ctx context.Context, w io.Writer) error {
	all, err := s.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load mappings: %w", err)
	}
	return writeCSV(w, all)
}

// ImportCSV imports mappings from the dictionary exchange format. Rows whose
// composite key already exists are skipped.
func (s *PostgresStore) ImportCSV(ctx context.Context, r io.Reader) (imported int, skipped int, err error) {
	incoming, malformed, err := readCSV(r)
	if err != nil {
		return 0, 0, err
	}
	skipped = malformed

	for i := range incoming {
		m := &incoming[i]

		var exists int
		err := s.db.QueryRowContext(ctx,
			"SELECT 1 FROM concept_mappings WHERE general_concept_id = $1 AND omop_concept_id = $2",
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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
