package vocabulary

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Athena export file names. The files are tab-separated despite the .csv
// extension.
const (
	conceptFile      = "CONCEPT.csv"
	relationshipFile = "CONCEPT_RELATIONSHIP.csv"
	ancestorFile     = "CONCEPT_ANCESTOR.csv"
)

// Loader imports an OHDSI Athena vocabulary export into the store in batched
// transactions.
type Loader struct {
	store     *Store
	batchSize int
	log       *logrus.Logger
}

// NewLoader creates a loader writing into the given store.
func NewLoader(store *Store, batchSize int, logger *logrus.Logger) *Loader {
	if batchSize <= 0 {
		batchSize = 5000
	}
	return &Loader{
		store:     store,
		batchSize: batchSize,
		log:       logger,
	}
}

// ImportStats summarizes an import run.
type ImportStats struct {
	Concepts      int64         `json:"concepts"`
	Relationships int64         `json:"relationships"`
	Ancestors     int64         `json:"ancestors"`
	Elapsed       time.Duration `json:"elapsed"`
}

// ImportDirectory imports CONCEPT.csv, CONCEPT_RELATIONSHIP.csv and
// CONCEPT_ANCESTOR.csv from sourceDir. Existing rows with the same keys are
// replaced, so re-running an import against a newer release is safe.
func (l *Loader) ImportDirectory(ctx context.Context, sourceDir string) (*ImportStats, error) {
	start := time.Now()
	stats := &ImportStats{}

	concepts, err := l.importFile(ctx, filepath.Join(sourceDir, conceptFile), l.insertConceptBatch)
	if err != nil {
		return nil, fmt.Errorf("importing %s: %w", conceptFile, err)
	}
	stats.Concepts = concepts

	relationships, err := l.importFile(ctx, filepath.Join(sourceDir, relationshipFile), l.insertRelationshipBatch)
	if err != nil {
		return nil, fmt.Errorf("importing %s: %w", relationshipFile, err)
	}
	stats.Relationships = relationships

	ancestors, err := l.importFile(ctx, filepath.Join(sourceDir, ancestorFile), l.insertAncestorBatch)
	if err != nil {
		return nil, fmt.Errorf("importing %s: %w", ancestorFile, err)
	}
	stats.Ancestors = ancestors

	stats.Elapsed = time.Since(start)
	l.log.WithFields(logrus.Fields{
		"concepts":      stats.Concepts,
		"relationships": stats.Relationships,
		"ancestors":     stats.Ancestors,
		"elapsed":       stats.Elapsed,
	}).Info("Vocabulary import completed")

	return stats, nil
}

// batchInserter writes a batch of parsed records inside a transaction.
type batchInserter func(tx *sql.Tx, records [][]string) (int64, error)

// importFile streams a tab-separated Athena file through the inserter in
// batches. The header row is skipped; short or malformed rows are counted and
// skipped rather than aborting the import.
func (l *Loader) importFile(ctx context.Context, path string, insert batchInserter) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	// Skip header
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read header: %w", err)
	}

	var total, malformed int64
	batch := make([][]string, 0, l.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		tx, err := l.store.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		inserted, err := insert(tx, batch)
		if err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit batch: %w", err)
		}
		total += inserted
		batch = batch[:0]
		return nil
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			malformed++
			continue
		}
		batch = append(batch, record)
		if len(batch) >= l.batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}

	if malformed > 0 {
		l.log.WithFields(logrus.Fields{
			"file":      filepath.Base(path),
			"malformed": malformed,
		}).Warn("Skipped malformed vocabulary rows")
	}

	return total, nil
}

// Athena CONCEPT.csv column order:
// concept_id, concept_name, domain_id, vocabulary_id, concept_class_id,
// standard_concept, concept_code, valid_start_date, valid_end_date,
// invalid_reason
func (l *Loader) insertConceptBatch(tx *sql.Tx, records [][]string) (int64, error) {
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO concept (
			concept_id, concept_name, domain_id, vocabulary_id,
			concept_class_id, standard_concept, concept_code, invalid_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare concept insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, rec := range records {
		if len(rec) < 10 {
			continue
		}
		id, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			continue
		}
		if _, err := stmt.Exec(id, rec[1], rec[2], rec[3], rec[4], nullable(rec[5]), rec[6], nullable(rec[9])); err != nil {
			return inserted, fmt.Errorf("failed to insert concept %d: %w", id, err)
		}
		inserted++
	}
	return inserted, nil
}

// Athena CONCEPT_RELATIONSHIP.csv column order:
// concept_id_1, concept_id_2, relationship_id, valid_start_date,
// valid_end_date, invalid_reason
func (l *Loader) insertRelationshipBatch(tx *sql.Tx, records [][]string) (int64, error) {
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO concept_relationship (
			concept_id_1, concept_id_2, relationship_id
		) VALUES (?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare relationship insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, rec := range records {
		if len(rec) < 3 {
			continue
		}
		from, err1 := strconv.ParseInt(rec[0], 10, 64)
		to, err2 := strconv.ParseInt(rec[1], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		if _, err := stmt.Exec(from, to, rec[2]); err != nil {
			return inserted, fmt.Errorf("failed to insert relationship %d->%d: %w", from, to, err)
		}
		inserted++
	}
	return inserted, nil
}

// Athena CONCEPT_ANCESTOR.csv column order:
// ancestor_concept_id, descendant_concept_id, min_levels_of_separation,
// max_levels_of_separation
func (l *Loader) insertAncestorBatch(tx *sql.Tx, records [][]string) (int64, error) {
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO concept_ancestor (
			ancestor_concept_id, descendant_concept_id,
			min_levels_of_separation, max_levels_of_separation
		) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare ancestor insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, rec := range records {
		if len(rec) < 4 {
			continue
		}
		anc, err1 := strconv.ParseInt(rec[0], 10, 64)
		desc, err2 := strconv.ParseInt(rec[1], 10, 64)
		minLv, err3 := strconv.Atoi(rec[2])
		maxLv, err4 := strconv.Atoi(rec[3])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		if _, err := stmt.Exec(anc, desc, minLv, maxLv); err != nil {
			return inserted, fmt.Errorf("failed to insert ancestor %d->%d: %w", anc, desc, err)
		}
		inserted++
	}
	return inserted, nil
}

// nullable maps empty strings to NULL.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
