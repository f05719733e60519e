// Package repository handles PostgreSQL persistence for the curated side of
// the dictionary: general concepts and the audit trail.
package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/indicate-eu/data-dictionary/internal/domain"
)

// GeneralConceptRepository handles general concept persistence
type GeneralConceptRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewGeneralConceptRepository creates a new general concept repository
func NewGeneralConceptRepository(db *pgxpool.Pool, logger *logrus.Logger) *GeneralConceptRepository {
	return &GeneralConceptRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts a new general concept and assigns its ID
func (r *GeneralConceptRepository) Create(ctx context.Context, concept *domain.GeneralConcept) error {
	if err := concept.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO general_concepts (name, category, description)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		concept.Name,
		concept.Category,
		concept.Description,
	).Scan(&concept.ID, &concept.CreatedAt, &concept.UpdatedAt)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"name":  concept.Name,
			"error": err,
		}).Error("Failed to create general concept")
		return fmt.Errorf("creating general concept: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"general_concept_id": concept.ID,
		"name":               concept.Name,
	}).Info("General concept created successfully")

	return nil
}

// GetByID retrieves a general concept by its ID
func (r *GeneralConceptRepository) GetByID(ctx context.Context, id int64) (*domain.GeneralConcept, error) {
	query := `
		SELECT id, name, category, description, created_at, updated_at
		FROM general_concepts
		WHERE id = $1`

	var concept domain.GeneralConcept

	err := r.db.QueryRow(ctx, query, id).Scan(
		&concept.ID,
		&concept.Name,
		&concept.Category,
		&concept.Description,
		&concept.CreatedAt,
		&concept.UpdatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("general concept not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"general_concept_id": id,
			"error":              err,
		}).Error("Failed to get general concept by ID")
		return nil, fmt.Errorf("getting general concept by ID: %w", err)
	}

	return &concept, nil
}

// List retrieves general concepts with optional case-insensitive name search
// and pagination
func (r *GeneralConceptRepository) List(ctx context.Context, search string, limit, offset int) ([]*domain.GeneralConcept, error) {
	query := `
		SELECT id, name, category, description, created_at, updated_at
		FROM general_concepts
		WHERE $1 = '' OR LOWER(name) LIKE LOWER('%' || $1 || '%')
		ORDER BY name
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, search, limit, offset)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"search": search,
			"error":  err,
		}).Error("Failed to list general concepts")
		return nil, fmt.Errorf("listing general concepts: %w", err)
	}
	defer rows.Close()

	var concepts []*domain.GeneralConcept
	for rows.Next() {
		var concept domain.GeneralConcept

		err := rows.Scan(
			&concept.ID,
			&concept.Name,
			&concept.Category,
			&concept.Description,
			&concept.CreatedAt,
			&concept.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning general concept row: %w", err)
		}

		concepts = append(concepts, &concept)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating general concept rows: %w", err)
	}

	return concepts, nil
}

// Update updates an existing general concept
func (r *GeneralConceptRepository) Update(ctx context.Context, concept *domain.GeneralConcept) error {
	if err := concept.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE general_concepts
		SET name = $2, category = $3, description = $4, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query,
		concept.ID,
		concept.Name,
		concept.Category,
		concept.Description,
	)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"general_concept_id": concept.ID,
			"error":              err,
		}).Error("Failed to update general concept")
		return fmt.Errorf("updating general concept: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("general concept not found: %w", domain.ErrNotFound)
	}

	r.log.WithFields(logrus.Fields{
		"general_concept_id": concept.ID,
		"name":               concept.Name,
	}).Info("General concept updated successfully")

	return nil
}

// Delete removes a general concept
func (r *GeneralConceptRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM general_concepts WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"general_concept_id": id,
			"error":              err,
		}).Error("Failed to delete general concept")
		return fmt.Errorf("deleting general concept: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("general concept not found: %w", domain.ErrNotFound)
	}

	r.log.WithFields(logrus.Fields{
		"general_concept_id": id,
	}).Info("General concept deleted successfully")

	return nil
}

// Count returns the total number of general concepts
func (r *GeneralConceptRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM general_concepts").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting general concepts: %w", err)
	}
	return count, nil
}
