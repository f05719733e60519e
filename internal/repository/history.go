package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/indicate-eu/data-dictionary/internal/domain"
)

// HistoryRepository handles audit trail persistence
type HistoryRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *pgxpool.Pool, logger *logrus.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:  db,
		log: logger,
	}
}

// Append records a new history entry. An empty ID is assigned a fresh UUID.
func (r *HistoryRepository) Append(ctx context.Context, entry *domain.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO mapping_history (id, general_concept_id, action, detail, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		entry.ID,
		nullableGeneralConceptID(entry.GeneralConceptID),
		entry.Action,
		entry.Detail,
		entry.Actor,
		entry.CreatedAt,
	)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"action": entry.Action,
			"error":  err,
		}).Error("Failed to append history entry")
		return fmt.Errorf("appending history entry: %w", err)
	}

	return nil
}

// ListByGeneralConcept retrieves the history of a single general concept,
// newest first
func (r *HistoryRepository) ListByGeneralConcept(ctx context.Context, generalConceptID int64, limit, offset int) ([]*domain.HistoryEntry, error) {
	query := `
		SELECT id, general_concept_id, action, detail, actor, created_at
		FROM mapping_history
		WHERE general_concept_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	return r.queryEntries(ctx, query, generalConceptID, limit, offset)
}

// ListRecent retrieves the most recent history entries across the dictionary
func (r *HistoryRepository) ListRecent(ctx context.Context, limit, offset int) ([]*domain.HistoryEntry, error) {
	query := `
		SELECT id, general_concept_id, action, detail, actor, created_at
		FROM mapping_history
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	return r.queryEntries(ctx, query, limit, offset)
}

func (r *HistoryRepository) queryEntries(ctx context.Context, query string, args ...interface{}) ([]*domain.HistoryEntry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.WithError(err).Error("Failed to list history entries")
		return nil, fmt.Errorf("listing history entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.HistoryEntry
	for rows.Next() {
		var entry domain.HistoryEntry
		var generalConceptID *int64

		err := rows.Scan(
			&entry.ID,
			&generalConceptID,
			&entry.Action,
			&entry.Detail,
			&entry.Actor,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}

		if generalConceptID != nil {
			entry.GeneralConceptID = *generalConceptID
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}

	return entries, nil
}

// nullableGeneralConceptID maps the zero value to NULL so dictionary-wide
// actions (enrichment runs, imports) don't reference a concept row.
func nullableGeneralConceptID(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}
