package mappings

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indicate-eu/data-dictionary/internal/domain"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &PostgresStore{db: db}, mock
}

func TestPostgresStore_LoadScansNullUnit(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"general_concept_id", "omop_concept_id", "unit_concept_id", "recommended", "source"}).
		AddRow(int64(1), int64(3004249), nil, true, "manual").
		AddRow(int64(1), int64(3027018), int64(8840), false, "ohdsi_relationships")
	mock.ExpectQuery("SELECT .+ FROM concept_mappings").WillReturnRows(rows)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Nil(t, got[0].UnitConceptID)
	assert.Equal(t, domain.PROVENANCE_MANUAL, got[0].Provenance)
	require.NotNil(t, got[1].UnitConceptID)
	assert.Equal(t, int64(8840), *got[1].UnitConceptID)
	assert.Equal(t, domain.PROVENANCE_DERIVED, got[1].Provenance)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceRollsBackOnInsertFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM concept_mappings").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectPrepare("INSERT INTO concept_mappings").
		ExpectExec().
		WithArgs(int64(1), int64(3004249), nil, true, "manual").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := store.Replace(context.Background(), []domain.ConceptMapping{
		{GeneralConceptID: 1, OMOPConceptID: 3004249, Recommended: true, Provenance: domain.PROVENANCE_MANUAL},
	})
	require.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM concept_mappings WHERE").
		WithArgs(int64(1), int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Delete(context.Background(), domain.MappingKey{GeneralConceptID: 1, OMOPConceptID: 99})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountByProvenance(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"source", "count"}).
		AddRow("manual", int64(4)).
		AddRow("ohdsi_relationships", int64(11))
	mock.ExpectQuery("SELECT source, COUNT").WillReturnRows(rows)

	counts, err := store.CountByProvenance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts[domain.PROVENANCE_MANUAL])
	assert.Equal(t, int64(11), counts[domain.PROVENANCE_DERIVED])

	assert.NoError(t, mock.ExpectationsWereMet())
}
