package checkpoint

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgres_Has_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT status FROM seed_checkpoints WHERE seed_index = \$1`).
		WithArgs(42).
		WillReturnError(pgx.ErrNoRows)

	ok, err := s.Has(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Has_FailedSeedNotComplete(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT status FROM seed_checkpoints WHERE seed_index = \$1`).
		WithArgs(9).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("failed"))

	ok, err := s.Has(context.Background(), 9)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Append_MarksSeedBeforeEntities(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	entities := testEntities(7)

	// The checkpoint row must precede the entity inserts so the
	// raw_entities foreign key has a parent row.
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO seed_checkpoints`).
		WithArgs(7, "complete", len(entities), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	for _, e := range entities {
		var rating any
		if e.Rating != nil {
			rating = *e.Rating
		}
		mock.ExpectExec(`INSERT INTO raw_entities`).
			WithArgs(7, e.PlaceID, e.Name, e.Category, rating, e.ReviewCount, e.Lat, e.Lon, e.CollectedAt.UTC()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	require.NoError(t, s.Append(context.Background(), 7, entities))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Append_RollsBackOnInsertError(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	entities := testEntities(7)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO seed_checkpoints`).
		WithArgs(7, "complete", len(entities), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO raw_entities`).
		WithArgs(7, entities[0].PlaceID, entities[0].Name, entities[0].Category,
			*entities[0].Rating, entities[0].ReviewCount, entities[0].Lat, entities[0].Lon,
			entities[0].CollectedAt.UTC()).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := s.Append(context.Background(), 7, entities)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert entity for seed 7")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_MarkFailed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO seed_checkpoints`).
		WithArgs(13, "failed", "places: 503 after retries", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.MarkFailed(context.Background(), 13, "places: 503 after retries"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Counts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT`).
		WithArgs("complete", "failed").
		WillReturnRows(pgxmock.NewRows([]string{"complete", "failed", "entities"}).AddRow(12, 2, 340))

	counts, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Counts{Complete: 12, Failed: 2, Entities: 340}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
