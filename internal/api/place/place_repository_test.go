package place

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripweave/tripweave/app/observability/metrics"
	"github.com/tripweave/tripweave/internal/types"
)

func TestMain(m *testing.M) {
	metrics.InitAppMetrics()
	os.Exit(m.Run())
}

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPostgresRepository(mockPool, logger), mockPool
}

func placeRows(id uuid.UUID, name, placeID string) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "name", "address", "city_id", "google_place_id",
		"latitude", "longitude", "rating", "user_ratings_total",
	}).AddRow(id, name, "", uuid.NullUUID{}, placeID, (*float64)(nil), (*float64)(nil), (*float64)(nil), (*int)(nil))
}

func TestPostgresRepository_SavePlace(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts a new place", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)
		id := uuid.New()
		mockPool.ExpectQuery("INSERT INTO places").
			WithArgs("Eiffel Tower", "", uuid.NullUUID{}, "place-1", (*float64)(nil), (*float64)(nil), (*float64)(nil), (*int)(nil)).
			WillReturnRows(placeRows(id, "Eiffel Tower", "place-1"))

		saved, err := repo.SavePlace(ctx, types.Place{Name: "Eiffel Tower", GooglePlaceID: "place-1"})
		require.NoError(t, err)
		assert.Equal(t, id, saved.ID)
		assert.Equal(t, "Eiffel Tower", saved.Name)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("unique violation falls back to the existing row", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)
		id := uuid.New()
		mockPool.ExpectQuery("INSERT INTO places").
			WithArgs("Eiffel Tower", "", uuid.NullUUID{}, "place-1", (*float64)(nil), (*float64)(nil), (*float64)(nil), (*int)(nil)).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "places_google_place_id_key"})
		mockPool.ExpectQuery("SELECT id, name").
			WithArgs("place-1").
			WillReturnRows(placeRows(id, "Eiffel Tower", "place-1"))

		saved, err := repo.SavePlace(ctx, types.Place{Name: "Eiffel Tower", GooglePlaceID: "place-1"})
		require.NoError(t, err)
		assert.Equal(t, id, saved.ID)
		assert.Equal(t, "place-1", saved.GooglePlaceID)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("non-duplicate insert errors propagate", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)
		mockPool.ExpectQuery("INSERT INTO places").
			WithArgs("Eiffel Tower", "", uuid.NullUUID{}, "place-1", (*float64)(nil), (*float64)(nil), (*float64)(nil), (*int)(nil)).
			WillReturnError(&pgconn.PgError{Code: "23502", ColumnName: "name"})

		saved, err := repo.SavePlace(ctx, types.Place{Name: "Eiffel Tower", GooglePlaceID: "place-1"})
		require.Error(t, err)
		assert.Nil(t, saved)
		assert.Contains(t, err.Error(), "failed to insert place")
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("rejects a missing google place id", func(t *testing.T) {
		repo, _ := newMockRepo(t)
		_, err := repo.SavePlace(ctx, types.Place{Name: "Eiffel Tower"})
		require.Error(t, err)
	})
}

func TestPostgresRepository_FindByGooglePlaceID(t *testing.T) {
	ctx := context.Background()

	t.Run("returns nil when absent", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)
		mockPool.ExpectQuery("SELECT id, name").
			WithArgs("place-9").
			WillReturnError(pgx.ErrNoRows)

		found, err := repo.FindByGooglePlaceID(ctx, "place-9")
		require.NoError(t, err)
		assert.Nil(t, found)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresRepository_AttachCity(t *testing.T) {
	t.Run("updates the city link", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)
		placeID, cityID := uuid.New(), uuid.New()
		mockPool.ExpectExec("UPDATE places SET city_id").
			WithArgs(placeID, cityID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.AttachCity(context.Background(), placeID, cityID))
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("wraps execution errors", func(t *testing.T) {
		repo, mockPool := newMockRepo(t)
		placeID, cityID := uuid.New(), uuid.New()
		mockPool.ExpectExec("UPDATE places SET city_id").
			WithArgs(placeID, cityID).
			WillReturnError(errors.New("connection refused"))

		err := repo.AttachCity(context.Background(), placeID, cityID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to attach city")
	})
}
