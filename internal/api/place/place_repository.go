package place

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tripweave/tripweave/app/observability/metrics"
	"github.com/tripweave/tripweave/internal/types"
)

// uniqueViolation is the Postgres error code for duplicate-key inserts.
const uniqueViolation = "23505"

// DB is the subset of pgxpool.Pool the repository needs; pgxmock satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Repository = (*PostgresRepository)(nil)

type Repository interface {
	FindByGooglePlaceID(ctx context.Context, googlePlaceID string) (*types.Place, error)
	SavePlace(ctx context.Context, place types.Place) (*types.Place, error)
	ListUnlinkedPlaces(ctx context.Context, limit int) ([]types.Place, error)
	AttachCity(ctx context.Context, placeID, cityID uuid.UUID) error
}

type PostgresRepository struct {
	logger *slog.Logger
	db     DB
}

func NewPostgresRepository(db DB, logger *slog.Logger) *PostgresRepository {
	return &PostgresRepository{
		logger: logger,
		db:     db,
	}
}

// FindByGooglePlaceID returns (nil, nil) when absent.
func (r *PostgresRepository) FindByGooglePlaceID(ctx context.Context, googlePlaceID string) (*types.Place, error) {
	defer metrics.ObserveDBQuery(ctx, "place.FindByGooglePlaceID", time.Now())
	query := `
        SELECT id, name, COALESCE(address, ''), city_id, google_place_id,
               latitude, longitude, rating, user_ratings_total
        FROM places
        WHERE google_place_id = $1
    `
	var place types.Place
	if err := r.db.QueryRow(ctx, query, googlePlaceID).Scan(
		&place.ID, &place.Name, &place.Address, &place.CityID, &place.GooglePlaceID,
		&place.Latitude, &place.Longitude, &place.Rating, &place.UserRatingsTotal,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find place: %w", err)
	}
	return &place, nil
}

// SavePlace inserts the place. A duplicate google_place_id (two resolutions
// racing on the same place) is converted into fetching the existing row.
func (r *PostgresRepository) SavePlace(ctx context.Context, place types.Place) (*types.Place, error) {
	if place.GooglePlaceID == "" {
		return nil, fmt.Errorf("google place id is required")
	}
	defer metrics.ObserveDBQuery(ctx, "place.SavePlace", time.Now())

	insert := `
        INSERT INTO places (name, address, city_id, google_place_id, latitude, longitude, rating, user_ratings_total)
        VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8)
        RETURNING id, name, COALESCE(address, ''), city_id, google_place_id,
                  latitude, longitude, rating, user_ratings_total
    `
	var saved types.Place
	err := r.db.QueryRow(ctx, insert,
		place.Name, place.Address, place.CityID, place.GooglePlaceID,
		place.Latitude, place.Longitude, place.Rating, place.UserRatingsTotal,
	).Scan(
		&saved.ID, &saved.Name, &saved.Address, &saved.CityID, &saved.GooglePlaceID,
		&saved.Latitude, &saved.Longitude, &saved.Rating, &saved.UserRatingsTotal,
	)
	if err == nil {
		r.logger.InfoContext(ctx, "Place created",
			slog.String("name", saved.Name), slog.String("id", saved.ID.String()))
		return &saved, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		existing, findErr := r.FindByGooglePlaceID(ctx, place.GooglePlaceID)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, fmt.Errorf("place %q conflicted on insert but was not found", place.GooglePlaceID)
		}
		return existing, nil
	}
	return nil, fmt.Errorf("failed to insert place: %w", err)
}

// ListUnlinkedPlaces returns places that have an address but no city linked,
// the candidate set for the backfill-place-cities command.
func (r *PostgresRepository) ListUnlinkedPlaces(ctx context.Context, limit int) ([]types.Place, error) {
	defer metrics.ObserveDBQuery(ctx, "place.ListUnlinkedPlaces", time.Now())
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
        SELECT id, name, COALESCE(address, ''), city_id, google_place_id,
               latitude, longitude, rating, user_ratings_total
        FROM places
        WHERE city_id IS NULL AND COALESCE(address, '') <> ''
        ORDER BY created_at, id
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unlinked places: %w", err)
	}
	defer rows.Close()

	var places []types.Place
	for rows.Next() {
		var place types.Place
		if err := rows.Scan(
			&place.ID, &place.Name, &place.Address, &place.CityID, &place.GooglePlaceID,
			&place.Latitude, &place.Longitude, &place.Rating, &place.UserRatingsTotal,
		); err != nil {
			return nil, fmt.Errorf("failed to scan place: %w", err)
		}
		places = append(places, place)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading places: %w", err)
	}
	return places, nil
}

func (r *PostgresRepository) AttachCity(ctx context.Context, placeID, cityID uuid.UUID) error {
	defer metrics.ObserveDBQuery(ctx, "place.AttachCity", time.Now())
	if _, err := r.db.Exec(ctx, `
        UPDATE places SET city_id = $2 WHERE id = $1
    `, placeID, cityID); err != nil {
		return fmt.Errorf("failed to attach city to place: %w", err)
	}
	return nil
}
