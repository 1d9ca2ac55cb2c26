package trip

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

// DB is the subset of pgxpool.Pool the repository needs; pgxmock satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Repository = (*PostgresRepository)(nil)

type Repository interface {
	GetTrip(ctx context.Context, tripID uuid.UUID) (*types.Trip, error)
	ListTrips(ctx context.Context, unlinkedOnly bool, limit int) ([]types.Trip, error)
	ListUnlinkedTrips(ctx context.Context, limit int) ([]types.Trip, error)
	LinkTripToCity(ctx context.Context, tripID, cityID uuid.UUID) error
	ListUnlinkedActivities(ctx context.Context, limit int) ([]types.ItineraryActivity, error)
	LinkActivityToPlace(ctx context.Context, activityID, placeID uuid.UUID) error
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

func (r *PostgresRepository) GetTrip(ctx context.Context, tripID uuid.UUID) (*types.Trip, error) {
	defer metrics.ObserveDBQuery(ctx, "trip.GetTrip", time.Now())
	query := `
        SELECT id, title, COALESCE(destination, ''), destination_city_id, created_at
        FROM trips
        WHERE id = $1
    `
	var trip types.Trip
	if err := r.db.QueryRow(ctx, query, tripID).Scan(
		&trip.ID, &trip.Title, &trip.Destination, &trip.DestinationCityID, &trip.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return &trip, nil
}

func (r *PostgresRepository) ListTrips(ctx context.Context, unlinkedOnly bool, limit int) ([]types.Trip, error) {
	defer metrics.ObserveDBQuery(ctx, "trip.ListTrips", time.Now())
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
        SELECT id, title, COALESCE(destination, ''), destination_city_id, created_at
        FROM trips
        WHERE NOT $1 OR (destination_city_id IS NULL AND COALESCE(destination, '') <> '')
        ORDER BY created_at, id
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, unlinkedOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	defer rows.Close()

	var trips []types.Trip
	for rows.Next() {
		var trip types.Trip
		if err := rows.Scan(&trip.ID, &trip.Title, &trip.Destination, &trip.DestinationCityID, &trip.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		trips = append(trips, trip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading trips: %w", err)
	}
	return trips, nil
}

// ListUnlinkedTrips returns trips that still carry only the legacy free-text
// destination, the candidate set for the link-trip-cities backfill.
func (r *PostgresRepository) ListUnlinkedTrips(ctx context.Context, limit int) ([]types.Trip, error) {
	return r.ListTrips(ctx, true, limit)
}

// LinkTripToCity sets destination_city_id and appends the city to the ordered
// trip_cities join. Re-linking the same pair is a no-op thanks to the join
// table's primary key.
func (r *PostgresRepository) LinkTripToCity(ctx context.Context, tripID, cityID uuid.UUID) error {
	defer metrics.ObserveDBQuery(ctx, "trip.LinkTripToCity", time.Now())
	if _, err := r.db.Exec(ctx, `
        UPDATE trips SET destination_city_id = $2 WHERE id = $1
    `, tripID, cityID); err != nil {
		return fmt.Errorf("failed to set trip destination city: %w", err)
	}

	if _, err := r.db.Exec(ctx, `
        INSERT INTO trip_cities (trip_id, city_id, city_order)
        SELECT $1, $2, COALESCE(MAX(city_order), 0) + 1
        FROM trip_cities WHERE trip_id = $1
        ON CONFLICT (trip_id, city_id) DO NOTHING
    `, tripID, cityID); err != nil {
		return fmt.Errorf("failed to insert trip_cities row: %w", err)
	}

	r.logger.InfoContext(ctx, "Trip linked to city",
		slog.String("trip_id", tripID.String()), slog.String("city_id", cityID.String()))
	return nil
}

// ListUnlinkedActivities returns itinerary activities with free-text location
// info but no place linked yet.
func (r *PostgresRepository) ListUnlinkedActivities(ctx context.Context, limit int) ([]types.ItineraryActivity, error) {
	defer metrics.ObserveDBQuery(ctx, "trip.ListUnlinkedActivities", time.Now())
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
        SELECT id, trip_id, name, COALESCE(location, ''), place_id
        FROM trip_itinerary_activities
        WHERE place_id IS NULL AND (name <> '' OR COALESCE(location, '') <> '')
        ORDER BY id
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unlinked activities: %w", err)
	}
	defer rows.Close()

	var activities []types.ItineraryActivity
	for rows.Next() {
		var act types.ItineraryActivity
		if err := rows.Scan(&act.ID, &act.TripID, &act.Name, &act.Location, &act.PlaceID); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, act)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading activities: %w", err)
	}
	return activities, nil
}

func (r *PostgresRepository) LinkActivityToPlace(ctx context.Context, activityID, placeID uuid.UUID) error {
	defer metrics.ObserveDBQuery(ctx, "trip.LinkActivityToPlace", time.Now())
	if _, err := r.db.Exec(ctx, `
        UPDATE trip_itinerary_activities SET place_id = $2 WHERE id = $1
    `, activityID, placeID); err != nil {
		return fmt.Errorf("failed to link activity to place: %w", err)
	}
	return nil
}
