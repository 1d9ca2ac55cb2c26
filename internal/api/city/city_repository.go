package city

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tripweave/tripweave/app/observability/metrics"
	"github.com/tripweave/tripweave/internal/types"
)

// DB is the subset of pgxpool.Pool the repository needs. pgxmock.PgxPoolIface
// satisfies it as well, which is what the repository tests run against.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Repository = (*PostgresRepository)(nil)

type Repository interface {
	UpsertCountry(ctx context.Context, name, code string) (*types.Country, bool, error)
	UpsertCity(ctx context.Context, city types.City) (*types.City, bool, error)
	FindCountry(ctx context.Context, nameOrCode string) (*types.Country, error)
	FindCityByNameAndCountry(ctx context.Context, name string, countryID uuid.NullUUID) (*types.City, error)
	ListCandidates(ctx context.Context) ([]types.CityCandidate, error)
	SearchCities(ctx context.Context, query string, limit int) ([]types.CityCandidate, error)
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

// UpsertCountry inserts the country unless a row with the same name or code
// already exists. The insert-on-conflict plus re-select keeps concurrent
// callers from creating duplicates; the unique indexes on lower(name) and code
// back it. An empty name falls back to the code so geocode responses that only
// carry a short code still resolve.
func (r *PostgresRepository) UpsertCountry(ctx context.Context, name, code string) (*types.Country, bool, error) {
	ctx, span := otel.Tracer("city-repository").Start(ctx, "UpsertCountry")
	defer span.End()
	defer metrics.ObserveDBQuery(ctx, "city.UpsertCountry", time.Now())
	span.SetAttributes(attribute.String("country.name", name), attribute.String("country.code", code))

	if name == "" && code == "" {
		return nil, false, fmt.Errorf("country name and code are both empty")
	}
	if name == "" {
		name = code
	}

	insert := `
        INSERT INTO countries (name, code)
        VALUES ($1, $2)
        ON CONFLICT DO NOTHING
        RETURNING id, name, code, COALESCE(google_maps_id, '')
    `
	var country types.Country
	err := r.db.QueryRow(ctx, insert, name, code).Scan(
		&country.ID, &country.Name, &country.Code, &country.GoogleMapsID,
	)
	if err == nil {
		r.logger.InfoContext(ctx, "Country created",
			slog.String("name", country.Name), slog.String("id", country.ID.String()))
		return &country, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to insert country: %w", err)
	}

	// Conflict: another row already owns the name or code.
	existing, err := r.findCountry(ctx, name, code)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("country %q conflicted on insert but was not found", name)
	}
	return existing, false, nil
}

// FindCountry looks a country up by name or code, case-insensitively.
// Returns (nil, nil) when absent.
func (r *PostgresRepository) FindCountry(ctx context.Context, nameOrCode string) (*types.Country, error) {
	return r.findCountry(ctx, nameOrCode, nameOrCode)
}

func (r *PostgresRepository) findCountry(ctx context.Context, name, code string) (*types.Country, error) {
	query := `
        SELECT id, name, code, COALESCE(google_maps_id, '')
        FROM countries
        WHERE lower(name) = lower($1) OR (code <> '' AND lower(code) = lower($2))
        LIMIT 1
    `
	var country types.Country
	if err := r.db.QueryRow(ctx, query, name, code).Scan(
		&country.ID, &country.Name, &country.Code, &country.GoogleMapsID,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find country: %w", err)
	}
	return &country, nil
}

// UpsertCity inserts the city unless one with the same name already exists in
// the same country (country-less cities dedupe among themselves). Coordinates
// and the Google maps ID are attached on create only.
func (r *PostgresRepository) UpsertCity(ctx context.Context, city types.City) (*types.City, bool, error) {
	ctx, span := otel.Tracer("city-repository").Start(ctx, "UpsertCity")
	defer span.End()
	defer metrics.ObserveDBQuery(ctx, "city.UpsertCity", time.Now())
	span.SetAttributes(attribute.String("city.name", city.Name))

	if city.Name == "" {
		return nil, false, fmt.Errorf("city name is required")
	}

	insert := `
        INSERT INTO cities (name, state, country_id, latitude, longitude, google_maps_id)
        VALUES ($1, NULLIF($2, ''), $3, $4, $5, NULLIF($6, ''))
        ON CONFLICT DO NOTHING
        RETURNING id, name, COALESCE(state, ''), country_id, latitude, longitude, COALESCE(google_maps_id, '')
    `
	var saved types.City
	err := r.db.QueryRow(ctx, insert,
		city.Name, city.State, city.CountryID, city.Latitude, city.Longitude, city.GoogleMapsID,
	).Scan(
		&saved.ID, &saved.Name, &saved.State, &saved.CountryID,
		&saved.Latitude, &saved.Longitude, &saved.GoogleMapsID,
	)
	if err == nil {
		r.logger.InfoContext(ctx, "City created",
			slog.String("name", saved.Name), slog.String("id", saved.ID.String()))
		return &saved, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to insert city: %w", err)
	}

	existing, err := r.FindCityByNameAndCountry(ctx, city.Name, city.CountryID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("city %q conflicted on insert but was not found", city.Name)
	}
	return existing, false, nil
}

// FindCityByNameAndCountry returns (nil, nil) when absent. A null countryID
// matches only cities with no country linked.
func (r *PostgresRepository) FindCityByNameAndCountry(ctx context.Context, name string, countryID uuid.NullUUID) (*types.City, error) {
	defer metrics.ObserveDBQuery(ctx, "city.FindCityByNameAndCountry", time.Now())
	query := `
        SELECT id, name, COALESCE(state, ''), country_id, latitude, longitude, COALESCE(google_maps_id, '')
        FROM cities
        WHERE lower(name) = lower($1) AND country_id IS NOT DISTINCT FROM $2
        LIMIT 1
    `
	var city types.City
	if err := r.db.QueryRow(ctx, query, name, countryID).Scan(
		&city.ID, &city.Name, &city.State, &city.CountryID,
		&city.Latitude, &city.Longitude, &city.GoogleMapsID,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find city: %w", err)
	}
	return &city, nil
}

// ListCandidates loads every known city with its country resolved, the
// candidate set the matcher runs over. The whole table is loaded; city counts
// here sit in the low thousands, not worth paginating.
func (r *PostgresRepository) ListCandidates(ctx context.Context) ([]types.CityCandidate, error) {
	defer metrics.ObserveDBQuery(ctx, "city.ListCandidates", time.Now())
	query := `
        SELECT c.id, c.name, COALESCE(c.state, ''),
               co.id, co.name, co.code
        FROM cities c
        LEFT JOIN countries co ON co.id = c.country_id
        ORDER BY c.created_at, c.id
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list city candidates: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

// SearchCities is the handler-facing lookup behind GET /cities.
func (r *PostgresRepository) SearchCities(ctx context.Context, search string, limit int) ([]types.CityCandidate, error) {
	defer metrics.ObserveDBQuery(ctx, "city.SearchCities", time.Now())
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	query := `
        SELECT c.id, c.name, COALESCE(c.state, ''),
               co.id, co.name, co.code
        FROM cities c
        LEFT JOIN countries co ON co.id = c.country_id
        WHERE $1 = '' OR c.name ILIKE '%' || $1 || '%'
        ORDER BY c.name
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, search, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search cities: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

func scanCandidates(rows pgx.Rows) ([]types.CityCandidate, error) {
	var candidates []types.CityCandidate
	for rows.Next() {
		var cand types.CityCandidate
		var countryID uuid.NullUUID
		var countryName, countryCode *string
		if err := rows.Scan(&cand.ID, &cand.Name, &cand.State, &countryID, &countryName, &countryCode); err != nil {
			return nil, fmt.Errorf("failed to scan city candidate: %w", err)
		}
		if countryID.Valid && countryName != nil && countryCode != nil {
			cand.Country = &types.Country{ID: countryID.UUID, Name: *countryName, Code: *countryCode}
		}
		candidates = append(candidates, cand)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading city candidates: %w", err)
	}
	return candidates, nil
}
