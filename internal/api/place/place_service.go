package place

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tripweave/tripweave/internal/api/city"
	"github.com/tripweave/tripweave/internal/gmaps"
	"github.com/tripweave/tripweave/internal/resolve"
	"github.com/tripweave/tripweave/internal/types"
)

var _ Service = (*ServiceImpl)(nil)

// Maps is the Google surface the service needs: forward geocoding to find a
// place from free text, details to enrich it.
type Maps interface {
	Geocode(ctx context.Context, address string) (*gmaps.GeocodeResult, error)
	PlaceDetails(ctx context.Context, placeID string) (*gmaps.PlaceDetailsResult, error)
}

// Service owns place upserts and the place→city backfill.
type Service interface {
	EnsurePlace(ctx context.Context, name, location string, opts city.ResolveOptions) (*types.Place, resolve.Outcome, error)
	LinkAllPlaceCities(ctx context.Context, opts LinkBatchOptions) (resolve.Report, error)
}

// LinkBatchOptions configures a backfill-place-cities run.
type LinkBatchOptions struct {
	Resolve city.ResolveOptions
	Batch   resolve.BatchOptions
}

type ServiceImpl struct {
	repo   Repository
	cities city.Service
	maps   Maps
	logger *slog.Logger
}

func NewService(repo Repository, cities city.Service, maps Maps, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		repo:   repo,
		cities: cities,
		maps:   maps,
		logger: logger,
	}
}

// EnsurePlace finds or creates the place behind a free-text name/location
// pair. The geocoder supplies the google_place_id that keys deduplication;
// without Google there is nothing sound to dedupe on, so SkipGoogle makes
// every miss a skip.
func (s *ServiceImpl) EnsurePlace(ctx context.Context, name, location string, opts city.ResolveOptions) (*types.Place, resolve.Outcome, error) {
	query := name
	if location != "" {
		if query == "" {
			query = location
		} else {
			query += ", " + location
		}
	}
	if query == "" {
		return nil, resolve.OutcomeSkipped, nil
	}
	if opts.SkipGoogle || s.maps == nil {
		return nil, resolve.OutcomeSkipped, nil
	}

	geo, err := s.maps.Geocode(ctx, query)
	if errors.Is(err, gmaps.ErrZeroResults) {
		return nil, resolve.OutcomeSkipped, nil
	}
	if err != nil {
		return nil, resolve.OutcomeFailed, fmt.Errorf("failed to geocode place %q: %w", query, err)
	}

	if existing, err := s.repo.FindByGooglePlaceID(ctx, geo.PlaceID); err != nil {
		return nil, resolve.OutcomeFailed, err
	} else if existing != nil {
		return existing, resolve.OutcomeMatched, nil
	}

	place := types.Place{
		Name:          name,
		Address:       geo.FormattedAddress,
		GooglePlaceID: geo.PlaceID,
	}
	lat := geo.Geometry.Location.Lat
	lng := geo.Geometry.Location.Lng
	place.Latitude = &lat
	place.Longitude = &lng

	// Details are enrichment only; a failed call doesn't block the upsert.
	if details, err := s.maps.PlaceDetails(ctx, geo.PlaceID); err == nil {
		if details.Name != "" {
			place.Name = details.Name
		}
		place.Rating = details.Rating
		place.UserRatingsTotal = details.UserRatingsTotal
	} else if !errors.Is(err, gmaps.ErrZeroResults) {
		s.logger.WarnContext(ctx, "Place details lookup failed, saving without enrichment",
			slog.String("place_id", geo.PlaceID), slog.String("error", err.Error()))
	}

	// Attach the resolved city while we have the components in hand.
	if outcome, err := s.cities.ResolveQuery(ctx, geo.FormattedAddress, opts); err != nil {
		s.logger.WarnContext(ctx, "City resolution for new place failed",
			slog.String("address", geo.FormattedAddress), slog.String("error", err.Error()))
	} else if outcome.CityID != uuid.Nil {
		place.CityID.UUID = outcome.CityID
		place.CityID.Valid = true
	}

	if opts.DryRun {
		return &place, resolve.OutcomeCreated, nil
	}
	saved, err := s.repo.SavePlace(ctx, place)
	if err != nil {
		return nil, resolve.OutcomeFailed, err
	}
	return saved, resolve.OutcomeCreated, nil
}

// LinkAllPlaceCities is the backfill that attaches cities to places created
// before the city link existed, driven by each place's stored address.
func (s *ServiceImpl) LinkAllPlaceCities(ctx context.Context, opts LinkBatchOptions) (resolve.Report, error) {
	places, err := s.repo.ListUnlinkedPlaces(ctx, opts.Batch.Limit)
	if err != nil {
		return resolve.Report{}, fmt.Errorf("failed to list unlinked places: %w", err)
	}
	s.logger.InfoContext(ctx, "Linking place cities",
		slog.Int("places", len(places)),
		slog.Bool("dry_run", opts.Resolve.DryRun),
	)

	return resolve.RunBatch(ctx, places,
		func(p types.Place) string { return fmt.Sprintf("%s (%s)", p.ID, p.Name) },
		func(ctx context.Context, p types.Place) (resolve.Outcome, error) {
			outcome, err := s.cities.ResolveQuery(ctx, p.Address, opts.Resolve)
			if err != nil {
				return resolve.OutcomeFailed, err
			}
			if outcome.CityID == uuid.Nil || outcome.Outcome == resolve.OutcomeSkipped {
				return resolve.OutcomeSkipped, nil
			}
			if opts.Resolve.DryRun {
				s.logger.InfoContext(ctx, "Dry run: would attach city to place",
					slog.String("place_id", p.ID.String()),
					slog.String("city", outcome.CityName),
					slog.String("method", outcome.MatchMethod),
				)
				return outcome.Outcome, nil
			}
			if err := s.repo.AttachCity(ctx, p.ID, outcome.CityID); err != nil {
				return resolve.OutcomeFailed, err
			}
			return outcome.Outcome, nil
		},
		opts.Batch, s.logger)
}
