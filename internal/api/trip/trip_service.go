package trip

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tripweave/tripweave/internal/api/city"
	"github.com/tripweave/tripweave/internal/resolve"
	"github.com/tripweave/tripweave/internal/types"
)

var _ Service = (*ServiceImpl)(nil)

// Service links trips' legacy free-text destinations to canonical cities and
// itinerary activities to canonical places.
type Service interface {
	LinkDestination(ctx context.Context, tripID uuid.UUID, opts city.ResolveOptions) (*city.ResolveOutcome, error)
	LinkAllDestinations(ctx context.Context, opts LinkBatchOptions) (resolve.Report, error)
	LinkAllActivities(ctx context.Context, opts LinkBatchOptions) (resolve.Report, error)
}

// PlaceEnsurer is the slice of the place service the activity backfill needs.
type PlaceEnsurer interface {
	EnsurePlace(ctx context.Context, name, location string, opts city.ResolveOptions) (*types.Place, resolve.Outcome, error)
}

// LinkBatchOptions configures a link-trip-cities batch run.
type LinkBatchOptions struct {
	Resolve city.ResolveOptions
	Batch   resolve.BatchOptions
}

type ServiceImpl struct {
	repo     Repository
	resolver city.Service
	places   PlaceEnsurer
	logger   *slog.Logger
}

func NewService(repo Repository, resolver city.Service, places PlaceEnsurer, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		repo:     repo,
		resolver: resolver,
		places:   places,
		logger:   logger,
	}
}

// LinkDestination resolves one trip's destination and writes the link unless
// dry-run is set. A trip that cannot be resolved comes back with a skipped
// outcome; only infrastructure failures return an error.
func (s *ServiceImpl) LinkDestination(ctx context.Context, tripID uuid.UUID, opts city.ResolveOptions) (*city.ResolveOutcome, error) {
	trip, err := s.repo.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, fmt.Errorf("trip %s not found", tripID)
	}
	if trip.Destination == "" {
		return &city.ResolveOutcome{Outcome: resolve.OutcomeSkipped, Reason: "trip has no destination text"}, nil
	}
	if trip.DestinationCityID.Valid {
		return &city.ResolveOutcome{
			Outcome:     resolve.OutcomeSkipped,
			Reason:      "trip already linked",
			CityID:      trip.DestinationCityID.UUID,
			MatchMethod: "already-linked",
		}, nil
	}

	outcome, err := s.resolveAndLink(ctx, trip, opts)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *ServiceImpl) resolveAndLink(ctx context.Context, trip *types.Trip, opts city.ResolveOptions) (*city.ResolveOutcome, error) {
	outcome, err := s.resolver.ResolveQuery(ctx, trip.Destination, opts)
	if err != nil {
		return nil, err
	}
	if outcome.CityID == uuid.Nil || outcome.Outcome == resolve.OutcomeSkipped {
		return outcome, nil
	}

	if opts.DryRun {
		s.logger.InfoContext(ctx, "Dry run: would link trip to city",
			slog.String("trip_id", trip.ID.String()),
			slog.String("destination", trip.Destination),
			slog.String("city", outcome.CityName),
			slog.String("method", outcome.MatchMethod),
		)
		return outcome, nil
	}

	if err := s.repo.LinkTripToCity(ctx, trip.ID, outcome.CityID); err != nil {
		return nil, err
	}
	return outcome, nil
}

// LinkAllDestinations is the consolidated backfill: every trip with a
// free-text destination and no linked city is resolved and linked in order,
// strictly sequentially. Per-trip failures land in the report; the batch never
// aborts on them.
func (s *ServiceImpl) LinkAllDestinations(ctx context.Context, opts LinkBatchOptions) (resolve.Report, error) {
	trips, err := s.repo.ListUnlinkedTrips(ctx, opts.Batch.Limit)
	if err != nil {
		return resolve.Report{}, fmt.Errorf("failed to list unlinked trips: %w", err)
	}
	s.logger.InfoContext(ctx, "Linking trip destinations",
		slog.Int("trips", len(trips)),
		slog.Bool("dry_run", opts.Resolve.DryRun),
	)

	return resolve.RunBatch(ctx, trips,
		func(t types.Trip) string { return fmt.Sprintf("%s (%s)", t.ID, t.Destination) },
		func(ctx context.Context, t types.Trip) (resolve.Outcome, error) {
			outcome, err := s.resolveAndLink(ctx, &t, opts.Resolve)
			if err != nil {
				return resolve.OutcomeFailed, err
			}
			return outcome.Outcome, nil
		},
		opts.Batch, s.logger)
}

// LinkAllActivities backfills place links for itinerary activities that carry
// only free-text name/location. Each activity's text is pushed through the
// place pipeline; activities Google cannot place stay unlinked.
func (s *ServiceImpl) LinkAllActivities(ctx context.Context, opts LinkBatchOptions) (resolve.Report, error) {
	if s.places == nil {
		return resolve.Report{}, fmt.Errorf("place service not configured")
	}
	activities, err := s.repo.ListUnlinkedActivities(ctx, opts.Batch.Limit)
	if err != nil {
		return resolve.Report{}, fmt.Errorf("failed to list unlinked activities: %w", err)
	}
	s.logger.InfoContext(ctx, "Linking activity places",
		slog.Int("activities", len(activities)),
		slog.Bool("dry_run", opts.Resolve.DryRun),
	)

	return resolve.RunBatch(ctx, activities,
		func(a types.ItineraryActivity) string { return fmt.Sprintf("%s (%s)", a.ID, a.Name) },
		func(ctx context.Context, a types.ItineraryActivity) (resolve.Outcome, error) {
			place, outcome, err := s.places.EnsurePlace(ctx, a.Name, a.Location, opts.Resolve)
			if err != nil {
				return resolve.OutcomeFailed, err
			}
			if place == nil || outcome == resolve.OutcomeSkipped {
				return resolve.OutcomeSkipped, nil
			}
			if opts.Resolve.DryRun {
				s.logger.InfoContext(ctx, "Dry run: would link activity to place",
					slog.String("activity_id", a.ID.String()),
					slog.String("place", place.Name),
				)
				return outcome, nil
			}
			if err := s.repo.LinkActivityToPlace(ctx, a.ID, place.ID); err != nil {
				return resolve.OutcomeFailed, err
			}
			return outcome, nil
		},
		opts.Batch, s.logger)
}
