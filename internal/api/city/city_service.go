package city

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tripweave/tripweave/app/observability/metrics"
	"github.com/tripweave/tripweave/internal/gmaps"
	"github.com/tripweave/tripweave/internal/resolve"
)

var _ Service = (*ServiceImpl)(nil)

// Service resolves free-text location queries to canonical city rows. This is
// the single shared implementation the API handler and every backfill command
// go through; the matching heuristics used to live copy-pasted in each script.
type Service interface {
	ResolveQuery(ctx context.Context, query string, opts ResolveOptions) (*ResolveOutcome, error)
}

// ResolveOptions controls a single resolution.
type ResolveOptions struct {
	// SkipGoogle disables the geocoding fallback; local matching plus the
	// comma-split address heuristic is all that runs.
	SkipGoogle bool
	// DryRun suppresses row creation. Matching and geocoding still execute so
	// the run log shows what a live run would do.
	DryRun bool
}

// ResolveOutcome reports where a query ended up. CityID is uuid.Nil for
// skipped and dry-run-created outcomes.
type ResolveOutcome struct {
	Outcome     resolve.Outcome     `json:"outcome"`
	MatchMethod string              `json:"match_method,omitempty"`
	CityID      uuid.UUID           `json:"city_id,omitempty"`
	CityName    string              `json:"city_name,omitempty"`
	CountryName string              `json:"country_name,omitempty"`
	Reason      string              `json:"reason,omitempty"`
	Descriptor  *resolve.Descriptor `json:"-"`
}

// Inferrer is the optional AI fallback consulted when both local matching and
// geocoding miss.
type Inferrer interface {
	InferCity(ctx context.Context, location string) (resolve.Descriptor, error)
}

type ServiceImpl struct {
	repo     Repository
	matcher  *resolve.Matcher
	resolver *resolve.Resolver
	geocoder resolve.Geocoder
	inferrer Inferrer
	logger   *slog.Logger
}

func NewService(repo Repository, matcher *resolve.Matcher, resolver *resolve.Resolver, geocoder resolve.Geocoder, inferrer Inferrer, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		repo:     repo,
		matcher:  matcher,
		resolver: resolver,
		geocoder: geocoder,
		inferrer: inferrer,
		logger:   logger,
	}
}

// ResolveQuery runs the full pipeline for one free-text query: local matching
// over the known-city candidate set, then the geocoding fallback, then a
// re-match on the canonical name Google returned, then an upsert when the city
// is genuinely new. Soft misses come back as OutcomeSkipped with a reason,
// never as an error; errors are reserved for infrastructure failures the
// caller may want to abort on.
func (s *ServiceImpl) ResolveQuery(ctx context.Context, query string, opts ResolveOptions) (*ResolveOutcome, error) {
	if query == "" {
		return s.done(ctx, &ResolveOutcome{Outcome: resolve.OutcomeSkipped, Reason: "empty query"}), nil
	}

	candidates, err := s.repo.ListCandidates(ctx)
	if err != nil {
		metrics.Get().ResolutionFailuresTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("stage", "candidates")))
		return nil, fmt.Errorf("failed to load candidate cities: %w", err)
	}

	if match, method := s.matcher.Match(query, candidates); match != nil {
		out := &ResolveOutcome{
			Outcome:     resolve.OutcomeMatched,
			MatchMethod: method,
			CityID:      match.ID,
			CityName:    match.Name,
		}
		if match.Country != nil {
			out.CountryName = match.Country.Name
		}
		return s.done(ctx, out), nil
	}

	var descriptor resolve.Descriptor
	geocoded := false
	if opts.SkipGoogle || s.geocoder == nil {
		descriptor = resolve.DescriptorFromAddress(query)
	} else {
		result, err := s.geocoder.Geocode(ctx, query)
		switch {
		case errors.Is(err, gmaps.ErrZeroResults):
			// Fall through with an empty descriptor; the AI fallback below
			// gets a chance before we give up.
		case err != nil:
			// Upstream API failure is a soft miss for this record.
			s.logger.WarnContext(ctx, "Geocoding failed, treating as unresolved",
				slog.String("query", query), slog.String("error", err.Error()))
			return s.done(ctx, &ResolveOutcome{Outcome: resolve.OutcomeSkipped, Reason: "geocoding error: " + err.Error()}), nil
		default:
			descriptor = resolve.DescriptorFromGeocode(result)
			geocoded = true
		}
	}

	if descriptor.CityName == "" && s.inferrer != nil && !opts.SkipGoogle {
		inferred, err := s.inferrer.InferCity(ctx, query)
		if err != nil {
			s.logger.WarnContext(ctx, "AI city inference failed",
				slog.String("query", query), slog.String("error", err.Error()))
		} else {
			descriptor = inferred
		}
	}

	if descriptor.CityName == "" {
		return s.done(ctx, &ResolveOutcome{Outcome: resolve.OutcomeSkipped, Reason: "no city component in response"}), nil
	}

	// Re-run the matcher on the canonical name: Google frequently maps the
	// free text to a city we already know under a cleaner spelling.
	canonical := descriptor.CityName
	if descriptor.CountryName != "" {
		canonical = descriptor.CityName + ", " + descriptor.CountryName
	}
	if match, method := s.matcher.Match(canonical, candidates); match != nil {
		out := &ResolveOutcome{
			Outcome:     resolve.OutcomeGeocoded,
			MatchMethod: method,
			CityID:      match.ID,
			CityName:    match.Name,
			Descriptor:  &descriptor,
		}
		if match.Country != nil {
			out.CountryName = match.Country.Name
		}
		return s.done(ctx, out), nil
	}

	if opts.DryRun {
		return s.done(ctx, &ResolveOutcome{
			Outcome:     resolve.OutcomeCreated,
			MatchMethod: "would-create",
			CityName:    descriptor.CityName,
			CountryName: descriptor.CountryName,
			Descriptor:  &descriptor,
		}), nil
	}

	resolution, err := s.resolver.Resolve(ctx, descriptor)
	if err != nil {
		metrics.Get().ResolutionFailuresTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("stage", "upsert")))
		return nil, fmt.Errorf("failed to resolve descriptor for %q: %w", query, err)
	}
	if resolution.City == nil {
		return s.done(ctx, &ResolveOutcome{Outcome: resolve.OutcomeSkipped, Reason: "descriptor resolved without a city"}), nil
	}

	out := &ResolveOutcome{
		CityID:     resolution.City.ID,
		CityName:   resolution.City.Name,
		Descriptor: &descriptor,
	}
	if resolution.Country != nil {
		out.CountryName = resolution.Country.Name
	}
	if resolution.Created {
		out.Outcome = resolve.OutcomeCreated
		out.MatchMethod = "created"
	} else if geocoded {
		out.Outcome = resolve.OutcomeGeocoded
		out.MatchMethod = "geocode+upsert"
	} else {
		out.Outcome = resolve.OutcomeMatched
		out.MatchMethod = "address-split+upsert"
	}
	return s.done(ctx, out), nil
}

func (s *ServiceImpl) done(ctx context.Context, out *ResolveOutcome) *ResolveOutcome {
	metrics.Get().ResolutionsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", string(out.Outcome))))
	return out
}
