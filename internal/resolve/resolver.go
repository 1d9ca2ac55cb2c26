package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tripweave/tripweave/internal/gmaps"
	"github.com/tripweave/tripweave/internal/types"
)

// Descriptor carries everything known about a location before it is persisted,
// produced by the matcher, by comma-splitting an address, or from a Google
// geocode/place-details response.
type Descriptor struct {
	CityName     string
	State        string
	CountryName  string
	CountryCode  string
	Latitude     *float64
	Longitude    *float64
	GoogleMapsID string
}

// Resolution is the persisted outcome of resolving a Descriptor. City is nil
// when the descriptor carried no city name, a soft result the caller must
// tolerate, never an error.
type Resolution struct {
	Country *types.Country
	City    *types.City
	Created bool
}

// Store is the persistence surface the resolver needs. Implementations must
// make both upserts atomic (insert-on-conflict plus re-select) so concurrent
// resolutions of the same place cannot create duplicate rows.
type Store interface {
	UpsertCountry(ctx context.Context, name, code string) (*types.Country, bool, error)
	UpsertCity(ctx context.Context, city types.City) (*types.City, bool, error)
}

// Geocoder is the external fallback used when local matching misses.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*gmaps.GeocodeResult, error)
}

// Resolver turns Descriptors into persisted Country/City rows.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

func NewResolver(store Store, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Resolve upserts the country (when named) and then the city (when named),
// linking the city to the resolved country. Running it twice with the same
// descriptor yields the same row identifiers.
func (r *Resolver) Resolve(ctx context.Context, d Descriptor) (*Resolution, error) {
	res := &Resolution{}

	if d.CountryName != "" || d.CountryCode != "" {
		country, created, err := r.store.UpsertCountry(ctx, d.CountryName, d.CountryCode)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert country %q: %w", d.CountryName, err)
		}
		res.Country = country
		res.Created = res.Created || created
	}

	if d.CityName == "" {
		// Soft result: nothing to link a city from. The caller skips and logs.
		r.logger.DebugContext(ctx, "Descriptor has no city name, returning country-only resolution",
			slog.String("country", d.CountryName))
		return res, nil
	}

	city := types.City{
		Name:         d.CityName,
		State:        d.State,
		Latitude:     d.Latitude,
		Longitude:    d.Longitude,
		GoogleMapsID: d.GoogleMapsID,
	}
	if res.Country != nil {
		city.CountryID.UUID = res.Country.ID
		city.CountryID.Valid = true
	}
	saved, created, err := r.store.UpsertCity(ctx, city)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert city %q: %w", d.CityName, err)
	}
	res.City = saved
	res.Created = res.Created || created
	return res, nil
}

// componentPriority orders the address_components type tags considered for the
// city name. First tag found wins; no aggregation across components.
var cityComponentPriority = []string{"locality", "administrative_area_level_2", "administrative_area_level_1"}

// DescriptorFromComponents scans Google address components with a fixed tag
// priority: locality > administrative_area_level_2 > administrative_area_level_1
// for the city, administrative_area_level_1 for the state, country for the
// country name and code.
func DescriptorFromComponents(components []gmaps.AddressComponent) Descriptor {
	var d Descriptor

	for _, wanted := range cityComponentPriority {
		for _, comp := range components {
			if hasType(comp, wanted) {
				d.CityName = comp.LongName
				break
			}
		}
		if d.CityName != "" {
			break
		}
	}
	for _, comp := range components {
		if hasType(comp, "administrative_area_level_1") {
			d.State = comp.LongName
			break
		}
	}
	for _, comp := range components {
		if hasType(comp, "country") {
			d.CountryName = comp.LongName
			d.CountryCode = comp.ShortName
			break
		}
	}
	return d
}

// DescriptorFromGeocode builds a full descriptor from a geocoding result,
// carrying coordinates and the Google place ID alongside the components.
func DescriptorFromGeocode(result *gmaps.GeocodeResult) Descriptor {
	d := DescriptorFromComponents(result.AddressComponents)
	lat := result.Geometry.Location.Lat
	lng := result.Geometry.Location.Lng
	d.Latitude = &lat
	d.Longitude = &lng
	d.GoogleMapsID = result.PlaceID
	return d
}

// DescriptorFromAddress is the offline fallback: comma-split an address and
// treat the last segment as the country, the second-to-last as the city.
// Best-effort only, used when Google lookups are skipped.
func DescriptorFromAddress(address string) Descriptor {
	parts := strings.Split(address, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	var d Descriptor
	switch {
	case len(parts) >= 2:
		d.CountryName = parts[len(parts)-1]
		d.CityName = parts[len(parts)-2]
	case len(parts) == 1 && parts[0] != "":
		d.CityName = parts[0]
	}
	return d
}

func hasType(comp gmaps.AddressComponent, t string) bool {
	for _, ct := range comp.Types {
		if ct == t {
			return true
		}
	}
	return false
}
