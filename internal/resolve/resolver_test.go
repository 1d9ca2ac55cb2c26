package resolve

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripweave/tripweave/internal/gmaps"
	"github.com/tripweave/tripweave/internal/types"
)

// memStore is an in-memory Store with the same find-or-create semantics the
// Postgres implementation guarantees.
type memStore struct {
	countries []types.Country
	cities    []types.City
}

func (s *memStore) UpsertCountry(_ context.Context, name, code string) (*types.Country, bool, error) {
	if name == "" {
		name = code
	}
	for i := range s.countries {
		if strings.EqualFold(s.countries[i].Name, name) {
			return &s.countries[i], false, nil
		}
	}
	c := types.Country{ID: uuid.New(), Name: name, Code: code}
	s.countries = append(s.countries, c)
	return &s.countries[len(s.countries)-1], true, nil
}

func (s *memStore) UpsertCity(_ context.Context, city types.City) (*types.City, bool, error) {
	for i := range s.cities {
		if strings.EqualFold(s.cities[i].Name, city.Name) && s.cities[i].CountryID == city.CountryID {
			return &s.cities[i], false, nil
		}
	}
	city.ID = uuid.New()
	s.cities = append(s.cities, city)
	return &s.cities[len(s.cities)-1], true, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("creates country then city linked to it", func(t *testing.T) {
		store := &memStore{}
		r := NewResolver(store, testLogger())

		lat, lng := 48.8566, 2.3522
		res, err := r.Resolve(ctx, Descriptor{
			CityName:     "Paris",
			CountryName:  "France",
			CountryCode:  "FR",
			Latitude:     &lat,
			Longitude:    &lng,
			GoogleMapsID: "place-123",
		})
		require.NoError(t, err)
		require.NotNil(t, res.Country)
		require.NotNil(t, res.City)
		assert.True(t, res.Created)
		assert.Equal(t, "France", res.Country.Name)
		assert.Equal(t, res.Country.ID, res.City.CountryID.UUID)
		assert.True(t, res.City.CountryID.Valid)
		assert.Equal(t, "place-123", res.City.GoogleMapsID)
	})

	t.Run("second run is idempotent", func(t *testing.T) {
		store := &memStore{}
		r := NewResolver(store, testLogger())
		d := Descriptor{CityName: "Paris", CountryName: "France", CountryCode: "FR"}

		first, err := r.Resolve(ctx, d)
		require.NoError(t, err)
		second, err := r.Resolve(ctx, d)
		require.NoError(t, err)

		assert.True(t, first.Created)
		assert.False(t, second.Created)
		assert.Equal(t, first.Country.ID, second.Country.ID)
		assert.Equal(t, first.City.ID, second.City.ID)
		assert.Len(t, store.countries, 1)
		assert.Len(t, store.cities, 1)
	})

	t.Run("city without country stays unlinked", func(t *testing.T) {
		store := &memStore{}
		r := NewResolver(store, testLogger())

		res, err := r.Resolve(ctx, Descriptor{CityName: "Atlantis"})
		require.NoError(t, err)
		assert.Nil(t, res.Country)
		require.NotNil(t, res.City)
		assert.False(t, res.City.CountryID.Valid)
	})

	t.Run("country without city is a soft result", func(t *testing.T) {
		store := &memStore{}
		r := NewResolver(store, testLogger())

		res, err := r.Resolve(ctx, Descriptor{CountryName: "France", CountryCode: "FR"})
		require.NoError(t, err)
		require.NotNil(t, res.Country)
		assert.Nil(t, res.City)
		assert.True(t, res.Created)
	})

	t.Run("empty descriptor resolves to nothing", func(t *testing.T) {
		store := &memStore{}
		r := NewResolver(store, testLogger())

		res, err := r.Resolve(ctx, Descriptor{})
		require.NoError(t, err)
		assert.Nil(t, res.Country)
		assert.Nil(t, res.City)
		assert.False(t, res.Created)
	})

	t.Run("country code only falls back to code as name", func(t *testing.T) {
		store := &memStore{}
		r := NewResolver(store, testLogger())

		res, err := r.Resolve(ctx, Descriptor{CityName: "Paris", CountryCode: "FR"})
		require.NoError(t, err)
		require.NotNil(t, res.Country)
		assert.Equal(t, "FR", res.Country.Name)
	})
}

func TestDescriptorFromComponents(t *testing.T) {
	comp := func(long, short string, tags ...string) gmaps.AddressComponent {
		return gmaps.AddressComponent{LongName: long, ShortName: short, Types: tags}
	}

	t.Run("locality wins over administrative areas", func(t *testing.T) {
		d := DescriptorFromComponents([]gmaps.AddressComponent{
			comp("Île-de-France", "IDF", "administrative_area_level_1", "political"),
			comp("Paris", "Paris", "locality", "political"),
			comp("France", "FR", "country", "political"),
		})
		assert.Equal(t, "Paris", d.CityName)
		assert.Equal(t, "Île-de-France", d.State)
		assert.Equal(t, "France", d.CountryName)
		assert.Equal(t, "FR", d.CountryCode)
	})

	t.Run("falls back through administrative levels", func(t *testing.T) {
		d := DescriptorFromComponents([]gmaps.AddressComponent{
			comp("King County", "King County", "administrative_area_level_2", "political"),
			comp("Washington", "WA", "administrative_area_level_1", "political"),
			comp("United States", "US", "country", "political"),
		})
		assert.Equal(t, "King County", d.CityName)
		assert.Equal(t, "Washington", d.State)
	})

	t.Run("level 1 doubles as city when nothing better exists", func(t *testing.T) {
		d := DescriptorFromComponents([]gmaps.AddressComponent{
			comp("Tokyo", "Tokyo", "administrative_area_level_1", "political"),
			comp("Japan", "JP", "country", "political"),
		})
		assert.Equal(t, "Tokyo", d.CityName)
		assert.Equal(t, "Tokyo", d.State)
	})

	t.Run("no components yields empty descriptor", func(t *testing.T) {
		d := DescriptorFromComponents(nil)
		assert.Equal(t, Descriptor{}, d)
	})
}

func TestDescriptorFromGeocode(t *testing.T) {
	result := &gmaps.GeocodeResult{
		PlaceID:          "place-456",
		FormattedAddress: "Paris, France",
		AddressComponents: []gmaps.AddressComponent{
			{LongName: "Paris", ShortName: "Paris", Types: []string{"locality"}},
			{LongName: "France", ShortName: "FR", Types: []string{"country"}},
		},
	}
	result.Geometry.Location.Lat = 48.8566
	result.Geometry.Location.Lng = 2.3522

	d := DescriptorFromGeocode(result)
	assert.Equal(t, "Paris", d.CityName)
	assert.Equal(t, "place-456", d.GoogleMapsID)
	require.NotNil(t, d.Latitude)
	require.NotNil(t, d.Longitude)
	assert.Equal(t, 48.8566, *d.Latitude)
	assert.Equal(t, 2.3522, *d.Longitude)
}

func TestDescriptorFromAddress(t *testing.T) {
	tests := []struct {
		address string
		city    string
		country string
	}{
		{"10 Rue de Rivoli, Paris, France", "Paris", "France"},
		{"Paris, France", "Paris", "France"},
		{"Paris", "Paris", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		d := DescriptorFromAddress(tt.address)
		assert.Equal(t, tt.city, d.CityName, "address %q", tt.address)
		assert.Equal(t, tt.country, d.CountryName, "address %q", tt.address)
	}
}
