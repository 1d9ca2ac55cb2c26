package types

import "github.com/google/uuid"

// Country matches the countries table structure.
type Country struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Code         string    `json:"code"`
	GoogleMapsID string    `json:"google_maps_id,omitempty"`
}

// City matches the cities table structure.
type City struct {
	ID           uuid.UUID     `json:"id"`
	Name         string        `json:"name"`
	State        string        `json:"state,omitempty"`
	CountryID    uuid.NullUUID `json:"country_id,omitempty"`
	Latitude     *float64      `json:"latitude,omitempty"`
	Longitude    *float64      `json:"longitude,omitempty"`
	GoogleMapsID string        `json:"google_maps_id,omitempty"`
}

// CityCandidate is a city joined with its resolved country, the shape the
// matcher works over. Country is nil when the city row has no country linked.
type CityCandidate struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	State   string    `json:"state,omitempty"`
	Country *Country  `json:"country,omitempty"`
}

// Place matches the places table structure.
type Place struct {
	ID               uuid.UUID     `json:"id"`
	Name             string        `json:"name"`
	Address          string        `json:"address,omitempty"`
	CityID           uuid.NullUUID `json:"city_id,omitempty"`
	GooglePlaceID    string        `json:"google_place_id,omitempty"`
	Latitude         *float64      `json:"latitude,omitempty"`
	Longitude        *float64      `json:"longitude,omitempty"`
	Rating           *float64      `json:"rating,omitempty"`
	UserRatingsTotal *int          `json:"user_ratings_total,omitempty"`
}
