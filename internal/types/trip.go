package types

import (
	"time"

	"github.com/google/uuid"
)

// Trip matches the trips table structure. Destination is the legacy free-text
// field; DestinationCityID is the normalized link populated by the backfill.
type Trip struct {
	ID                uuid.UUID     `json:"id"`
	Title             string        `json:"title"`
	Destination       string        `json:"destination,omitempty"`
	DestinationCityID uuid.NullUUID `json:"destination_city_id,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// TripCity is a row of the ordered trip_cities join table.
type TripCity struct {
	TripID    uuid.UUID `json:"trip_id"`
	CityID    uuid.UUID `json:"city_id"`
	CityOrder int       `json:"city_order"`
}

// ItineraryActivity matches the trip_itinerary_activities table. PlaceID is
// optional; activities without it carry only free-text name/location.
type ItineraryActivity struct {
	ID       uuid.UUID     `json:"id"`
	TripID   uuid.UUID     `json:"trip_id"`
	Name     string        `json:"name"`
	Location string        `json:"location,omitempty"`
	PlaceID  uuid.NullUUID `json:"place_id,omitempty"`
}
