package models

import (
	"time"

	"github.com/google/uuid"
)

// GeoPoint is an optional coordinate captured with a joydrop.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Joydrop is one logged good deed. Append-only: never updated or deleted.
type Joydrop struct {
	ID             uuid.UUID  `json:"id"`
	ActorID        uuid.UUID  `json:"actor_id"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"` // snapshot at logging time
	URL            string     `json:"url,omitempty"`
	Comment        string     `json:"comment,omitempty"`
	Location       *GeoPoint  `json:"location,omitempty"`
	Place
	CreatedAt time.Time `json:"created_at"`
}

// Place names where a joydrop happened. Empty fields fall back to the
// actor's profile when logging.
type Place struct {
	City          string `json:"city,omitempty"`
	StateProvince string `json:"state_province,omitempty"`
	Country       string `json:"country,omitempty"`
}

// JoydropMetadata is the optional free-form data supplied when logging.
type JoydropMetadata struct {
	URL      string    `json:"url,omitempty"`
	Comment  string    `json:"comment,omitempty"`
	Location *GeoPoint `json:"location,omitempty"`
	Place
}

// MapPoint is a located joydrop for map rendering. Tier is 2 when the actor
// belonged to an organization at logging time, otherwise 1.
type MapPoint struct {
	ID               uuid.UUID `json:"id"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	UserName         string    `json:"user_name"`
	OrganizationName string    `json:"organization_name,omitempty"`
	Tier             int       `json:"tier"`
	Place
}
