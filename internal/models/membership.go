package models

import (
	"time"

	"github.com/google/uuid"
)

// Membership records that an individual joined an organization. Append-only.
type Membership struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	IndividualID   uuid.UUID `json:"individual_id"`
	JoinedAt       time.Time `json:"joined_at"`
}

// Member is an organization member with their current Tier 1 count.
type Member struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Slug     string    `json:"slug"`
	Count    int64     `json:"count"`
	City     string    `json:"city,omitempty"`
	Country  string    `json:"country,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}
