package models

import (
	"time"

	"github.com/google/uuid"
)

// AccountKind distinguishes individual accounts from organizations.
type AccountKind string

const (
	KindIndividual   AccountKind = "individual"
	KindOrganization AccountKind = "organization"
)

// Valid reports whether k is one of the known kinds.
func (k AccountKind) Valid() bool {
	return k == KindIndividual || k == KindOrganization
}

// Account is either an Individual or an Organization. Both share id, slug and
// event_count; organization_id and consent apply to individuals only,
// member_count to organizations only.
type Account struct {
	ID           uuid.UUID   `json:"id"`
	Kind         AccountKind `json:"kind"`
	Slug         string      `json:"slug"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	Name         string      `json:"name"`
	EventCount   int64       `json:"event_count"`

	// Individual only. Set once, never changed.
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	ConsentToJoin  bool       `json:"consent_to_join_org"`

	// Organization only.
	MemberCount int64 `json:"member_count"`

	Profile   Profile   `json:"profile"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsIndividual reports whether the account is an individual.
func (a *Account) IsIndividual() bool { return a.Kind == KindIndividual }

// IsOrganization reports whether the account is an organization.
func (a *Account) IsOrganization() bool { return a.Kind == KindOrganization }

// Location renders "city, country" for listings; "Unknown" when both are empty.
func (a *Account) Location() string {
	switch {
	case a.Profile.City != "" && a.Profile.Country != "":
		return a.Profile.City + ", " + a.Profile.Country
	case a.Profile.City != "":
		return a.Profile.City
	case a.Profile.Country != "":
		return a.Profile.Country
	}
	return "Unknown"
}

// Profile holds optional contact and descriptive fields.
type Profile struct {
	Address       string `json:"address,omitempty"`
	City          string `json:"city,omitempty"`
	StateProvince string `json:"state_province,omitempty"`
	Country       string `json:"country,omitempty"`
	ContactNumber string `json:"contact_number,omitempty"`
	ContactEmail  string `json:"contact_email,omitempty"`

	// Organization descriptors.
	OrgType     string `json:"org_type,omitempty"`
	Website     string `json:"website,omitempty"`
	ContactName string `json:"contact_name,omitempty"`
	ContactRole string `json:"contact_role,omitempty"`
}

// AccountPublic is Account without credentials for API responses.
type AccountPublic struct {
	ID             uuid.UUID   `json:"id"`
	Kind           AccountKind `json:"kind"`
	Slug           string      `json:"slug"`
	Name           string      `json:"name"`
	EventCount     int64       `json:"event_count"`
	MemberCount    int64       `json:"member_count,omitempty"`
	OrganizationID *uuid.UUID  `json:"organization_id,omitempty"`
	Location       string      `json:"location"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ToPublic converts Account to AccountPublic.
func (a *Account) ToPublic() AccountPublic {
	return AccountPublic{
		ID:             a.ID,
		Kind:           a.Kind,
		Slug:           a.Slug,
		Name:           a.Name,
		EventCount:     a.EventCount,
		MemberCount:    a.MemberCount,
		OrganizationID: a.OrganizationID,
		Location:       a.Location(),
		CreatedAt:      a.CreatedAt,
	}
}

// LeaderboardEntry is one ranked row of a leaderboard.
type LeaderboardEntry struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Count       int64     `json:"count"`
	MemberCount *int64    `json:"member_count,omitempty"`
	Location    string    `json:"location"`
}

// Stats are platform-wide totals.
type Stats struct {
	TotalJoydrops      int64 `json:"total_joydrops"`
	TotalAccounts      int64 `json:"total_accounts"`
	TotalIndividuals   int64 `json:"total_individuals"`
	TotalOrganizations int64 `json:"total_organizations"`
}

// CounterUpdate is the post-commit snapshot of an account's counters,
// broadcast to live counter subscribers.
type CounterUpdate struct {
	AccountID   uuid.UUID   `json:"account_id"`
	Slug        string      `json:"slug"`
	Kind        AccountKind `json:"kind"`
	EventCount  int64       `json:"event_count"`
	MemberCount int64       `json:"member_count,omitempty"`
	At          time.Time   `json:"at"`
}
