package aggregation

import (
	"context"

	"github.com/google/uuid"

	"github.com/joydrop/backend/internal/apperr"
	"github.com/joydrop/backend/internal/models"
	"github.com/joydrop/backend/internal/slug"
)

// Roster is an organization's member listing with its Tier 2 total.
type Roster struct {
	Organization      models.AccountPublic `json:"organization"`
	Members           []models.Member      `json:"members"`
	OrganizationTotal int64                `json:"organization_total"`
}

// ProfileView is the public page data for one account.
type ProfileView struct {
	ID               uuid.UUID          `json:"id"`
	Kind             models.AccountKind `json:"kind"`
	Name             string             `json:"name"`
	Slug             string             `json:"slug"`
	Count            int64              `json:"joydrop_count"`
	MemberCount      *int64             `json:"member_count,omitempty"`
	OrganizationName string             `json:"organization_name,omitempty"`
	OrganizationSlug string             `json:"organization_slug,omitempty"`
	Location         string             `json:"location"`
}

// ParseKind maps a query value to a kind; anything unknown is individual.
func ParseKind(v string) models.AccountKind {
	if k := models.AccountKind(v); k.Valid() {
		return k
	}
	return models.KindIndividual
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardLimit
	}
	if limit > s.maxLimit {
		return s.maxLimit
	}
	return limit
}

// Leaderboard ranks accounts of kind by count, descending; ties by id.
func (s *Service) Leaderboard(ctx context.Context, kind models.AccountKind, limit int) ([]models.LeaderboardEntry, error) {
	if !kind.Valid() {
		kind = models.KindIndividual
	}
	return s.store.Leaderboard(ctx, kind, s.clampLimit(limit))
}

// OrganizationMembers lists current members with their Tier 1 counts.
func (s *Service) OrganizationMembers(ctx context.Context, orgID uuid.UUID) (*Roster, error) {
	org, err := s.store.GetAccount(ctx, orgID)
	if err != nil {
		return nil, notFoundAs(err, "organization")
	}
	if !org.IsOrganization() {
		return nil, apperr.NotFound("organization")
	}
	members, err := s.store.ListMembers(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return &Roster{Organization: org.ToPublic(), Members: members, OrganizationTotal: org.EventCount}, nil
}

// Memberships returns the join log of an organization, oldest first.
func (s *Service) Memberships(ctx context.Context, orgID uuid.UUID) ([]models.Membership, error) {
	org, err := s.store.GetAccount(ctx, orgID)
	if err != nil {
		return nil, notFoundAs(err, "organization")
	}
	if !org.IsOrganization() {
		return nil, apperr.NotFound("organization")
	}
	return s.store.ListMemberships(ctx, orgID)
}

// Joydrops returns an individual's most recent joydrops.
func (s *Service) Joydrops(ctx context.Context, individualID uuid.UUID, limit int) ([]models.Joydrop, error) {
	a, err := s.store.GetAccount(ctx, individualID)
	if err != nil {
		return nil, notFoundAs(err, "individual")
	}
	if !a.IsIndividual() {
		return nil, apperr.NotFound("individual")
	}
	return s.store.ListJoydrops(ctx, individualID, s.clampLimit(limit))
}

// Profile returns the public view of the account holding slug.
func (s *Service) Profile(ctx context.Context, handle string) (*ProfileView, error) {
	a, err := s.AccountBySlug(ctx, handle)
	if err != nil {
		return nil, err
	}
	v := &ProfileView{ID: a.ID, Kind: a.Kind, Name: a.Name, Slug: a.Slug, Count: a.EventCount, Location: a.Location()}
	if a.IsOrganization() {
		mc := a.MemberCount
		v.MemberCount = &mc
		return v, nil
	}
	if a.OrganizationID != nil {
		if org, err := s.store.GetAccount(ctx, *a.OrganizationID); err == nil {
			v.OrganizationName, v.OrganizationSlug = org.Name, org.Slug
		} else if apperr.KindOf(err) != apperr.KindNotFound {
			return nil, err
		}
	}
	return v, nil
}

// AccountBySlug returns the account holding slug.
func (s *Service) AccountBySlug(ctx context.Context, handle string) (*models.Account, error) {
	a, err := s.store.GetAccountBySlug(ctx, slug.Normalize(handle))
	if err != nil {
		return nil, notFoundAs(err, "account")
	}
	return a, nil
}

// Account returns the account with id.
func (s *Service) Account(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return s.store.GetAccount(ctx, id)
}

// AccountByEmail returns the account registered with email.
func (s *Service) AccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.store.GetAccountByEmail(ctx, email)
}

// Stats returns platform totals.
func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	return s.store.Stats(ctx)
}

// MapPoints returns recent located joydrops.
func (s *Service) MapPoints(ctx context.Context, limit int) ([]models.MapPoint, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	return s.store.MapPoints(ctx, limit)
}
