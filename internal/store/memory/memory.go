// Package memory is an in-process store.Store. Transactions are serialized
// under one lock and run against a private copy of the state that replaces the
// live state only when the callback succeeds.
package memory

import (
	"bytes"
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joydrop/backend/internal/apperr"
	"github.com/joydrop/backend/internal/models"
	"github.com/joydrop/backend/internal/store"
)

// Write operation names passed to a Failpoint.
const (
	OpReserveSlug          = "reserve_slug"
	OpInsertAccount        = "insert_account"
	OpInsertJoydrop        = "insert_joydrop"
	OpInsertMembership     = "insert_membership"
	OpIncrementEventCount  = "increment_event_count"
	OpIncrementMemberCount = "increment_member_count"
	OpLinkOrganization     = "link_organization"
	OpUpdatePassword       = "update_password"
)

// Failpoint is consulted before every write; a non-nil error aborts it.
type Failpoint func(op string, id uuid.UUID) error

type state struct {
	accounts    map[uuid.UUID]*models.Account
	slugs       map[string]uuid.UUID
	joydrops    []models.Joydrop
	memberships []models.Membership
}

func newState() *state {
	return &state{
		accounts: make(map[uuid.UUID]*models.Account),
		slugs:    make(map[string]uuid.UUID),
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts:    make(map[uuid.UUID]*models.Account, len(s.accounts)),
		slugs:       make(map[string]uuid.UUID, len(s.slugs)),
		joydrops:    slices.Clone(s.joydrops),
		memberships: slices.Clone(s.memberships),
	}
	for id, a := range s.accounts {
		c.accounts[id] = copyAccount(a)
	}
	for k, v := range s.slugs {
		c.slugs[k] = v
	}
	return c
}

// Store implements store.Store in memory.
type Store struct {
	mu        sync.Mutex
	state     *state
	failpoint Failpoint
	now       func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{state: newState(), now: time.Now}
}

// SetFailpoint installs fn for subsequent transactions; nil clears it.
func (s *Store) SetFailpoint(fn Failpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failpoint = fn
}

// WithTx implements store.Store.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return apperr.Internal("begin transaction", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{st: s.state.clone(), failpoint: s.failpoint, now: s.now}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return apperr.Internal("commit transaction", err)
	}
	s.state = t.st
	return nil
}

func copyAccount(a *models.Account) *models.Account {
	c := *a
	if a.OrganizationID != nil {
		id := *a.OrganizationID
		c.OrganizationID = &id
	}
	return &c
}

func lessID(a, b uuid.UUID) bool { return bytes.Compare(a[:], b[:]) < 0 }

// GetAccount implements store.Reader.
func (s *Store) GetAccount(_ context.Context, id uuid.UUID) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.state.accounts[id]
	if !ok {
		return nil, apperr.NotFound("account")
	}
	return copyAccount(a), nil
}

// GetAccountBySlug implements store.Reader.
func (s *Store) GetAccountBySlug(_ context.Context, slug string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.state.slugs[strings.ToLower(slug)]
	if !ok {
		return nil, apperr.NotFound("account")
	}
	a, ok := s.state.accounts[id]
	if !ok {
		return nil, apperr.NotFound("account")
	}
	return copyAccount(a), nil
}

// GetAccountByEmail implements store.Reader.
func (s *Store) GetAccountByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.state.accounts {
		if strings.EqualFold(a.Email, email) {
			return copyAccount(a), nil
		}
	}
	return nil, apperr.NotFound("account")
}

// SlugExists implements store.Reader.
func (s *Store) SlugExists(_ context.Context, slug string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.state.slugs[strings.ToLower(slug)]
	return ok, nil
}

// OrganizationNameExists implements store.Reader.
func (s *Store) OrganizationNameExists(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.orgNameExists(name), nil
}

func (st *state) orgNameExists(name string) bool {
	name = strings.TrimSpace(name)
	for _, a := range st.accounts {
		if a.IsOrganization() && strings.EqualFold(strings.TrimSpace(a.Name), name) {
			return true
		}
	}
	return false
}

// Leaderboard implements store.Reader.
func (s *Store) Leaderboard(_ context.Context, kind models.AccountKind, limit int) ([]models.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*models.Account
	for _, a := range s.state.accounts {
		if a.Kind == kind {
			list = append(list, a)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].EventCount != list[j].EventCount {
			return list[i].EventCount > list[j].EventCount
		}
		return lessID(list[i].ID, list[j].ID)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	out := make([]models.LeaderboardEntry, 0, len(list))
	for _, a := range list {
		e := models.LeaderboardEntry{ID: a.ID, Name: a.Name, Slug: a.Slug, Count: a.EventCount, Location: a.Location()}
		if a.IsOrganization() {
			mc := a.MemberCount
			e.MemberCount = &mc
		}
		out = append(out, e)
	}
	return out, nil
}

// ListMembers implements store.Reader.
func (s *Store) ListMembers(_ context.Context, orgID uuid.UUID) ([]models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	joined := make(map[uuid.UUID]time.Time)
	for _, m := range s.state.memberships {
		if m.OrganizationID == orgID {
			joined[m.IndividualID] = m.JoinedAt
		}
	}
	out := []models.Member{}
	for _, a := range s.state.accounts {
		if a.OrganizationID == nil || *a.OrganizationID != orgID {
			continue
		}
		out = append(out, models.Member{
			ID: a.ID, Name: a.Name, Slug: a.Slug, Count: a.EventCount,
			City: a.Profile.City, Country: a.Profile.Country, JoinedAt: joined[a.ID],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return lessID(out[i].ID, out[j].ID)
	})
	return out, nil
}

// ListMemberships implements store.Reader.
func (s *Store) ListMemberships(_ context.Context, orgID uuid.UUID) ([]models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Membership{}
	for _, m := range s.state.memberships {
		if m.OrganizationID == orgID {
			out = append(out, m)
		}
	}
	return out, nil
}

// ListJoydrops implements store.Reader.
func (s *Store) ListJoydrops(_ context.Context, actorID uuid.UUID, limit int) ([]models.Joydrop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Joydrop{}
	for i := len(s.state.joydrops) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if j := s.state.joydrops[i]; j.ActorID == actorID {
			out = append(out, j)
		}
	}
	return out, nil
}

// MapPoints implements store.Reader.
func (s *Store) MapPoints(_ context.Context, limit int) ([]models.MapPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.MapPoint{}
	for i := len(s.state.joydrops) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		j := s.state.joydrops[i]
		if j.Location == nil {
			continue
		}
		p := models.MapPoint{ID: j.ID, Latitude: j.Location.Latitude, Longitude: j.Location.Longitude, UserName: "Unknown", Tier: 1, Place: j.Place}
		if a, ok := s.state.accounts[j.ActorID]; ok {
			p.UserName = a.Name
		}
		if j.OrganizationID != nil {
			p.Tier = 2
			if o, ok := s.state.accounts[*j.OrganizationID]; ok {
				p.OrganizationName = o.Name
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// Stats implements store.Reader.
func (s *Store) Stats(_ context.Context) (models.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := models.Stats{
		TotalJoydrops: int64(len(s.state.joydrops)),
		TotalAccounts: int64(len(s.state.accounts)),
	}
	for _, a := range s.state.accounts {
		if a.IsOrganization() {
			st.TotalOrganizations++
		} else {
			st.TotalIndividuals++
		}
	}
	return st, nil
}
