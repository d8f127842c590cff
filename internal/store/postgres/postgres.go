// Package postgres implements store.Store on PostgreSQL via pgx.
//
// Counters are only ever changed with "col = col + $n" updates so concurrent
// transactions never lose increments; the organization link is a conditional
// update on "organization_id IS NULL" so at most one join can win.
package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joydrop/backend/internal/apperr"
	"github.com/joydrop/backend/internal/models"
	"github.com/joydrop/backend/internal/store"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL store.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New creates a store on pool. Run database.Migrate first.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithTx implements store.Store.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(t pgx.Tx) error {
		return fn(ctx, &tx{q: t})
	})
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return translate("transaction", err)
}

// translate maps driver errors onto the apperr taxonomy.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "accounts_slug_key", "slugs_pkey":
			return apperr.ErrSlugTaken
		case "accounts_email_lower_key":
			return apperr.ErrEmailTaken
		case "accounts_org_name_lower_key":
			return apperr.ErrDuplicateName
		case "memberships_individual_key":
			return apperr.ErrAlreadyMember
		}
	}
	return apperr.Internal(op, err)
}

const accountColumns = `id, kind, slug, email, password_hash, name, event_count, member_count,
	organization_id, consent_to_join,
	COALESCE(address,''), COALESCE(city,''), COALESCE(state_province,''), COALESCE(country,''),
	COALESCE(contact_number,''), COALESCE(contact_email,''), COALESCE(org_type,''), COALESCE(website,''),
	COALESCE(contact_name,''), COALESCE(contact_role,''), created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	var kind string
	err := row.Scan(&a.ID, &kind, &a.Slug, &a.Email, &a.PasswordHash, &a.Name, &a.EventCount, &a.MemberCount,
		&a.OrganizationID, &a.ConsentToJoin,
		&a.Profile.Address, &a.Profile.City, &a.Profile.StateProvince, &a.Profile.Country,
		&a.Profile.ContactNumber, &a.Profile.ContactEmail, &a.Profile.OrgType, &a.Profile.Website,
		&a.Profile.ContactName, &a.Profile.ContactRole, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("account")
		}
		return nil, apperr.Internal("scan account", err)
	}
	a.Kind = models.AccountKind(kind)
	return &a, nil
}

func getAccount(ctx context.Context, q querier, where string, arg any) (*models.Account, error) {
	return scanAccount(q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+where, arg))
}

// GetAccount implements store.Reader.
func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return getAccount(ctx, s.pool, `id = $1`, id)
}

// GetAccountBySlug implements store.Reader.
func (s *Store) GetAccountBySlug(ctx context.Context, slug string) (*models.Account, error) {
	return getAccount(ctx, s.pool, `slug = LOWER($1)`, slug)
}

// GetAccountByEmail implements store.Reader.
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return getAccount(ctx, s.pool, `LOWER(email) = LOWER($1)`, email)
}

// SlugExists implements store.Reader.
func (s *Store) SlugExists(ctx context.Context, slug string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM slugs WHERE slug = LOWER($1))`, slug).Scan(&ok)
	if err != nil {
		return false, apperr.Internal("check slug", err)
	}
	return ok, nil
}

func orgNameExists(ctx context.Context, q querier, name string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM accounts WHERE kind = 'organization' AND LOWER(TRIM(name)) = LOWER(TRIM($1)))`
	var ok bool
	if err := q.QueryRow(ctx, query, name).Scan(&ok); err != nil {
		return false, apperr.Internal("check organization name", err)
	}
	return ok, nil
}

// OrganizationNameExists implements store.Reader.
func (s *Store) OrganizationNameExists(ctx context.Context, name string) (bool, error) {
	return orgNameExists(ctx, s.pool, name)
}

// Leaderboard implements store.Reader.
func (s *Store) Leaderboard(ctx context.Context, kind models.AccountKind, limit int) ([]models.LeaderboardEntry, error) {
	const q = `SELECT id, name, slug, event_count, member_count, COALESCE(city,''), COALESCE(country,'')
		FROM accounts WHERE kind = $1
		ORDER BY event_count DESC, id ASC
		LIMIT $2`
	rows, err := s.pool.Query(ctx, q, string(kind), limit)
	if err != nil {
		return nil, apperr.Internal("query leaderboard", err)
	}
	defer rows.Close()
	list := []models.LeaderboardEntry{}
	for rows.Next() {
		var e models.LeaderboardEntry
		var memberCount int64
		a := models.Account{}
		if err := rows.Scan(&e.ID, &e.Name, &e.Slug, &e.Count, &memberCount, &a.Profile.City, &a.Profile.Country); err != nil {
			return nil, apperr.Internal("scan leaderboard", err)
		}
		e.Location = a.Location()
		if kind == models.KindOrganization {
			e.MemberCount = &memberCount
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("iterate leaderboard", err)
	}
	return list, nil
}

// ListMembers implements store.Reader.
func (s *Store) ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.Member, error) {
	const q = `SELECT a.id, a.name, a.slug, a.event_count, COALESCE(a.city,''), COALESCE(a.country,''),
		COALESCE(m.joined_at, a.created_at)
		FROM accounts a
		LEFT JOIN memberships m ON m.individual_id = a.id AND m.organization_id = a.organization_id
		WHERE a.organization_id = $1
		ORDER BY a.event_count DESC, a.id ASC`
	rows, err := s.pool.Query(ctx, q, orgID)
	if err != nil {
		return nil, apperr.Internal("query members", err)
	}
	defer rows.Close()
	list := []models.Member{}
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Slug, &m.Count, &m.City, &m.Country, &m.JoinedAt); err != nil {
			return nil, apperr.Internal("scan member", err)
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("iterate members", err)
	}
	return list, nil
}

// ListMemberships implements store.Reader.
func (s *Store) ListMemberships(ctx context.Context, orgID uuid.UUID) ([]models.Membership, error) {
	const q = `SELECT id, organization_id, individual_id, joined_at FROM memberships
		WHERE organization_id = $1 ORDER BY joined_at ASC, id ASC`
	rows, err := s.pool.Query(ctx, q, orgID)
	if err != nil {
		return nil, apperr.Internal("query memberships", err)
	}
	defer rows.Close()
	list := []models.Membership{}
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.IndividualID, &m.JoinedAt); err != nil {
			return nil, apperr.Internal("scan membership", err)
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("iterate memberships", err)
	}
	return list, nil
}

// ListJoydrops implements store.Reader.
func (s *Store) ListJoydrops(ctx context.Context, actorID uuid.UUID, limit int) ([]models.Joydrop, error) {
	const q = `SELECT id, actor_id, organization_id, COALESCE(url,''), COALESCE(comment,''), latitude, longitude,
		COALESCE(city,''), COALESCE(state_province,''), COALESCE(country,''), created_at
		FROM joydrops WHERE actor_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	rows, err := s.pool.Query(ctx, q, actorID, limit)
	if err != nil {
		return nil, apperr.Internal("query joydrops", err)
	}
	defer rows.Close()
	list := []models.Joydrop{}
	for rows.Next() {
		var j models.Joydrop
		var lat, lng *float64
		if err := rows.Scan(&j.ID, &j.ActorID, &j.OrganizationID, &j.URL, &j.Comment, &lat, &lng,
			&j.City, &j.StateProvince, &j.Country, &j.CreatedAt); err != nil {
			return nil, apperr.Internal("scan joydrop", err)
		}
		if lat != nil && lng != nil {
			j.Location = &models.GeoPoint{Latitude: *lat, Longitude: *lng}
		}
		list = append(list, j)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("iterate joydrops", err)
	}
	return list, nil
}

// MapPoints implements store.Reader.
func (s *Store) MapPoints(ctx context.Context, limit int) ([]models.MapPoint, error) {
	const q = `SELECT j.id, j.latitude, j.longitude, COALESCE(a.name, 'Unknown'), COALESCE(o.name, ''), j.organization_id IS NOT NULL,
		COALESCE(j.city,''), COALESCE(j.state_province,''), COALESCE(j.country,'')
		FROM joydrops j
		LEFT JOIN accounts a ON a.id = j.actor_id
		LEFT JOIN accounts o ON o.id = j.organization_id
		WHERE j.latitude IS NOT NULL AND j.longitude IS NOT NULL
		ORDER BY j.created_at DESC
		LIMIT $1`
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, apperr.Internal("query map points", err)
	}
	defer rows.Close()
	list := []models.MapPoint{}
	for rows.Next() {
		var p models.MapPoint
		var linked bool
		if err := rows.Scan(&p.ID, &p.Latitude, &p.Longitude, &p.UserName, &p.OrganizationName, &linked,
			&p.City, &p.StateProvince, &p.Country); err != nil {
			return nil, apperr.Internal("scan map point", err)
		}
		p.Tier = 1
		if linked {
			p.Tier = 2
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("iterate map points", err)
	}
	return list, nil
}

// Stats implements store.Reader.
func (s *Store) Stats(ctx context.Context) (models.Stats, error) {
	const q = `SELECT
		(SELECT COUNT(*) FROM joydrops),
		COUNT(*),
		COUNT(*) FILTER (WHERE kind = 'individual'),
		COUNT(*) FILTER (WHERE kind = 'organization')
		FROM accounts`
	var st models.Stats
	err := s.pool.QueryRow(ctx, q).Scan(&st.TotalJoydrops, &st.TotalAccounts, &st.TotalIndividuals, &st.TotalOrganizations)
	if err != nil {
		return models.Stats{}, apperr.Internal("query stats", err)
	}
	return st, nil
}
