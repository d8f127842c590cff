package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/joydrop/backend/internal/apperr"
	"github.com/joydrop/backend/internal/models"
)

type tx struct {
	q querier
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (t *tx) LockAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return getAccount(ctx, t.q, `id = $1 FOR UPDATE`, id)
}

func (t *tx) OrganizationNameExists(ctx context.Context, name string) (bool, error) {
	return orgNameExists(ctx, t.q, name)
}

// ReserveSlug inserts the registry row. A concurrent uncommitted claim on the
// same slug blocks this insert until it resolves, so the loser sees the row.
func (t *tx) ReserveSlug(ctx context.Context, slug string, accountID uuid.UUID, kind models.AccountKind) error {
	const q = `INSERT INTO slugs (slug, account_id, kind) VALUES (LOWER($1), $2, $3) ON CONFLICT (slug) DO NOTHING`
	tag, err := t.q.Exec(ctx, q, slug, accountID, string(kind))
	if err != nil {
		return translate("reserve slug", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrSlugTaken
	}
	return nil
}

func (t *tx) InsertAccount(ctx context.Context, a *models.Account) error {
	const q = `INSERT INTO accounts (id, kind, slug, email, password_hash, name, event_count, member_count,
		organization_id, consent_to_join, address, city, state_province, country, contact_number, contact_email,
		org_type, website, contact_name, contact_role)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING created_at, updated_at`
	p := a.Profile
	err := t.q.QueryRow(ctx, q, a.ID, string(a.Kind), a.Slug, a.Email, a.PasswordHash, a.Name,
		a.OrganizationID, a.ConsentToJoin,
		nullIfEmpty(p.Address), nullIfEmpty(p.City), nullIfEmpty(p.StateProvince), nullIfEmpty(p.Country),
		nullIfEmpty(p.ContactNumber), nullIfEmpty(p.ContactEmail), nullIfEmpty(p.OrgType), nullIfEmpty(p.Website),
		nullIfEmpty(p.ContactName), nullIfEmpty(p.ContactRole)).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return translate("insert account", err)
	}
	a.EventCount, a.MemberCount = 0, 0
	return nil
}

func (t *tx) UpdatePasswordHash(ctx context.Context, accountID uuid.UUID, hash string) error {
	tag, err := t.q.Exec(ctx, `UPDATE accounts SET password_hash = $2, updated_at = NOW() WHERE id = $1`, accountID, hash)
	if err != nil {
		return translate("update password", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("account")
	}
	return nil
}

func (t *tx) InsertJoydrop(ctx context.Context, j *models.Joydrop) error {
	const q = `INSERT INTO joydrops (id, actor_id, organization_id, url, comment, latitude, longitude,
		city, state_province, country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`
	var lat, lng *float64
	if j.Location != nil {
		lat, lng = &j.Location.Latitude, &j.Location.Longitude
	}
	err := t.q.QueryRow(ctx, q, j.ID, j.ActorID, j.OrganizationID, nullIfEmpty(j.URL), nullIfEmpty(j.Comment), lat, lng,
		nullIfEmpty(j.City), nullIfEmpty(j.StateProvince), nullIfEmpty(j.Country)).
		Scan(&j.CreatedAt)
	return translate("insert joydrop", err)
}

func (t *tx) InsertMembership(ctx context.Context, m *models.Membership) error {
	const q = `INSERT INTO memberships (id, organization_id, individual_id)
		VALUES ($1, $2, $3)
		RETURNING joined_at`
	err := t.q.QueryRow(ctx, q, m.ID, m.OrganizationID, m.IndividualID).Scan(&m.JoinedAt)
	return translate("insert membership", err)
}

func (t *tx) IncrementEventCount(ctx context.Context, accountID uuid.UUID, delta int64) (int64, error) {
	const q = `UPDATE accounts SET event_count = event_count + $2, updated_at = NOW()
		WHERE id = $1 RETURNING event_count`
	var n int64
	if err := t.q.QueryRow(ctx, q, accountID, delta).Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperr.NotFound("account")
		}
		return 0, translate("increment event count", err)
	}
	return n, nil
}

func (t *tx) IncrementMemberCount(ctx context.Context, orgID uuid.UUID, delta int64) (int64, error) {
	const q = `UPDATE accounts SET member_count = member_count + $2, updated_at = NOW()
		WHERE id = $1 AND kind = 'organization' RETURNING member_count`
	var n int64
	if err := t.q.QueryRow(ctx, q, orgID, delta).Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperr.NotFound("organization")
		}
		return 0, translate("increment member count", err)
	}
	return n, nil
}

func (t *tx) LinkOrganization(ctx context.Context, individualID, orgID uuid.UUID) (bool, error) {
	const q = `UPDATE accounts SET organization_id = $2, updated_at = NOW()
		WHERE id = $1 AND kind = 'individual' AND organization_id IS NULL`
	tag, err := t.q.Exec(ctx, q, individualID, orgID)
	if err != nil {
		return false, translate("link organization", err)
	}
	return tag.RowsAffected() == 1, nil
}
