package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joydrop/backend/internal/apperr"
	"github.com/joydrop/backend/internal/models"
)

type tx struct {
	st        *state
	failpoint Failpoint
	now       func() time.Time
}

func (t *tx) fail(op string, id uuid.UUID) error {
	if t.failpoint == nil {
		return nil
	}
	if err := t.failpoint(op, id); err != nil {
		return apperr.Internal(op, err)
	}
	return nil
}

func (t *tx) LockAccount(_ context.Context, id uuid.UUID) (*models.Account, error) {
	a, ok := t.st.accounts[id]
	if !ok {
		return nil, apperr.NotFound("account")
	}
	return copyAccount(a), nil
}

func (t *tx) OrganizationNameExists(_ context.Context, name string) (bool, error) {
	return t.st.orgNameExists(name), nil
}

func (t *tx) ReserveSlug(_ context.Context, slug string, accountID uuid.UUID, _ models.AccountKind) error {
	if err := t.fail(OpReserveSlug, accountID); err != nil {
		return err
	}
	slug = strings.ToLower(slug)
	if _, taken := t.st.slugs[slug]; taken {
		return apperr.ErrSlugTaken
	}
	t.st.slugs[slug] = accountID
	return nil
}

func (t *tx) InsertAccount(_ context.Context, a *models.Account) error {
	if err := t.fail(OpInsertAccount, a.ID); err != nil {
		return err
	}
	for _, other := range t.st.accounts {
		if strings.EqualFold(other.Email, a.Email) {
			return apperr.ErrEmailTaken
		}
		if other.Slug == a.Slug {
			return apperr.ErrSlugTaken
		}
	}
	if a.IsOrganization() && t.st.orgNameExists(a.Name) {
		return apperr.ErrDuplicateName
	}
	now := t.now()
	a.CreatedAt, a.UpdatedAt = now, now
	t.st.accounts[a.ID] = copyAccount(a)
	return nil
}

func (t *tx) UpdatePasswordHash(_ context.Context, accountID uuid.UUID, hash string) error {
	if err := t.fail(OpUpdatePassword, accountID); err != nil {
		return err
	}
	a, ok := t.st.accounts[accountID]
	if !ok {
		return apperr.NotFound("account")
	}
	a.PasswordHash = hash
	a.UpdatedAt = t.now()
	return nil
}

func (t *tx) InsertJoydrop(_ context.Context, j *models.Joydrop) error {
	if err := t.fail(OpInsertJoydrop, j.ActorID); err != nil {
		return err
	}
	if _, ok := t.st.accounts[j.ActorID]; !ok {
		return apperr.NotFound("individual")
	}
	j.CreatedAt = t.now()
	t.st.joydrops = append(t.st.joydrops, *j)
	return nil
}

func (t *tx) InsertMembership(_ context.Context, m *models.Membership) error {
	if err := t.fail(OpInsertMembership, m.IndividualID); err != nil {
		return err
	}
	for _, existing := range t.st.memberships {
		if existing.IndividualID == m.IndividualID {
			return apperr.ErrAlreadyMember
		}
	}
	m.JoinedAt = t.now()
	t.st.memberships = append(t.st.memberships, *m)
	return nil
}

func (t *tx) IncrementEventCount(_ context.Context, accountID uuid.UUID, delta int64) (int64, error) {
	if err := t.fail(OpIncrementEventCount, accountID); err != nil {
		return 0, err
	}
	a, ok := t.st.accounts[accountID]
	if !ok {
		return 0, apperr.NotFound("account")
	}
	a.EventCount += delta
	a.UpdatedAt = t.now()
	return a.EventCount, nil
}

func (t *tx) IncrementMemberCount(_ context.Context, orgID uuid.UUID, delta int64) (int64, error) {
	if err := t.fail(OpIncrementMemberCount, orgID); err != nil {
		return 0, err
	}
	a, ok := t.st.accounts[orgID]
	if !ok || !a.IsOrganization() {
		return 0, apperr.NotFound("organization")
	}
	a.MemberCount += delta
	a.UpdatedAt = t.now()
	return a.MemberCount, nil
}

func (t *tx) LinkOrganization(_ context.Context, individualID, orgID uuid.UUID) (bool, error) {
	if err := t.fail(OpLinkOrganization, individualID); err != nil {
		return false, err
	}
	a, ok := t.st.accounts[individualID]
	if !ok || !a.IsIndividual() {
		return false, apperr.NotFound("individual")
	}
	if a.OrganizationID != nil {
		return false, nil
	}
	id := orgID
	a.OrganizationID = &id
	a.UpdatedAt = t.now()
	return true, nil
}
