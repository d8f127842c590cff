package aggregation

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joydrop/backend/internal/apperr"
	"github.com/joydrop/backend/internal/models"
	"github.com/joydrop/backend/internal/store"
)

// MemberResult describes a committed join.
type MemberResult struct {
	Membership             models.Membership `json:"membership"`
	AddedHistoricalCount   int64             `json:"added_historical_count"`
	OrganizationEventCount int64             `json:"organization_event_count"`
	OrganizationMembers    int64             `json:"organization_member_count"`
}

// AddMemberByEmail resolves an individual by email and calls AddMember.
func (s *Service) AddMemberByEmail(ctx context.Context, orgID uuid.UUID, email string) (*MemberResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperr.Invalid("individual email required")
	}
	a, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		return nil, notFoundAs(err, "individual")
	}
	if !a.IsIndividual() {
		return nil, apperr.NotFound("individual")
	}
	return s.AddMember(ctx, orgID, a.ID)
}

// AddMember links an individual to an organization and folds the
// individual's current count into the organization's count, once.
//
// Preconditions are evaluated on the locked rows inside the transaction, and
// the link itself only applies while the individual is still unlinked, so
// concurrent joins for one individual have exactly one winner.
func (s *Service) AddMember(ctx context.Context, orgID, individualID uuid.UUID) (*MemberResult, error) {
	var (
		res MemberResult
		org *models.Account
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		res = MemberResult{}

		a, err := tx.LockAccount(ctx, individualID)
		if err != nil {
			return notFoundAs(err, "individual")
		}
		if !a.IsIndividual() {
			return apperr.NotFound("individual")
		}
		o, err := tx.LockAccount(ctx, orgID)
		if err != nil {
			return notFoundAs(err, "organization")
		}
		if !o.IsOrganization() {
			return apperr.NotFound("organization")
		}
		if a.OrganizationID != nil {
			return apperr.ErrAlreadyMember
		}
		if !a.ConsentToJoin {
			return apperr.ErrConsentRequired
		}

		won, err := tx.LinkOrganization(ctx, a.ID, o.ID)
		if err != nil {
			return err
		}
		if !won {
			return apperr.ErrAlreadyMember
		}
		m := models.Membership{ID: uuid.New(), OrganizationID: o.ID, IndividualID: a.ID}
		if err := tx.InsertMembership(ctx, &m); err != nil {
			return err
		}
		members, err := tx.IncrementMemberCount(ctx, o.ID, 1)
		if err != nil {
			return err
		}
		total, err := tx.IncrementEventCount(ctx, o.ID, a.EventCount)
		if err != nil {
			return err
		}

		res.Membership = m
		res.AddedHistoricalCount = a.EventCount
		res.OrganizationEventCount = total
		res.OrganizationMembers = members
		o.EventCount, o.MemberCount = total, members
		org = o
		return nil
	})
	if err != nil {
		s.logFailure("add member", err,
			zap.String("organization_id", orgID.String()),
			zap.String("individual_id", individualID.String()))
		return nil, err
	}

	s.logger.Info("member added",
		zap.String("organization_id", orgID.String()),
		zap.String("individual_id", individualID.String()),
		zap.Int64("folded", res.AddedHistoricalCount),
		zap.Int64("organization_count", res.OrganizationEventCount))
	s.publish(ctx, org)
	return &res, nil
}
