// Package store defines the persistence contract for accounts, joydrops and
// memberships. Implementations live in store/postgres and store/memory.
//
// Every cross-record change happens inside Store.WithTx: the callback either
// returns nil and all of its writes commit together, or returns an error and
// none of them are visible.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/joydrop/backend/internal/models"
)

// Store is the persistent state of the system.
type Store interface {
	Reader
	// WithTx runs fn in a single all-or-nothing transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Reader holds the read-only queries. Absent entities yield apperr NotFound.
type Reader interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetAccountBySlug(ctx context.Context, slug string) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	OrganizationNameExists(ctx context.Context, name string) (bool, error)

	// Leaderboard returns accounts of kind ordered by count desc, id asc.
	Leaderboard(ctx context.Context, kind models.AccountKind, limit int) ([]models.LeaderboardEntry, error)
	// ListMembers returns individuals linked to orgID, highest count first.
	ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.Member, error)
	ListMemberships(ctx context.Context, orgID uuid.UUID) ([]models.Membership, error)
	// ListJoydrops returns an actor's joydrops, newest first.
	ListJoydrops(ctx context.Context, actorID uuid.UUID, limit int) ([]models.Joydrop, error)
	MapPoints(ctx context.Context, limit int) ([]models.MapPoint, error)
	Stats(ctx context.Context) (models.Stats, error)
}

// Tx is the write side, valid only inside WithTx.
type Tx interface {
	// LockAccount reads an account and holds it against concurrent writers
	// until the transaction ends.
	LockAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)

	// OrganizationNameExists re-checks org name uniqueness inside the transaction.
	OrganizationNameExists(ctx context.Context, name string) (bool, error)

	// ReserveSlug claims slug for accountID. Fails with apperr.ErrSlugTaken if
	// any account already holds it, including one committed concurrently.
	ReserveSlug(ctx context.Context, slug string, accountID uuid.UUID, kind models.AccountKind) error

	// InsertAccount stores a new account. Duplicate email yields
	// apperr.ErrEmailTaken; duplicate organization name apperr.ErrDuplicateName.
	InsertAccount(ctx context.Context, a *models.Account) error

	// UpdatePasswordHash replaces an account's credential.
	UpdatePasswordHash(ctx context.Context, accountID uuid.UUID, hash string) error

	InsertJoydrop(ctx context.Context, j *models.Joydrop) error
	InsertMembership(ctx context.Context, m *models.Membership) error

	// IncrementEventCount atomically adds delta and returns the new value.
	IncrementEventCount(ctx context.Context, accountID uuid.UUID, delta int64) (int64, error)
	// IncrementMemberCount atomically adds delta to an organization and returns the new value.
	IncrementMemberCount(ctx context.Context, orgID uuid.UUID, delta int64) (int64, error)

	// LinkOrganization sets an individual's organization only if it is still
	// unset. It reports false when another join already won.
	LinkOrganization(ctx context.Context, individualID, orgID uuid.UUID) (bool, error)
}
