// Package aggregation keeps individual (Tier 1) and organization (Tier 2)
// joydrop counts consistent.
//
// An organization's count is the sum of each member's count at the moment
// they joined plus every joydrop those members logged afterwards. Every
// operation that touches counts runs in one store transaction and locks the
// individual row before the organization row.
package aggregation

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joydrop/backend/internal/apperr"
	"github.com/joydrop/backend/internal/models"
	"github.com/joydrop/backend/internal/slug"
	"github.com/joydrop/backend/internal/store"
)

const (
	// DefaultLeaderboardLimit applies when callers pass limit <= 0.
	DefaultLeaderboardLimit = 10
	// DefaultMaxLeaderboardLimit caps leaderboard and listing sizes.
	DefaultMaxLeaderboardLimit = 100
	// DefaultSlugAttempts bounds generated-slug retries for organizations.
	DefaultSlugAttempts = 5
	// MaxNameLength bounds display names.
	MaxNameLength = 255
	// MaxCommentLength bounds joydrop comments.
	MaxCommentLength = 2000
	// MaxURLLength bounds joydrop URLs.
	MaxURLLength = 2048
	// MaxPlaceLength bounds each place name on a joydrop.
	MaxPlaceLength = 255
)

// CounterPublisher receives committed counter changes. Failures are logged only.
type CounterPublisher interface {
	PublishCounter(ctx context.Context, update models.CounterUpdate) error
}

// Options configures a Service. Zero values select defaults.
type Options struct {
	Publisher           CounterPublisher
	Logger              *zap.Logger
	MaxLeaderboardLimit int
	SlugAttempts        int
	Now                 func() time.Time
}

// Service implements account registration, joydrop logging and membership.
type Service struct {
	store        store.Store
	publisher    CounterPublisher
	logger       *zap.Logger
	maxLimit     int
	slugAttempts int
	now          func() time.Time
}

// NewService creates an aggregation service on st.
func NewService(st store.Store, opts Options) *Service {
	s := &Service{
		store:        st,
		publisher:    opts.Publisher,
		logger:       opts.Logger,
		maxLimit:     opts.MaxLeaderboardLimit,
		slugAttempts: opts.SlugAttempts,
		now:          opts.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.maxLimit <= 0 {
		s.maxLimit = DefaultMaxLeaderboardLimit
	}
	if s.slugAttempts <= 0 {
		s.slugAttempts = DefaultSlugAttempts
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// IndividualParams are the inputs for CreateIndividual. PasswordHash is
// already hashed by the caller.
type IndividualParams struct {
	Email          string
	PasswordHash   string
	Name           string
	Slug           string
	OrganizationID *uuid.UUID
	ConsentToJoin  bool
	Profile        models.Profile
}

// OrganizationParams are the inputs for CreateOrganization. An empty Slug is
// derived from Name.
type OrganizationParams struct {
	Email        string
	PasswordHash string
	Name         string
	Slug         string
	Profile      models.Profile
}

// Registered identifies a newly created account.
type Registered struct {
	ID             uuid.UUID  `json:"id"`
	Slug           string     `json:"slug"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
}

// SlugAvailability is the answer to CheckSlug.
type SlugAvailability struct {
	Slug      string `json:"slug"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

func validateAccountBasics(email, name string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > MaxNameLength {
		return "", "", apperr.Invalid("name must be 1-255 characters")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return "", "", apperr.Invalid("invalid email")
	}
	return email, name, nil
}

// CheckSlug reports whether candidate is well-formed and unclaimed. It is
// advisory: registration re-checks atomically with the write.
func (s *Service) CheckSlug(ctx context.Context, candidate string) (SlugAvailability, error) {
	normalized, err := slug.Validate(candidate)
	if err != nil {
		return SlugAvailability{Slug: slug.Normalize(candidate), Reason: apperr.CodeInvalidFormat}, nil
	}
	taken, err := s.store.SlugExists(ctx, normalized)
	if err != nil {
		return SlugAvailability{}, err
	}
	if taken {
		return SlugAvailability{Slug: normalized, Reason: apperr.CodeSlugTaken}, nil
	}
	return SlugAvailability{Slug: normalized, Available: true}, nil
}

// CreateIndividual registers an individual with a zero count. A known
// OrganizationID links the account at creation (no fold is needed since the
// count is zero); an unknown one is ignored.
func (s *Service) CreateIndividual(ctx context.Context, p IndividualParams) (*Registered, error) {
	email, name, err := validateAccountBasics(p.Email, p.Name)
	if err != nil {
		return nil, err
	}
	handle, err := slug.Validate(p.Slug)
	if err != nil {
		return nil, err
	}
	if taken, err := s.store.SlugExists(ctx, handle); err != nil {
		return nil, err
	} else if taken {
		return nil, apperr.ErrSlugTaken
	}

	acct := &models.Account{
		ID:            uuid.New(),
		Kind:          models.KindIndividual,
		Slug:          handle,
		Email:         email,
		PasswordHash:  p.PasswordHash,
		Name:          name,
		ConsentToJoin: p.ConsentToJoin,
		Profile:       p.Profile,
	}
	var linked *models.Account
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.ReserveSlug(ctx, handle, acct.ID, acct.Kind); err != nil {
			return err
		}
		if p.OrganizationID != nil {
			org, err := tx.LockAccount(ctx, *p.OrganizationID)
			switch {
			case err == nil && org.IsOrganization():
				orgID := org.ID
				acct.OrganizationID = &orgID
				linked = org
			case err == nil || errors.Is(err, apperr.ErrNotFound):
				s.logger.Warn("organization not found, registering without organization",
					zap.String("organization_id", p.OrganizationID.String()))
			default:
				return err
			}
		}
		if err := tx.InsertAccount(ctx, acct); err != nil {
			return err
		}
		if linked == nil {
			return nil
		}
		if err := tx.InsertMembership(ctx, &models.Membership{
			ID:             uuid.New(),
			OrganizationID: linked.ID,
			IndividualID:   acct.ID,
		}); err != nil {
			return err
		}
		n, err := tx.IncrementMemberCount(ctx, linked.ID, 1)
		if err != nil {
			return err
		}
		linked.MemberCount = n
		return nil
	})
	if err != nil {
		s.logFailure("create individual", err, zap.String("slug", handle))
		return nil, err
	}

	s.logger.Info("individual registered", zap.String("id", acct.ID.String()), zap.String("slug", handle))
	if linked != nil {
		s.publish(ctx, linked)
	}
	return &Registered{ID: acct.ID, Slug: handle, OrganizationID: acct.OrganizationID}, nil
}

// CreateOrganization registers an organization with zero counts. Names are
// unique case-insensitively. An explicit slug is used as-is; a derived one is
// retried with a random suffix while taken.
func (s *Service) CreateOrganization(ctx context.Context, p OrganizationParams) (*Registered, error) {
	email, name, err := validateAccountBasics(p.Email, p.Name)
	if err != nil {
		return nil, err
	}
	explicit := strings.TrimSpace(p.Slug) != ""
	var handle string
	if explicit {
		if handle, err = slug.Validate(p.Slug); err != nil {
			return nil, err
		}
	} else {
		handle = slug.FromName(name)
	}
	if exists, err := s.store.OrganizationNameExists(ctx, name); err != nil {
		return nil, err
	} else if exists {
		return nil, apperr.ErrDuplicateName
	}

	base := handle
	for attempt := 1; ; attempt++ {
		acct := &models.Account{
			ID:           uuid.New(),
			Kind:         models.KindOrganization,
			Slug:         handle,
			Email:        email,
			PasswordHash: p.PasswordHash,
			Name:         name,
			Profile:      p.Profile,
		}
		err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			if exists, err := tx.OrganizationNameExists(ctx, name); err != nil {
				return err
			} else if exists {
				return apperr.ErrDuplicateName
			}
			if err := tx.ReserveSlug(ctx, handle, acct.ID, acct.Kind); err != nil {
				return err
			}
			return tx.InsertAccount(ctx, acct)
		})
		if err == nil {
			s.logger.Info("organization registered", zap.String("id", acct.ID.String()), zap.String("slug", handle))
			return &Registered{ID: acct.ID, Slug: handle}, nil
		}
		if explicit || !errors.Is(err, apperr.ErrSlugTaken) || attempt >= s.slugAttempts {
			s.logFailure("create organization", err, zap.String("slug", handle), zap.Int("attempt", attempt))
			return nil, err
		}
		if handle, err = slug.WithSuffix(base); err != nil {
			return nil, apperr.Internal("generate slug", err)
		}
	}
}

func (s *Service) logFailure(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if apperr.KindOf(err) == apperr.KindInternal {
		s.logger.Error(op+" failed", fields...)
		return
	}
	s.logger.Debug(op+" rejected", fields...)
}

// publish best-effort broadcasts acct's committed counters.
func (s *Service) publish(ctx context.Context, acct *models.Account) {
	if s.publisher == nil || acct == nil {
		return
	}
	update := models.CounterUpdate{
		AccountID:   acct.ID,
		Slug:        acct.Slug,
		Kind:        acct.Kind,
		EventCount:  acct.EventCount,
		MemberCount: acct.MemberCount,
		At:          s.now(),
	}
	if err := s.publisher.PublishCounter(ctx, update); err != nil {
		s.logger.Warn("publish counter update failed", zap.String("account_id", acct.ID.String()), zap.Error(err))
	}
}
