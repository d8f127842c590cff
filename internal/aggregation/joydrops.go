package aggregation

import (
	"context"
	"errors"
	"net/mail"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joydrop/backend/internal/apperr"
	"github.com/joydrop/backend/internal/models"
	"github.com/joydrop/backend/internal/slug"
	"github.com/joydrop/backend/internal/store"
)

// LogResult describes a committed joydrop.
type LogResult struct {
	Joydrop             models.Joydrop `json:"joydrop"`
	IndividualCount     int64          `json:"individual_count"`
	OrganizationUpdated bool           `json:"organization_updated"`
	OrganizationCount   *int64         `json:"organization_count,omitempty"`
}

// EmailLogParams are the inputs for LogEventByEmail.
type EmailLogParams struct {
	Email    string
	Metadata models.JoydropMetadata
	// PasswordHash supplies the credential of an individual created on the
	// fly. Nil leaves the account without a usable password.
	PasswordHash func() (string, error)
}

// EmailLogResult is a LogResult plus the individual it was credited to.
type EmailLogResult struct {
	LogResult
	IndividualID uuid.UUID `json:"individual_id"`
	Slug         string    `json:"slug"`
	Created      bool      `json:"created"`
}

// logged carries what a logging transaction committed, for publishing.
type logged struct {
	res LogResult
	ind *models.Account
	org *models.Account
}

var nameSeparators = regexp.MustCompile(`[._-]+`)

func validateMetadata(meta models.JoydropMetadata) (models.JoydropMetadata, error) {
	meta.URL = strings.TrimSpace(meta.URL)
	meta.Comment = strings.TrimSpace(meta.Comment)
	if len(meta.URL) > MaxURLLength {
		return meta, apperr.Invalid("url too long")
	}
	if meta.URL != "" {
		u, err := url.Parse(meta.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return meta, apperr.Invalid("url must be an absolute http(s) URL")
		}
	}
	if len(meta.Comment) > MaxCommentLength {
		return meta, apperr.Invalid("comment too long")
	}
	if loc := meta.Location; loc != nil {
		if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
			return meta, apperr.Invalid("location out of range")
		}
	}
	meta.City = strings.TrimSpace(meta.City)
	meta.StateProvince = strings.TrimSpace(meta.StateProvince)
	meta.Country = strings.TrimSpace(meta.Country)
	if len(meta.City) > MaxPlaceLength || len(meta.StateProvince) > MaxPlaceLength || len(meta.Country) > MaxPlaceLength {
		return meta, apperr.Invalid("place names must be at most 255 characters")
	}
	return meta, nil
}

// placeFor fills empty place fields from the actor's profile.
func placeFor(meta models.Place, p models.Profile) models.Place {
	if meta.City == "" {
		meta.City = p.City
	}
	if meta.StateProvince == "" {
		meta.StateProvince = p.StateProvince
	}
	if meta.Country == "" {
		meta.Country = p.Country
	}
	return meta
}

// LogEvent appends a joydrop for individualID and, in the same transaction,
// increments the individual's count and the count of the organization the
// individual belongs to at logging time.
//
// Retrying after an ambiguous failure may double count.
func (s *Service) LogEvent(ctx context.Context, individualID uuid.UUID, meta models.JoydropMetadata) (*LogResult, error) {
	meta, err := validateMetadata(meta)
	if err != nil {
		return nil, err
	}

	var out logged
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = logInTx(ctx, tx, individualID, meta)
		return err
	})
	if err != nil {
		s.logFailure("log joydrop", err, zap.String("individual_id", individualID.String()))
		return nil, err
	}
	s.announce(ctx, out)
	return &out.res, nil
}

// LogEventByEmail credits a joydrop to the individual registered under email,
// creating that individual first when none exists. A created individual is
// named after the email's local part and gets a slug derived from it, retried
// with a random suffix while taken. Creation and the first joydrop commit
// together.
func (s *Service) LogEventByEmail(ctx context.Context, p EmailLogParams) (*EmailLogResult, error) {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, apperr.Invalid("invalid email")
	}
	meta, err := validateMetadata(p.Metadata)
	if err != nil {
		return nil, err
	}

	acct, err := s.store.GetAccountByEmail(ctx, email)
	switch {
	case err == nil:
		return s.logForExisting(ctx, acct, meta)
	case apperr.KindOf(err) != apperr.KindNotFound:
		return nil, err
	}

	res, err := s.createAndLog(ctx, email, meta, p.PasswordHash)
	if errors.Is(err, apperr.ErrEmailTaken) {
		// A concurrent request registered the email first.
		acct, err := s.store.GetAccountByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		return s.logForExisting(ctx, acct, meta)
	}
	return res, err
}

func (s *Service) logForExisting(ctx context.Context, acct *models.Account, meta models.JoydropMetadata) (*EmailLogResult, error) {
	if !acct.IsIndividual() {
		return nil, &apperr.Error{Kind: apperr.KindConflict, Code: apperr.CodeEmailTaken, Message: "email belongs to an organization"}
	}
	res, err := s.LogEvent(ctx, acct.ID, meta)
	if err != nil {
		return nil, err
	}
	return &EmailLogResult{LogResult: *res, IndividualID: acct.ID, Slug: acct.Slug}, nil
}

func (s *Service) createAndLog(ctx context.Context, email string, meta models.JoydropMetadata, hashFn func() (string, error)) (*EmailLogResult, error) {
	local, _, _ := strings.Cut(email, "@")
	name := strings.TrimSpace(nameSeparators.ReplaceAllString(local, " "))
	if name == "" {
		name = "Friend"
	}
	if len(name) > MaxNameLength {
		name = name[:MaxNameLength]
	}
	var hash string
	if hashFn != nil {
		h, err := hashFn()
		if err != nil {
			return nil, apperr.Internal("hash temporary password", err)
		}
		hash = h
	}

	base := slug.Derive(local, "user")
	handle := base
	for attempt := 1; ; attempt++ {
		acct := &models.Account{
			ID:           uuid.New(),
			Kind:         models.KindIndividual,
			Slug:         handle,
			Email:        email,
			PasswordHash: hash,
			Name:         name,
			Profile: models.Profile{
				City:          meta.City,
				StateProvince: meta.StateProvince,
				Country:       meta.Country,
				ContactEmail:  email,
			},
		}
		var out logged
		err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			if err := tx.ReserveSlug(ctx, handle, acct.ID, acct.Kind); err != nil {
				return err
			}
			if err := tx.InsertAccount(ctx, acct); err != nil {
				return err
			}
			var err error
			out, err = logInTx(ctx, tx, acct.ID, meta)
			return err
		})
		if err == nil {
			s.logger.Info("individual registered from joydrop",
				zap.String("id", acct.ID.String()), zap.String("slug", handle))
			s.announce(ctx, out)
			return &EmailLogResult{LogResult: out.res, IndividualID: acct.ID, Slug: handle, Created: true}, nil
		}
		if !errors.Is(err, apperr.ErrSlugTaken) || attempt >= s.slugAttempts {
			s.logFailure("log joydrop by email", err, zap.String("slug", handle), zap.Int("attempt", attempt))
			return nil, err
		}
		if handle, err = slug.WithSuffix(base); err != nil {
			return nil, apperr.Internal("generate slug", err)
		}
	}
}

// logInTx writes one joydrop and its counter increments inside tx. The
// individual row is locked before the organization row is touched.
func logInTx(ctx context.Context, tx store.Tx, individualID uuid.UUID, meta models.JoydropMetadata) (logged, error) {
	var out logged
	a, err := tx.LockAccount(ctx, individualID)
	if err != nil {
		return out, notFoundAs(err, "individual")
	}
	if !a.IsIndividual() {
		return out, apperr.NotFound("individual")
	}
	out.ind = a

	j := models.Joydrop{
		ID:             uuid.New(),
		ActorID:        a.ID,
		OrganizationID: a.OrganizationID,
		URL:            meta.URL,
		Comment:        meta.Comment,
		Location:       meta.Location,
		Place:          placeFor(meta.Place, a.Profile),
	}
	if err := tx.InsertJoydrop(ctx, &j); err != nil {
		return out, err
	}
	out.res.Joydrop = j

	n, err := tx.IncrementEventCount(ctx, a.ID, 1)
	if err != nil {
		return out, err
	}
	out.ind.EventCount = n
	out.res.IndividualCount = n

	if a.OrganizationID == nil {
		return out, nil
	}
	orgCount, err := tx.IncrementEventCount(ctx, *a.OrganizationID, 1)
	if err != nil {
		return out, err
	}
	out.res.OrganizationUpdated = true
	out.res.OrganizationCount = &orgCount
	out.org = &models.Account{ID: *a.OrganizationID, Kind: models.KindOrganization, EventCount: orgCount}
	return out, nil
}

// announce logs and publishes a committed joydrop.
func (s *Service) announce(ctx context.Context, out logged) {
	s.logger.Info("joydrop logged",
		zap.String("individual_id", out.ind.ID.String()),
		zap.Int64("individual_count", out.res.IndividualCount),
		zap.Bool("organization_updated", out.res.OrganizationUpdated))
	s.publish(ctx, out.ind)
	if out.org != nil {
		// Slug and member count are not read inside the transaction.
		if full, err := s.store.GetAccount(ctx, out.org.ID); err == nil {
			s.publish(ctx, full)
		}
	}
}

// notFoundAs renames a NotFound error after the entity the caller asked for.
func notFoundAs(err error, what string) error {
	if apperr.KindOf(err) == apperr.KindNotFound {
		return apperr.NotFound(what)
	}
	return err
}
