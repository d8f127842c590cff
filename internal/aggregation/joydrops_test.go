package aggregation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joydrop/backend/internal/apperr"
	"github.com/joydrop/backend/internal/models"
	"github.com/joydrop/backend/internal/store/memory"
)

func TestLogEventByEmailRegistersUnknownIndividual(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	hashed := 0
	params := EmailLogParams{
		Email:    " Jane.Doe@Example.com ",
		Metadata: models.JoydropMetadata{Place: models.Place{City: "Boston", Country: "USA"}},
		PasswordHash: func() (string, error) {
			hashed++
			return "temp-hash", nil
		},
	}

	res, err := svc.LogEventByEmail(ctx, params)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "jane-doe", res.Slug)
	assert.Equal(t, int64(1), res.IndividualCount)
	assert.False(t, res.OrganizationUpdated)
	assert.Equal(t, "Boston", res.Joydrop.City)

	a := account(t, st, res.IndividualID)
	assert.Equal(t, models.KindIndividual, a.Kind)
	assert.Equal(t, "jane.doe@example.com", a.Email)
	assert.Equal(t, "jane doe", a.Name)
	assert.Equal(t, "temp-hash", a.PasswordHash)
	assert.Equal(t, "Boston", a.Profile.City)
	assert.Equal(t, int64(1), a.EventCount)

	again, err := svc.LogEventByEmail(ctx, EmailLogParams{Email: "jane.doe@example.com", PasswordHash: params.PasswordHash})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, res.IndividualID, again.IndividualID)
	assert.Equal(t, int64(2), again.IndividualCount)
	assert.Equal(t, "Boston", again.Joydrop.City, "falls back to the profile")
	assert.Equal(t, 1, hashed)
}

func TestLogEventByEmailCountsForOrganization(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	alice := mustIndividual(t, svc, "alice", true)
	acme := mustOrganization(t, svc, "Acme", "acme")
	mustLog(t, svc, alice, 2)
	_, err := svc.AddMember(ctx, acme, alice)
	require.NoError(t, err)

	res, err := svc.LogEventByEmail(ctx, EmailLogParams{Email: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, alice, res.IndividualID)
	assert.Equal(t, int64(3), res.IndividualCount)
	require.NotNil(t, res.OrganizationCount)
	assert.Equal(t, int64(3), *res.OrganizationCount)
	assert.Equal(t, int64(3), account(t, st, acme).EventCount)
}

func TestLogEventByEmailRetriesTakenSlug(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustIndividual(t, svc, "sam", false)

	res, err := svc.LogEventByEmail(ctx, EmailLogParams{Email: "sam@other.example"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, strings.HasPrefix(res.Slug, "sam-"), res.Slug)
	assert.Len(t, res.Slug, len("sam-")+4)

	strict := NewService(memory.New(), Options{SlugAttempts: 1})
	_, err = strict.CreateIndividual(ctx, IndividualParams{Email: "kim@example.com", Name: "Kim", Slug: "kim"})
	require.NoError(t, err)
	_, err = strict.LogEventByEmail(ctx, EmailLogParams{Email: "kim@other.example"})
	assert.ErrorIs(t, err, apperr.ErrSlugTaken)
}

func TestLogEventByEmailRejections(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	mustOrganization(t, svc, "Acme", "acme")

	_, err := svc.LogEventByEmail(ctx, EmailLogParams{Email: "not-an-email"})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	_, err = svc.LogEventByEmail(ctx, EmailLogParams{Email: "acme@org.example.com"})
	assert.ErrorIs(t, err, apperr.ErrEmailTaken)

	_, err = svc.LogEventByEmail(ctx, EmailLogParams{
		Email:    "new@example.com",
		Metadata: models.JoydropMetadata{URL: "ftp://example.com"},
	})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	_, err = svc.LogEventByEmail(ctx, EmailLogParams{
		Email:        "new@example.com",
		PasswordHash: func() (string, error) { return "", errors.New("no entropy") },
	})
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalAccounts)
	assert.Equal(t, int64(0), stats.TotalJoydrops)
	_, err = st.GetAccountByEmail(ctx, "new@example.com")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestLogEventByEmailRollsBackRegistration(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	st.SetFailpoint(func(op string, _ uuid.UUID) error {
		if op == memory.OpIncrementEventCount {
			return errors.New("injected")
		}
		return nil
	})
	_, err := svc.LogEventByEmail(ctx, EmailLogParams{Email: "lee@example.com"})
	require.Error(t, err)
	st.SetFailpoint(nil)

	_, err = st.GetAccountByEmail(ctx, "lee@example.com")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	taken, err := st.SlugExists(ctx, "lee")
	require.NoError(t, err)
	assert.False(t, taken)

	res, err := svc.LogEventByEmail(ctx, EmailLogParams{Email: "lee@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "lee", res.Slug)
	assert.Equal(t, int64(1), res.IndividualCount)
}

func TestLogEventPlaceFallsBackToProfile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	reg, err := svc.CreateIndividual(ctx, IndividualParams{
		Email: "bo@example.com", Name: "Bo", Slug: "bo",
		Profile: models.Profile{City: "Boston", StateProvince: "MA", Country: "USA"},
	})
	require.NoError(t, err)

	res, err := svc.LogEvent(ctx, reg.ID, models.JoydropMetadata{
		Location: &models.GeoPoint{Latitude: 42.37, Longitude: -71.1},
		Place:    models.Place{City: " Cambridge "},
	})
	require.NoError(t, err)
	assert.Equal(t, models.Place{City: "Cambridge", StateProvince: "MA", Country: "USA"}, res.Joydrop.Place)

	points, err := svc.MapPoints(ctx, 0)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "Cambridge", points[0].City)
	assert.Equal(t, "USA", points[0].Country)

	_, err = svc.LogEvent(ctx, reg.ID, models.JoydropMetadata{Place: models.Place{Country: strings.Repeat("x", MaxPlaceLength+1)}})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func TestChangePassword(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	id := mustIndividual(t, svc, "ana", false)

	require.NoError(t, svc.ChangePassword(ctx, id, "new-hash"))
	assert.Equal(t, "new-hash", account(t, st, id).PasswordHash)

	err := svc.ChangePassword(ctx, uuid.New(), "x")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	st.SetFailpoint(func(op string, _ uuid.UUID) error {
		if op == memory.OpUpdatePassword {
			return errors.New("injected")
		}
		return nil
	})
	require.Error(t, svc.ChangePassword(ctx, id, "other-hash"))
	st.SetFailpoint(nil)
	assert.Equal(t, "new-hash", account(t, st, id).PasswordHash)
}
