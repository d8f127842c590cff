package organizations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joydrop/backend/internal/aggregation"
	"github.com/joydrop/backend/internal/models"
	"github.com/joydrop/backend/internal/store/memory"
)

func TestAddMemberAndListings(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	svc := aggregation.NewService(memory.New(), aggregation.Options{})
	org, err := svc.CreateOrganization(ctx, aggregation.OrganizationParams{Email: "org@example.com", Name: "Neighbors"})
	require.NoError(t, err)
	ind, err := svc.CreateIndividual(ctx, aggregation.IndividualParams{
		Email: "nia@example.com", Name: "Nia", Slug: "nia", ConsentToJoin: true,
	})
	require.NoError(t, err)
	_, err = svc.LogEvent(ctx, ind.ID, models.JoydropMetadata{})
	require.NoError(t, err)

	h := NewHandler(svc)
	r := gin.New()
	r.POST("/organizations/:id/members", h.AddMember)
	r.GET("/organizations/:id/members", h.ListMembers)
	r.GET("/organizations/:id/memberships", h.ListMemberships)
	base := "/organizations/" + org.ID.String()

	post := func(body string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, base+"/members", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusBadRequest, post(`{"individual_email":"nia@example.com","individual_id":"`+ind.ID.String()+`"}`))
	assert.Equal(t, http.StatusBadRequest, post(`{"individual_id":"nope"}`))
	assert.Equal(t, http.StatusNotFound, post(`{"individual_email":"ghost@example.com"}`))
	assert.Equal(t, http.StatusCreated, post(`{"individual_email":"NIA@example.com"}`))
	assert.Equal(t, http.StatusConflict, post(`{"individual_id":"`+ind.ID.String()+`"}`))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, base+"/memberships", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []models.Membership `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, ind.ID, body.Data[0].IndividualID)
	assert.False(t, body.Data[0].JoinedAt.IsZero())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, base+"/members", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"organization_total":1`)
}
