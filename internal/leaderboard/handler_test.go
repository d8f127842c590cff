package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joydrop/backend/internal/aggregation"
	"github.com/joydrop/backend/internal/models"
	"github.com/joydrop/backend/internal/store/memory"
)

func get(t *testing.T, r http.Handler, path string, out any) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, w.Code)
	env := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func TestLeaderboardStatsAndMap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	svc := aggregation.NewService(memory.New(), aggregation.Options{})
	for i := 0; i < 12; i++ {
		reg, err := svc.CreateIndividual(ctx, aggregation.IndividualParams{
			Email: fmt.Sprintf("u%d@example.com", i), Name: fmt.Sprintf("User %d", i), Slug: fmt.Sprintf("user-%d", i),
		})
		require.NoError(t, err)
		for j := 0; j < i; j++ {
			_, err := svc.LogEvent(ctx, reg.ID, models.JoydropMetadata{Location: &models.GeoPoint{Latitude: 10, Longitude: 20}})
			require.NoError(t, err)
		}
	}
	h := NewHandler(svc)
	r := gin.New()
	r.GET("/leaderboards", h.Leaderboard)
	r.GET("/stats", h.Stats)
	r.GET("/map", h.Map)

	var board []models.LeaderboardEntry
	get(t, r, "/leaderboards", &board)
	require.Len(t, board, aggregation.DefaultLeaderboardLimit)
	assert.Equal(t, "user-11", board[0].Slug)
	assert.Equal(t, int64(11), board[0].Count)

	get(t, r, "/leaderboards?type=individual&limit=3", &board)
	assert.Len(t, board, 3)
	get(t, r, "/leaderboards?type=organization", &board)
	assert.Empty(t, board)

	var stats models.Stats
	get(t, r, "/stats", &stats)
	assert.Equal(t, int64(66), stats.TotalJoydrops)
	assert.Equal(t, int64(12), stats.TotalIndividuals)

	var points []models.MapPoint
	get(t, r, "/map?limit=5", &points)
	assert.Len(t, points, 5)
}
