// Package leaderboard serves rankings and platform totals.
package leaderboard

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/joydrop/backend/internal/aggregation"
	"github.com/joydrop/backend/pkg/response"
)

// Handler handles leaderboard HTTP endpoints.
type Handler struct {
	svc *aggregation.Service
}

// NewHandler creates a leaderboard handler.
func NewHandler(svc *aggregation.Service) *Handler {
	return &Handler{svc: svc}
}

// Leaderboard handles GET /leaderboards?type=individual|organization&limit=.
func (h *Handler) Leaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.svc.Leaderboard(c.Request.Context(), aggregation.ParseKind(c.Query("type")), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Stats handles GET /stats.
func (h *Handler) Stats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, st)
}

// Map handles GET /map?limit=.
func (h *Handler) Map(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	points, err := h.svc.MapPoints(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, points)
}
