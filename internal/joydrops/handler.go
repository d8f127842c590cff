// Package joydrops serves the event log endpoints.
package joydrops

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	nanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/joydrop/backend/internal/aggregation"
	"github.com/joydrop/backend/internal/apperr"
	"github.com/joydrop/backend/internal/models"
	"github.com/joydrop/backend/pkg/response"
	"github.com/joydrop/backend/pkg/utils"
)

// Handler handles joydrop HTTP endpoints.
type Handler struct {
	svc      *aggregation.Service
	hashCost int
}

// NewHandler creates a joydrops handler.
func NewHandler(svc *aggregation.Service) *Handler {
	return &Handler{svc: svc, hashCost: bcrypt.DefaultCost}
}

// WithHashCost overrides the bcrypt cost for temporary passwords.
func (h *Handler) WithHashCost(cost int) *Handler {
	h.hashCost = cost
	return h
}

// LogRequest is the body for POST /individuals/:id/joydrops. All fields are optional.
type LogRequest struct {
	URL       string   `json:"url"`
	Comment   string   `json:"comment"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	models.Place
}

// LogByEmailRequest is the body for POST /joydrops.
type LogByEmailRequest struct {
	Email string `json:"email" binding:"required"`
	LogRequest
}

func (r LogRequest) metadata() (models.JoydropMetadata, error) {
	meta := models.JoydropMetadata{URL: r.URL, Comment: r.Comment, Place: r.Place}
	switch {
	case r.Latitude != nil && r.Longitude != nil:
		meta.Location = &models.GeoPoint{Latitude: *r.Latitude, Longitude: *r.Longitude}
	case r.Latitude != nil || r.Longitude != nil:
		return meta, apperr.Invalid("latitude and longitude must be given together")
	}
	return meta, nil
}

// Log handles POST /individuals/:id/joydrops. Requires JWT (self or admin).
func (h *Handler) Log(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid individual id")
		return
	}
	var req LogRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	meta, err := req.metadata()
	if err != nil {
		response.Error(c, err)
		return
	}
	res, err := h.svc.LogEvent(c.Request.Context(), id, meta)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// LogByEmail handles POST /joydrops. Admin only: credits the individual with
// the given email, registering one with a temporary password if needed.
func (h *Handler) LogByEmail(c *gin.Context) {
	var req LogByEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	meta, err := req.metadata()
	if err != nil {
		response.Error(c, err)
		return
	}
	res, err := h.svc.LogEventByEmail(c.Request.Context(), aggregation.EmailLogParams{
		Email:        req.Email,
		Metadata:     meta,
		PasswordHash: h.temporaryPassword,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

func (h *Handler) temporaryPassword() (string, error) {
	pw, err := nanoid.New()
	if err != nil {
		return "", err
	}
	return utils.HashPasswordCost(pw, h.hashCost)
}

// List handles GET /individuals/:id/joydrops?limit=.
func (h *Handler) List(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid individual id")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.svc.Joydrops(c.Request.Context(), id, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}
