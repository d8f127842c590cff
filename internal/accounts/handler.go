// Package accounts serves registration, slug checks and public profiles.
package accounts

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/joydrop/backend/internal/aggregation"
	"github.com/joydrop/backend/internal/apperr"
	"github.com/joydrop/backend/internal/auth"
	"github.com/joydrop/backend/internal/middleware"
	"github.com/joydrop/backend/internal/models"
	"github.com/joydrop/backend/pkg/response"
	"github.com/joydrop/backend/pkg/utils"
)

// Handler handles account HTTP endpoints.
type Handler struct {
	svc      *aggregation.Service
	jwt      *auth.JWTService
	logger   *zap.Logger
	hashCost int
}

// NewHandler creates an accounts handler.
func NewHandler(svc *aggregation.Service, jwt *auth.JWTService, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, jwt: jwt, logger: logger, hashCost: bcrypt.DefaultCost}
}

// WithHashCost overrides the bcrypt cost for new passwords.
func (h *Handler) WithHashCost(cost int) *Handler {
	h.hashCost = cost
	return h
}

// RegisterIndividualRequest is the body for POST /individuals.
type RegisterIndividualRequest struct {
	Email          string `json:"email" binding:"required"`
	Password       string `json:"password" binding:"required,min=6"`
	Name           string `json:"name" binding:"required"`
	Slug           string `json:"slug" binding:"required"`
	OrganizationID string `json:"organization_id"`
	ConsentToJoin  bool   `json:"consent_to_join_org"`
	models.Profile
}

// RegisterOrganizationRequest is the body for POST /organizations. Slug is
// optional and derived from Name when empty.
type RegisterOrganizationRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
	Name     string `json:"name" binding:"required"`
	Slug     string `json:"slug"`
	models.Profile
}

// CheckSlugRequest is the body for POST /slugs/check.
type CheckSlugRequest struct {
	Slug string `json:"slug" binding:"required"`
}

// ChangePasswordRequest is the body for POST /me/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=6"`
}

// RegisteredResponse is returned by both registration endpoints.
type RegisteredResponse struct {
	aggregation.Registered
	Token string `json:"token"`
}

// RegisterIndividual handles POST /individuals.
func (h *Handler) RegisterIndividual(c *gin.Context) {
	var req RegisterIndividualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	var orgID *uuid.UUID
	if s := strings.TrimSpace(req.OrganizationID); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid organization_id")
			return
		}
		orgID = &id
	}
	hash, ok := h.hashPassword(c, req.Password)
	if !ok {
		return
	}

	reg, err := h.svc.CreateIndividual(c.Request.Context(), aggregation.IndividualParams{
		Email:          req.Email,
		PasswordHash:   hash,
		Name:           req.Name,
		Slug:           req.Slug,
		OrganizationID: orgID,
		ConsentToJoin:  req.ConsentToJoin,
		Profile:        req.Profile,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	h.created(c, reg, models.KindIndividual, req.Email)
}

// RegisterOrganization handles POST /organizations.
func (h *Handler) RegisterOrganization(c *gin.Context) {
	var req RegisterOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	hash, ok := h.hashPassword(c, req.Password)
	if !ok {
		return
	}

	reg, err := h.svc.CreateOrganization(c.Request.Context(), aggregation.OrganizationParams{
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Slug:         req.Slug,
		Profile:      req.Profile,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	h.created(c, reg, models.KindOrganization, req.Email)
}

func (h *Handler) hashPassword(c *gin.Context, password string) (string, bool) {
	hash, err := utils.HashPasswordCost(password, h.hashCost)
	switch {
	case errors.Is(err, bcrypt.ErrPasswordTooLong):
		response.Error(c, apperr.Invalid("password too long"))
		return "", false
	case err != nil:
		h.logger.Error("hash password", zap.Error(err))
		response.Error(c, apperr.Internal("hash password", err))
		return "", false
	}
	return hash, true
}

func (h *Handler) created(c *gin.Context, reg *aggregation.Registered, kind models.AccountKind, email string) {
	token, err := h.jwt.Generate(reg.ID, kind, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		// The account exists; the client can log in instead.
		h.logger.Warn("generate token after registration", zap.Error(err))
	}
	response.Created(c, RegisteredResponse{Registered: *reg, Token: token})
}

// CheckSlug handles POST /slugs/check.
func (h *Handler) CheckSlug(c *gin.Context) {
	var req CheckSlugRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "slug required")
		return
	}
	res, err := h.svc.CheckSlug(c.Request.Context(), req.Slug)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// Profile handles GET /accounts/:slug.
func (h *Handler) Profile(c *gin.Context) {
	p, err := h.svc.Profile(c.Request.Context(), c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, p)
}

// Me handles GET /me. Requires JWT.
func (h *Handler) Me(c *gin.Context) {
	id, _ := middleware.AccountID(c)
	a, err := h.svc.Account(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, a)
}

// ChangePassword handles POST /me/password. Requires JWT and the current password.
func (h *Handler) ChangePassword(c *gin.Context) {
	id, _ := middleware.AccountID(c)
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	a, err := h.svc.Account(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !utils.CheckPassword(req.CurrentPassword, a.PasswordHash) {
		response.Unauthorized(c, "current password is incorrect")
		return
	}
	hash, ok := h.hashPassword(c, req.NewPassword)
	if !ok {
		return
	}
	if err := h.svc.ChangePassword(c.Request.Context(), id, hash); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "password changed"})
}
