// Package organizations serves membership endpoints.
package organizations

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joydrop/backend/internal/aggregation"
	"github.com/joydrop/backend/pkg/response"
)

// Handler handles organization HTTP endpoints.
type Handler struct {
	svc *aggregation.Service
}

// NewHandler creates an organizations handler.
func NewHandler(svc *aggregation.Service) *Handler {
	return &Handler{svc: svc}
}

// AddMemberRequest is the body for POST /organizations/:id/members. Exactly
// one of IndividualEmail or IndividualID identifies the individual.
type AddMemberRequest struct {
	IndividualEmail string `json:"individual_email"`
	IndividualID    string `json:"individual_id"`
}

func orgID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return uuid.Nil, false
	}
	return id, true
}

// AddMember handles POST /organizations/:id/members. Requires JWT (the
// organization itself or an admin).
func (h *Handler) AddMember(c *gin.Context) {
	org, ok := orgID(c)
	if !ok {
		return
	}
	var body AddMemberRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	email, rawID := strings.TrimSpace(body.IndividualEmail), strings.TrimSpace(body.IndividualID)
	if (email == "") == (rawID == "") {
		response.BadRequest(c, "one of individual_email or individual_id required")
		return
	}

	var (
		res *aggregation.MemberResult
		err error
	)
	if email != "" {
		res, err = h.svc.AddMemberByEmail(c.Request.Context(), org, email)
	} else {
		ind, perr := uuid.Parse(rawID)
		if perr != nil {
			response.BadRequest(c, "invalid individual_id")
			return
		}
		res, err = h.svc.AddMember(c.Request.Context(), org, ind)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// ListMembers handles GET /organizations/:id/members.
func (h *Handler) ListMembers(c *gin.Context) {
	org, ok := orgID(c)
	if !ok {
		return
	}
	roster, err := h.svc.OrganizationMembers(c.Request.Context(), org)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, roster)
}

// ListMemberships handles GET /organizations/:id/memberships.
func (h *Handler) ListMemberships(c *gin.Context) {
	org, ok := orgID(c)
	if !ok {
		return
	}
	list, err := h.svc.Memberships(c.Request.Context(), org)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}
