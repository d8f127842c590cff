package auth

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/joydrop/backend/internal/apperr"
	"github.com/joydrop/backend/internal/models"
	"github.com/joydrop/backend/pkg/response"
	"github.com/joydrop/backend/pkg/utils"
)

// AccountLookup finds accounts by login email.
type AccountLookup interface {
	AccountByEmail(ctx context.Context, email string) (*models.Account, error)
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token   string               `json:"token"`
	Account models.AccountPublic `json:"account"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	accounts AccountLookup
	jwt      *JWTService
	logger   *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(accounts AccountLookup, jwt *JWTService, logger *zap.Logger) *Handler {
	return &Handler{accounts: accounts, jwt: jwt, logger: logger}
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	acct, err := h.accounts.AccountByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindNotFound {
			response.Error(c, err)
			return
		}
		response.Unauthorized(c, "invalid email or password")
		return
	}
	if !utils.CheckPassword(req.Password, acct.PasswordHash) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(acct.ID, acct.Kind, acct.Email)
	if err != nil {
		h.logger.Error("generate token", zap.Error(err))
		response.Error(c, apperr.Internal("generate token", err))
		return
	}
	response.OK(c, TokenResponse{Token: token, Account: acct.ToPublic()})
}
