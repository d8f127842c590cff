package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joydrop/backend/internal/auth"
	"github.com/joydrop/backend/internal/models"
	"github.com/joydrop/backend/pkg/response"
)

const (
	// ContextAccountID is the key for the account ID in gin context.
	ContextAccountID = "account_id"
	// ContextAccountKind is the key for the account kind in gin context.
	ContextAccountKind = "account_kind"
	// ContextAccountEmail is the key for the account email in gin context.
	ContextAccountEmail = "account_email"
)

// JWT returns a middleware that validates JWT and sets account claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextAccountID, claims.AccountID)
		c.Set(ContextAccountKind, claims.Kind)
		c.Set(ContextAccountEmail, claims.Email)
		c.Next()
	}
}

// AccountID returns the authenticated account, if any.
func AccountID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextAccountID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// AccountKind returns the authenticated account's kind.
func AccountKind(c *gin.Context) models.AccountKind {
	k, _ := c.Get(ContextAccountKind)
	kind, _ := k.(models.AccountKind)
	return kind
}
