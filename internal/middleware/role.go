package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joydrop/backend/internal/apperr"
	"github.com/joydrop/backend/pkg/response"
)

// Admins is the set of operator emails allowed to act on any account.
type Admins map[string]struct{}

// ParseAdmins reads a comma-separated email list.
func ParseAdmins(csv string) Admins {
	return NewAdmins(strings.Split(csv, ",")...)
}

// NewAdmins builds the set from emails, ignoring blanks and case.
func NewAdmins(emails ...string) Admins {
	a := make(Admins)
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			a[e] = struct{}{}
		}
	}
	return a
}

// IsAdmin reports whether the authenticated account is an admin.
func (a Admins) IsAdmin(c *gin.Context) bool {
	v, _ := c.Get(ContextAccountEmail)
	email, _ := v.(string)
	_, ok := a[strings.ToLower(email)]
	return ok
}

// RequireSelfOrAdmin allows the request when the :param path value is the
// authenticated account, or when the caller is an admin.
func RequireSelfOrAdmin(param string, admins Admins) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := AccountID(c)
		if !ok {
			response.Unauthorized(c, "missing account context")
			c.Abort()
			return
		}
		if admins.IsAdmin(c) {
			c.Next()
			return
		}
		target, err := uuid.Parse(c.Param(param))
		if err != nil || target != id {
			response.Error(c, apperr.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin allows only admin callers.
func RequireAdmin(admins Admins) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := AccountID(c); !ok {
			response.Unauthorized(c, "missing account context")
			c.Abort()
			return
		}
		if !admins.IsAdmin(c) {
			response.Error(c, apperr.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
