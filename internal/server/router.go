// Package server assembles the HTTP router.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/joydrop/backend/internal/accounts"
	"github.com/joydrop/backend/internal/aggregation"
	"github.com/joydrop/backend/internal/auth"
	"github.com/joydrop/backend/internal/joydrops"
	"github.com/joydrop/backend/internal/leaderboard"
	"github.com/joydrop/backend/internal/middleware"
	"github.com/joydrop/backend/internal/organizations"
	"github.com/joydrop/backend/internal/realtime"
	"github.com/joydrop/backend/pkg/response"
)

// Deps are the collaborators the router needs.
type Deps struct {
	Service *aggregation.Service
	JWT     *auth.JWTService
	Hub     *realtime.Hub
	Logger  *zap.Logger
	Admins  middleware.Admins

	CORSAllowedOrigins string
	SlugChecksPerMin   float64
	// HashCost overrides the bcrypt cost; zero keeps the default.
	HashCost int
	// Ready reports backing-store health for GET /health.
	Ready func(ctx context.Context) error
}

// NewRouter returns the gin engine serving the public API.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(d.CORSAllowedOrigins))
	r.Use(middleware.Logger(d.Logger))

	r.GET("/health", func(c *gin.Context) {
		if d.Ready != nil {
			if err := d.Ready(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, response.Body{Success: false, Error: "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	accountHandler := accounts.NewHandler(d.Service, d.JWT, d.Logger)
	if d.HashCost > 0 {
		accountHandler.WithHashCost(d.HashCost)
	}
	authHandler := auth.NewHandler(d.Service, d.JWT, d.Logger)
	joydropHandler := joydrops.NewHandler(d.Service)
	if d.HashCost > 0 {
		joydropHandler.WithHashCost(d.HashCost)
	}
	orgHandler := organizations.NewHandler(d.Service)
	boardHandler := leaderboard.NewHandler(d.Service)

	jwtMW := middleware.JWT(d.JWT)
	perMin := d.SlugChecksPerMin
	if perMin <= 0 {
		perMin = 60
	}

	r.POST("/auth/login", authHandler.Login)
	r.POST("/slugs/check", middleware.RateLimiter(perMin, int(perMin)), accountHandler.CheckSlug)
	r.POST("/individuals", accountHandler.RegisterIndividual)
	r.POST("/organizations", accountHandler.RegisterOrganization)
	r.GET("/accounts/:slug", accountHandler.Profile)
	r.GET("/me", jwtMW, accountHandler.Me)
	r.POST("/me/password", jwtMW, accountHandler.ChangePassword)

	r.GET("/individuals/:id/joydrops", joydropHandler.List)
	r.POST("/individuals/:id/joydrops", jwtMW, middleware.RequireSelfOrAdmin("id", d.Admins), joydropHandler.Log)
	r.POST("/joydrops", jwtMW, middleware.RequireAdmin(d.Admins), joydropHandler.LogByEmail)

	r.GET("/organizations/:id/members", orgHandler.ListMembers)
	r.GET("/organizations/:id/memberships", orgHandler.ListMemberships)
	r.POST("/organizations/:id/members", jwtMW, middleware.RequireSelfOrAdmin("id", d.Admins), orgHandler.AddMember)

	r.GET("/leaderboards", boardHandler.Leaderboard)
	r.GET("/stats", boardHandler.Stats)
	r.GET("/map", boardHandler.Map)

	if d.Hub != nil {
		r.GET("/ws/counters/:slug", realtime.ServeCounter(d.Hub, d.Service.AccountBySlug, d.Logger))
	}
	return r
}
