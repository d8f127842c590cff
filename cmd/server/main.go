// Package main runs the Joydrop HTTP server with live counters and graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/joydrop/backend/config"
	"github.com/joydrop/backend/internal/aggregation"
	"github.com/joydrop/backend/internal/auth"
	"github.com/joydrop/backend/internal/middleware"
	"github.com/joydrop/backend/internal/realtime"
	"github.com/joydrop/backend/internal/server"
	"github.com/joydrop/backend/internal/store"
	"github.com/joydrop/backend/internal/store/memory"
	"github.com/joydrop/backend/internal/store/postgres"
	"github.com/joydrop/backend/pkg/database"
	"github.com/joydrop/backend/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx := context.Background()
	var checks []func(context.Context) error

	var st store.Store
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		st = memory.New()
	default:
		pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool, logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		st = postgres.New(pool)
		checks = append(checks, pool.Ping)
	}

	var bus realtime.Bus
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		bus = realtime.NewRedisPubSub(rdb.Client, logger)
		checks = append(checks, rdb.Ready)
	}
	hub := realtime.NewHub(logger, bus)

	svc := aggregation.NewService(st, aggregation.Options{
		Publisher:           hub,
		Logger:              logger.Named("aggregation"),
		MaxLeaderboardLimit: cfg.Aggregation.MaxLeaderboardLimit,
		SlugAttempts:        cfg.Aggregation.SlugAttempts,
	})

	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(server.Deps{
		Service:            svc,
		JWT:                auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours),
		Hub:                hub,
		Logger:             logger,
		Admins:             middleware.NewAdmins(cfg.Server.AdminEmails...),
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		SlugChecksPerMin:   cfg.Server.SlugChecksPerMin,
		Ready: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			for _, check := range checks {
				if err := check(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, _ := config.Build()
	return logger
}
