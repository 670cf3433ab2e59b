package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/sentra-auth/sentra/internal/app"
	"github.com/sentra-auth/sentra/internal/auth"
	"github.com/sentra-auth/sentra/internal/observability"
	"github.com/sentra-auth/sentra/internal/rbac"
	"github.com/sentra-auth/sentra/internal/users"
	"github.com/sentra-auth/sentra/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if err := app.MigrateDB(cfg, logger); err != nil {
		logger.Error("migrate database", slog.Any("error", err))
		os.Exit(1)
	}

	dbpool, err := app.ConnectDB(ctx, cfg)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	usersRepo := users.NewRepository(dbpool)
	sessionRepo := auth.NewRepository(dbpool)
	rbacRepo := rbac.NewRepository(dbpool)

	permsCache := rbac.NewPermissionsCache(redisClient, cfg.PermissionsCacheTTL)
	rbacService := rbac.NewService(rbacRepo, permsCache)

	issuer := auth.NewTokenIssuer(cfg.JWTSecret)
	authService := auth.NewService(usersRepo, sessionRepo, issuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	usersService := users.NewService(usersRepo, rbacService, sessionRepo)

	evaluator := rbac.NewEvaluator(rbacRepo)
	gate := rbac.Gate{Evaluator: evaluator, Logger: logger, Metrics: metrics}
	authenticator := auth.Authenticator{Service: authService, Logger: logger, Metrics: metrics}

	authHandler := auth.NewHandler(logger, authService)
	usersHandler := users.NewHandler(logger, usersService)
	adminHandler := rbac.NewAdminHandler(logger, rbacService)
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Authenticator:      authenticator,
		Gate:               gate,
		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		AdminHandler:       adminHandler,
		PermissionsHandler: permissionsHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
