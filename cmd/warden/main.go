package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warden-web/warden/internal/app"
	"github.com/warden-web/warden/internal/auth"
	"github.com/warden-web/warden/internal/csrf"
	"github.com/warden-web/warden/internal/platform/cache"
	"github.com/warden-web/warden/internal/platform/db"
	"github.com/warden-web/warden/internal/session"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)

	sessionStore := session.NewRedisStore(redisClient, session.DefaultSessionField, cfg.SessionMaxAge)
	sessionManager, err := session.NewManager(session.ManagerConfig{
		Logger:         logger,
		Store:          sessionStore,
		Providers:      []session.Provider{authService.Provider()},
		CookieName:     cfg.SessionCookie,
		MaxAge:         cfg.SessionMaxAge,
		UpdateAge:      cfg.SessionUpdateAge,
		InsecureCookie: !cfg.IsProduction(),
	})
	if err != nil {
		logger.Error("init session manager", slog.Any("error", err))
		os.Exit(1)
	}

	csrfService, err := csrf.NewService(csrf.ServiceConfig{Secret: cfg.CSRFSecret})
	if err != nil {
		logger.Error("init csrf service", slog.Any("error", err))
		os.Exit(1)
	}

	authHandler := auth.NewHandler(logger, authService, sessionManager)

	router, err := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFService:    csrfService,
		AuthHandler:    authHandler,
	})
	if err != nil {
		logger.Error("build router", slog.Any("error", err))
		os.Exit(1)
	}

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
