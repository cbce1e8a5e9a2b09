package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"helpdesk/internal/auth"
	"helpdesk/internal/config"
	"helpdesk/internal/domain"
	apphttp "helpdesk/internal/http"
	"helpdesk/internal/ratelimit"
	"helpdesk/internal/repository/sqlite"
	"helpdesk/internal/service"
)

const insecureDevSecret = "helpdesk-dev-secret-do-not-use-in-production"

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	secret := strings.TrimSpace(cfg.Auth.JWTSecret)
	if secret == "" {
		logger.Warn("auth jwt secret is not configured, falling back to an insecure development default")
		secret = insecureDevSecret
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	userRepo := sqlite.NewUserRepository(db)
	ticketRepo := sqlite.NewTicketRepository(db)
	commentRepo := sqlite.NewCommentRepository(db)

	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}
	if err := ticketRepo.Init(ctx); err != nil {
		logger.Fatalf("init ticket repository: %v", err)
	}
	if err := commentRepo.Init(ctx); err != nil {
		logger.Fatalf("init comment repository: %v", err)
	}

	userService := service.NewUserService(userRepo)
	ticketService := service.NewTicketService(ticketRepo, commentRepo)

	if err := userService.EnsureUser(ctx, "admin", "admin@helpdesk.com", "admin123", domain.RoleAdmin); err != nil {
		logger.Warnf("seed admin user: %v", err)
	}
	if !cfg.IsProduction() {
		if err := userService.EnsureUser(ctx, "agent", "agent@helpdesk.com", "agent123", domain.RoleAgent); err != nil {
			logger.Warnf("seed agent user: %v", err)
		}
		if err := userService.EnsureUser(ctx, "customer", "customer@helpdesk.com", "customer123", domain.RoleUser); err != nil {
			logger.Warnf("seed customer user: %v", err)
		}
	}

	tokenService := auth.NewTokenService(secret, cfg.TokenTTL())

	limiter := ratelimit.NewLimiter(cfg.RateLimit.Window, cfg.RateLimit.Max)
	limiter.Start(ctx)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	handler := apphttp.NewHandler(
		userService,
		ticketService,
		tokenService,
		limiter,
		logger,
		cfg.IsProduction(),
	)
	handler.RegisterRoutes(router, cfg.CORS.AllowOrigin)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}
