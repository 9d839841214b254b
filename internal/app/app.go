package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"postboard/internal/config"
	"postboard/internal/http/handler"
	"postboard/internal/http/middleware"
	"postboard/internal/http/router"
	"postboard/internal/observability"
	"postboard/internal/repository"
	"postboard/internal/security"
	"postboard/internal/service"
	"postboard/internal/worker"
)

// App holds the wired process: HTTP server, cleanup sweeper and the
// observability runtime, ready for Run/Shutdown.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Sweeper       *worker.CleanupSweeper
	Observability *observability.Runtime

	redisClient *redis.Client
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, runtime *observability.Runtime) (*App, error) {
	db, err := repository.OpenDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repository.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.WarnContext(ctx, "redis unreachable at startup", "addr", cfg.RedisAddr, "error", err)
	}

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	blacklistRepo := repository.NewBlacklistRepository(db)
	activeRepo := repository.NewActiveTokenRepository(db)
	tokenLogRepo := repository.NewTokenLogRepository(db)

	jwtMgr := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret, cfg.AccessTokenTTL)
	auditSvc := service.NewAuditService(tokenLogRepo, cfg.SuspiciousLoginWindow, cfg.SuspiciousRefreshWindow)
	tokenSvc := service.NewTokenService(jwtMgr, userRepo, sessionRepo, activeRepo, blacklistRepo,
		auditSvc, cfg.RefreshPepper, cfg.RefreshTokenTTL)
	authSvc := service.NewAuthService(userRepo)
	userSvc := service.NewUserService(userRepo)
	postSvc := service.NewPostService(postRepo)
	sessionSvc := service.NewSessionService(sessionRepo)
	limiter := service.NewRateLimiter(redisClient, "ratelimit",
		cfg.RateLimitWindow, cfg.RateLimitMaxRequests, cfg.UsageLogRetention)

	failMode := middleware.FailClosed
	if cfg.RateLimitFailOpen {
		failMode = middleware.FailOpen
	}

	h := router.NewRouter(router.Dependencies{
		AuthHandler:    handler.NewAuthHandler(authSvc, tokenSvc),
		UserHandler:    handler.NewUserHandler(userSvc, sessionSvc, tokenSvc),
		PostHandler:    handler.NewPostHandler(postSvc),
		AdminHandler:   handler.NewAdminHandler(userSvc, tokenSvc, auditSvc),
		JWTManager:     jwtMgr,
		BlacklistRepo:  blacklistRepo,
		UserRepo:       userRepo,
		RateLimit:      middleware.RateLimitMiddleware(limiter, cfg.RateLimitWindow, failMode),
		EnableOTelHTTP: cfg.OTELTracesEnabled,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	sweeper := worker.NewCleanupSweeper(blacklistRepo, activeRepo, sessionRepo, tokenLogRepo,
		limiter, logger, worker.CleanupConfig{
			Interval:           cfg.CleanupInterval,
			BlacklistRetention: cfg.BlacklistRetention,
			UsageLogRetention:  cfg.UsageLogRetention,
			AuditRetention:     cfg.AuditRetention,
		})

	return &App{
		Config:        cfg,
		Logger:        logger,
		Server:        server,
		Sweeper:       sweeper,
		Observability: runtime,
		redisClient:   redisClient,
	}, nil
}

func (a *App) Shutdown(ctx context.Context) error {
	if err := a.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("drain http server: %w", err)
	}
	if err := a.redisClient.Close(); err != nil {
		a.Logger.WarnContext(ctx, "close redis client", "error", err)
	}
	return a.Observability.Shutdown(ctx)
}
