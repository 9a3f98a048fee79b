package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/auth-service/internal/api/http"
	"github.com/spec-kit/auth-service/internal/api/http/handlers"
	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/observability"
	"github.com/spec-kit/auth-service/internal/persistence"
	"github.com/spec-kit/auth-service/internal/repository"
	"github.com/spec-kit/auth-service/internal/repository/memory"
	"github.com/spec-kit/auth-service/internal/service"
	"github.com/spec-kit/auth-service/internal/worker"
)

const shutdownTimeout = 15 * time.Second

type stores struct {
	users   repository.UserRepository
	refresh repository.RefreshTokenRepository
	resets  repository.PasswordResetRepository
	tx      repository.Transactor
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, cfg.App.Name, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(cfg.Postgres.DSN, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	st := newStores(pg)
	metrics := observability.NewMetrics()

	dispatcher, subscriber := newDispatcher(redis, cfg.Notification, logger)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL)
	sessionService, err := service.NewSessionService(service.SessionConfigFrom(cfg.Auth), service.SessionDependencies{
		Users:         st.users,
		RefreshTokens: st.refresh,
		PasswordReset: st.resets,
		Tx:            st.tx,
		Hasher:        auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		Tokens:        tokens,
		Dispatcher:    dispatcher,
		Metrics:       metrics,
		Logger:        logger.Named("session"),
	})
	if err != nil {
		logger.Fatal("failed to build session service", zap.Error(err))
	}
	userService := service.NewUserService(st.users, st.refresh, logger.Named("users"))
	notificationService := service.NewNotificationService(dispatcher, logger.Named("notification"), cfg.Notification)

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		worker.StartNotificationWorker(ctx, notificationService, subscriber, logger)
	}()
	go func() {
		defer workers.Done()
		worker.NewTokenSweeper(sessionService, cfg.Auth.SweepInterval, metrics, logger).Start(ctx)
	}()

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Auth:              handlers.NewAuthHandler(sessionService),
		Users:             handlers.NewUsersHandler(userService, sessionService),
		AuthMiddleware:    auth.NewAuthMiddleware(sessionService),
		Metrics:           metrics,
		CredentialLimiter: httptransport.NewIPRateLimiter(cfg.Auth.LoginRateLimitPerMinute),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Error("fiber listen", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	workers.Wait()
	sessionService.Wait()
}

func newStores(pg *persistence.Postgres) stores {
	if pg.Enabled() {
		return stores{
			users:   repository.NewUserRepository(pg.Pool),
			refresh: repository.NewRefreshTokenRepository(pg.Pool),
			resets:  repository.NewPasswordResetRepository(pg.Pool),
			tx:      repository.NewTransactor(pg.Pool),
		}
	}
	users := memory.NewUserRepository()
	refresh := memory.NewRefreshTokenRepository()
	resets := memory.NewPasswordResetRepository()
	return stores{
		users:   users,
		refresh: refresh,
		resets:  resets,
		tx:      memory.NewTransactor(users, refresh, resets),
	}
}

// newDispatcher uses the Redis bus when connected, otherwise in-process delivery with no subscriber loop.
func newDispatcher(redis *persistence.Redis, cfg config.NotificationConfig, logger *zap.Logger) (events.Dispatcher, worker.Subscriber) {
	if redis.Enabled() {
		d := events.NewRedisDispatcher(redis.Client, cfg.ChannelPrefix, logger.Named("events"))
		return d, d
	}
	return events.NewInMemoryDispatcher(), nil
}
