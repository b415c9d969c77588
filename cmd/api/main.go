package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/modengine-api/internal/config"
	"github.com/noah-isme/modengine-api/internal/database"
	"github.com/noah-isme/modengine-api/internal/handler"
	"github.com/noah-isme/modengine-api/internal/middleware"
	"github.com/noah-isme/modengine-api/internal/models"
	"github.com/noah-isme/modengine-api/internal/repository"
	"github.com/noah-isme/modengine-api/internal/router"
	"github.com/noah-isme/modengine-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not set; stats cache and redis notifications disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	store := repository.NewModerationStore(db)
	auditService := service.NewAuditService(store.Audit(), logger)
	notificationService := service.NewNotificationService(
		repository.NewNotificationRepository(db),
		validate,
		logger,
		service.NotificationConfig{RetryMax: cfg.NotificationRetries},
		service.NewRedisPublisher(redisClient, cfg.NotificationChannel),
		service.NewNATSPublisher(natsConn, cfg.NotificationChannel),
	)
	caseQuery := service.NewCaseQueryService(store.Cases(), redisClient, cfg.StatsCacheTTL, logger)
	targets := service.NewTargetRegistry()
	resolver := service.NewCaseResolver(service.CaseResolverDeps{
		Store:         store,
		Audit:         auditService,
		Enforcer:      service.NewEnforcer(targets),
		Targets:       targets,
		Notifications: notificationService,
		Stats:         caseQuery,
	}, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		ModerationHandler:   handler.NewModerationCaseHandler(resolver, caseQuery, logger),
		AuditHandler:        handler.NewAuditHandler(auditService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger),
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
		SubmitRateLimit:     cfg.SubmitRateLimit,
		SubmitRateWindow:    cfg.SubmitRateWindow,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, logger)
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
