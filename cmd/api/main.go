package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/pulseline/broadcast-engine/internal/authz"
	"github.com/pulseline/broadcast-engine/internal/config"
	"github.com/pulseline/broadcast-engine/internal/directory"
	"github.com/pulseline/broadcast-engine/internal/handler"
	"github.com/pulseline/broadcast-engine/internal/infra/postgresql"
	"github.com/pulseline/broadcast-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/pulseline/broadcast-engine/internal/infra/redis"
	"github.com/pulseline/broadcast-engine/internal/observability"
	"github.com/pulseline/broadcast-engine/internal/push"
	"github.com/pulseline/broadcast-engine/internal/ratelimit"
	"github.com/pulseline/broadcast-engine/internal/repository"
	"github.com/pulseline/broadcast-engine/internal/service"
	"github.com/pulseline/broadcast-engine/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, cfg.DatabaseMaxConns)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	bus, err := infraredis.NewEventBus(rdb, logger)
	if err != nil {
		logger.Fatal("event bus initialization failed", zap.Error(err))
	}

	// The Redis limiter caps fan-out throughput across every instance;
	// single-instance deployments can opt into the in-process bucket.
	var limiter ratelimit.RateLimiter
	switch cfg.FanoutLimiter {
	case "local":
		limiter = ratelimit.NewLocalRateLimiter(cfg.FanoutRatePerSec)
	default:
		limiter, err = infraredis.NewRedisRateLimiter(rdb, cfg.FanoutRatePerSec)
		if err != nil {
			logger.Fatal("rate limiter initialization failed", zap.Error(err))
		}
	}

	dir, err := directory.NewHTTPDirectory(cfg.DirectoryURL, cfg.DirectoryToken)
	if err != nil {
		logger.Fatal("directory client initialization failed", zap.Error(err))
	}

	var pusher push.Pusher = push.NoopPusher{}
	if cfg.PushQueueURL != "" {
		amqpPusher, err := push.NewAMQPPusher(cfg.PushQueueURL)
		if err != nil {
			logger.Fatal("push gateway initialization failed", zap.Error(err))
		}
		pusher = amqpPusher
	}
	defer pusher.Close()

	metrics := observability.NewMetrics()
	authorizer := authz.NewRoleAuthorizer(nil, nil)

	campaignRepo := repository.NewGormCampaignRepo(db)
	deliveryRepo := repository.NewGormDeliveryRepo(db)

	resolver, err := service.NewAudienceResolver(dir)
	if err != nil {
		logger.Fatal("audience resolver initialization failed", zap.Error(err))
	}
	fanout, err := service.NewFanoutWriter(deliveryRepo, limiter, pusher, metrics, logger, cfg.FanoutConcurrency)
	if err != nil {
		logger.Fatal("fanout writer initialization failed", zap.Error(err))
	}
	campaignService, err := service.NewCampaignService(campaignRepo, deliveryRepo, authorizer, resolver, fanout, bus, metrics, logger)
	if err != nil {
		logger.Fatal("campaign service initialization failed", zap.Error(err))
	}
	inboxService, err := service.NewInboxService(deliveryRepo, bus, metrics, logger)
	if err != nil {
		logger.Fatal("inbox service initialization failed", zap.Error(err))
	}
	feedService, err := service.NewAdminFeedService(deliveryRepo, bus, metrics, logger)
	if err != nil {
		logger.Fatal("admin feed service initialization failed", zap.Error(err))
	}
	dashboardService, err := service.NewDashboardService(deliveryRepo, bus, metrics, logger)
	if err != nil {
		logger.Fatal("dashboard service initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:      "broadcast-engine",
		ErrorHandler: transport.ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterCampaignRoutes(app, campaignService); err != nil {
		logger.Fatal("campaign routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterInboxRoutes(app, inboxService); err != nil {
		logger.Fatal("inbox routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterAdminRoutes(app, feedService, dashboardService, authorizer); err != nil {
		logger.Fatal("admin routes registration failed", zap.Error(err))
	}

	go func() {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		logger.Info("broadcast-engine api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(addr); err != nil {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	if err := app.Shutdown(); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}
