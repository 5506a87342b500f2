package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dealerdesk/wainbox/internal/api"
	"github.com/dealerdesk/wainbox/internal/config"
	"github.com/dealerdesk/wainbox/internal/db"
	"github.com/dealerdesk/wainbox/internal/identity"
	"github.com/dealerdesk/wainbox/internal/middleware"
	"github.com/dealerdesk/wainbox/internal/observ"
	"github.com/dealerdesk/wainbox/internal/repository/postgres"
	"github.com/dealerdesk/wainbox/internal/service"
	"github.com/dealerdesk/wainbox/internal/stream"
	"github.com/dealerdesk/wainbox/internal/wa"
	"github.com/dealerdesk/wainbox/internal/webhook"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	// Redis only caches channel→tenant lookups; if it's down we log and
	// serve from Postgres.
	var cache *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		cache = redis.NewClient(opts)
		if err := cache.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, resolver cache disabled", zap.Error(err))
			cache = nil
		}
	}

	pool := database.Pool()
	tenantRepo := postgres.NewTenantStore(pool)
	channelRepo := postgres.NewChannelStore(pool)
	agentRepo := postgres.NewAgentStore(pool)
	contactRepo := postgres.NewContactStore(pool)
	conversationRepo := postgres.NewConversationStore(pool)
	messageRepo := postgres.NewMessageStore(pool)

	var defaultTenantID uuid.UUID
	if cfg.DefaultTenantID != "" {
		defaultTenantID, err = uuid.Parse(cfg.DefaultTenantID)
		if err != nil {
			return fmt.Errorf("parse DEFAULT_TENANT_ID: %w", err)
		}
	}

	resolver := identity.NewTenantResolver(channelRepo, cache, defaultTenantID, logger)
	identitySvc := identity.NewService(contactRepo, conversationRepo, cfg.DefaultCountryCode)
	hub := stream.NewHub(logger)
	processor := webhook.NewProcessor(resolver, identitySvc, messageRepo, conversationRepo, hub, logger)

	waClient := wa.NewClient(cfg.WAGraphBaseURL, cfg.WAAccessToken)
	clock := service.NewClock()
	outbound := service.NewOutbound(messageRepo, conversationRepo, contactRepo, channelRepo, waClient, clock, logger)

	sweeper := service.NewSweeper(messageRepo, cfg.QueuedSweepAfter, cfg.QueuedSweepInterval, clock, logger)
	go sweeper.Run(ctx)

	webhookHandler := api.NewWebhookHandler(processor, cfg.WAVerifyToken, cfg.WAAppSecret, logger)
	authHandler := api.NewAuthHandler(agentRepo, tenantRepo, cfg.JWTSecret, logger)
	messageHandler := api.NewMessageHandler(outbound, logger)
	conversationHandler := api.NewConversationHandler(conversationRepo, messageRepo, agentRepo, logger)
	streamHandler := api.NewStreamHandler(hub)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := gin.New()
	srv.Use(gin.Logger(), gin.Recovery())

	srv.GET("/v1/health", func(c *gin.Context) {
		if err := database.Health(c.Request.Context()); err != nil {
			c.JSON(503, gin.H{"status": "degraded"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})
	srv.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Webhook endpoints authenticate via verify token / HMAC signature,
	// not bearer tokens.
	srv.GET("/webhooks/whatsapp", webhookHandler.Verify)
	srv.POST("/webhooks/whatsapp", webhookHandler.Receive)

	srv.POST("/v1/auth/login", authHandler.Login)

	v1 := srv.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWTSecret, agentRepo, logger))

	v1.POST("/messages/send_text", messageHandler.SendText)
	v1.POST("/messages/send_template", messageHandler.SendTemplate)
	v1.POST("/messages/send_flow", messageHandler.SendFlow)

	v1.GET("/conversations", conversationHandler.List)
	v1.GET("/conversations/:id/messages", conversationHandler.ListMessages)
	v1.POST("/conversations/:id/read", conversationHandler.MarkRead)
	v1.POST("/conversations/:id/status", conversationHandler.SetStatus)
	v1.POST("/conversations/:id/assign", conversationHandler.Assign)

	v1.GET("/stream", streamHandler.Serve)

	logger.Info("starting wainbox",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
	)

	return srv.Run(":" + cfg.Port)
}
