package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/onurcolak/retention-outbox-service/environments"
	"github.com/onurcolak/retention-outbox-service/handlers"
	"github.com/onurcolak/retention-outbox-service/internal/repository"
	"github.com/onurcolak/retention-outbox-service/internal/scheduler"
	"github.com/onurcolak/retention-outbox-service/internal/service"
	"github.com/onurcolak/retention-outbox-service/pkg/contentgen"
	"github.com/onurcolak/retention-outbox-service/pkg/database"
	"github.com/onurcolak/retention-outbox-service/pkg/logger"
	"github.com/onurcolak/retention-outbox-service/pkg/redis"
	"github.com/onurcolak/retention-outbox-service/pkg/validator"
	"github.com/onurcolak/retention-outbox-service/pkg/webhook"
	"github.com/onurcolak/retention-outbox-service/routes"

	_ "github.com/onurcolak/retention-outbox-service/docs" // swagger docs
)

// @title Retention Outbox Service API
// @version 1.0
// @description Multi-tenant retention messaging pipeline: draft generation, autosend gate, outbox and Slack DM ingestion

// @contact.name API Support
// @contact.email onur.colak@useinsider.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @schemes http https
func main() {
	// Load config
	cfg := environments.Load()

	logger.Init(cfg.Log)

	// Hard-fail if required secrets are missing
	if len(cfg.Auth.AdminAPIKeys) == 0 {
		logger.Fatalf("ADMIN_API_KEY or ADMIN_API_KEYS is required but not set")
	}
	if cfg.Slack.SigningSecret == "" {
		logger.Warnf("SLACK_SIGNING_SECRET is not set, Slack event webhooks will be rejected")
	}

	logger.Infof("Starting Retention Outbox Service...")

	// Init DB
	db, err := database.NewMySQLDB(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.RunMigrations(db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	// Seed data
	if os.Getenv("SEED_DATA") == "true" {
		if err := database.SeedTestData(db); err != nil {
			logger.Warnf("Failed to seed test data: %v", err)
		}
	}

	// Init valkey; dispatches are only cached when it is up
	redisClient, err := redis.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Warnf("Valkey not available, caching disabled: %v", err)
		redisClient = nil
	}

	// Initialize repositories
	tenantRepo := repository.NewTenantRepository(db)
	memberRepo := repository.NewMemberRepository(db)
	draftRepo := repository.NewDraftRepository(db)
	threadRepo := repository.NewThreadRepository(db)
	eventRepo := repository.NewEventRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	audit := service.NewAuditRecorder(repository.NewAuditRepository(db))

	// Content generation falls back to fixed templates without an API key
	content := contentgen.New(cfg.OpenAI)
	if cfg.OpenAI.APIKey != "" {
		logger.Infof("Content generation via model %s", cfg.OpenAI.Model)
	} else {
		logger.Warnf("OPENAI_API_KEY not set, using template content")
	}

	// Initialize services
	ingestionService := service.NewIngestionService(tenantRepo, eventRepo, threadRepo, cfg.Jobs.IngestionBatchSize)
	draftService := service.NewDraftService(
		tenantRepo,
		memberRepo,
		draftRepo,
		threadRepo,
		content,
		audit,
		cfg.Jobs.GeneratorBatchSize,
	)

	outboxConfig := service.OutboxConfig{
		AutosendBatchSize:   cfg.Jobs.AutosendBatchSize,
		EvaluatorBatchSize:  cfg.Jobs.EvaluatorBatchSize,
		DispatcherBatchSize: cfg.Jobs.DispatcherBatchSize,
		Cooldown:            cfg.Jobs.Cooldown,
	}
	var outboxService *service.OutboxService
	if redisClient != nil {
		outboxService = service.NewOutboxService(tenantRepo, memberRepo, draftRepo, threadRepo, outboxRepo, redisClient, audit, outboxConfig)
	} else {
		outboxService = service.NewOutboxService(tenantRepo, memberRepo, draftRepo, threadRepo, outboxRepo, nil, audit, outboxConfig)
	}

	jobRunner := service.NewJobRunner(ingestionService, draftService, outboxService)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize scheduler; alerts only when a webhook is configured
	var sched *scheduler.Scheduler
	if alertClient := webhook.NewAlertClient(cfg.Alert); alertClient != nil {
		logger.Infof("Alert webhook configured: %s", alertClient.GetURL())
		sched = scheduler.NewScheduler(jobRunner, alertClient, cfg.Jobs.Interval, cfg.Alert.IterationCount)
	} else {
		sched = scheduler.NewScheduler(jobRunner, nil, cfg.Jobs.Interval, cfg.Alert.IterationCount)
	}

	// Initialize handlers
	h := routes.Handlers{
		Health:      handlers.NewHealthHandler(db, redisClient, sched),
		Outbox:      handlers.NewOutboxHandler(outboxService),
		Jobs:        handlers.NewJobsHandler(jobRunner),
		Scheduler:   handlers.NewSchedulerHandler(sched, ctx, cfg),
		SlackEvents: handlers.NewSlackEventsHandler(tenantRepo, eventRepo),
	}

	// Auto-start scheduler
	if cfg.Jobs.AutoStart {
		logger.Infof("Auto-starting scheduler...")
		if err := sched.Start(ctx); err != nil {
			logger.Warnf("Failed to auto-start scheduler: %v", err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validator.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			"x-admin-key",
		},
	}))

	// Setup routes
	routes.RegisterRoutes(e, h, cfg)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Infof("Server starting on http://localhost%s", addr)
		logger.Infof("Swagger docs available at http://localhost%s/swagger/index.html", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down gracefully...")

	// Stop scheduler first (with timeout); a tick in flight finishes its
	// current job before the loop sees the stop signal
	if sched.IsRunning() {
		logger.Infof("Stopping scheduler...")
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()

		done := make(chan error, 1)
		go func() {
			done <- sched.Stop()
		}()

		select {
		case err := <-done:
			if err != nil {
				logger.Errorf("Error stopping scheduler: %v", err)
			} else {
				logger.Infof("Scheduler stopped successfully")
			}
		case <-stopCtx.Done():
			logger.Warnf("Scheduler stop timeout, forcing shutdown")
		}
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Shutdown HTTP server (with timeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Infof("Shutting down HTTP server...")
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	} else {
		logger.Infof("HTTP server stopped successfully")
	}

	// Close database connection
	logger.Infof("Closing database connection...")
	if err := db.Close(); err != nil {
		logger.Errorf("Error closing database: %v", err)
	}

	// Close Valkey connection
	if redisClient != nil {
		logger.Infof("Closing Valkey connection...")
		if err := redisClient.Close(); err != nil {
			logger.Errorf("Error closing Valkey: %v", err)
		}
	}

	logger.Infof("Graceful shutdown completed")
}
