package routes

import (
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/onurcolak/retention-outbox-service/environments"
	"github.com/onurcolak/retention-outbox-service/handlers"
	"github.com/onurcolak/retention-outbox-service/internal/middlewares"
)

// Handlers groups everything RegisterRoutes mounts.
type Handlers struct {
	Health      *handlers.HealthHandler
	Outbox      *handlers.OutboxHandler
	Jobs        *handlers.JobsHandler
	Scheduler   *handlers.SchedulerHandler
	SlackEvents *handlers.SlackEventsHandler
}

// RegisterRoutes registers all API routes with middleware
func RegisterRoutes(e *echo.Echo, h Handlers, cfg *environments.Config) {
	e.GET("/health", h.Health.Health)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// Slack signs its callbacks; no admin key here
	e.POST("/slack/events/:tenantId", h.SlackEvents.ReceiveEvent, middlewares.SlackSignature(cfg.Slack.SigningSecret))

	// API v1 base group, operator only
	v1 := e.Group("/api/v1", middlewares.APIKeyAuth(cfg.Auth.AdminAPIKeys))

	outbox := v1.Group("/outbox")
	outbox.GET("", h.Outbox.GetAllMessages)
	outbox.GET("/stats", h.Outbox.GetStats)
	outbox.GET("/cached", h.Outbox.GetCachedMessages)
	outbox.POST("/:id/requeue", h.Outbox.Requeue)
	outbox.POST("/:id/mark-sent", h.Outbox.MarkSent)
	outbox.POST("/:id/override", h.Outbox.OverrideBlock)

	v1.POST("/threads/:id/close", h.Outbox.CloseThread)

	v1.POST("/jobs/:name/run", h.Jobs.RunJob)

	schedulerGroup := v1.Group("/scheduler")
	schedulerGroup.POST("/start", h.Scheduler.StartScheduler)
	schedulerGroup.POST("/stop", h.Scheduler.StopScheduler)
	schedulerGroup.GET("/status", h.Scheduler.GetSchedulerStatus)
}
