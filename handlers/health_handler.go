package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"

	"github.com/onurcolak/retention-outbox-service/pkg/redis"
)

type schedulerState interface {
	IsRunning() bool
}

// HealthHandler handles health checks.
type HealthHandler struct {
	db           *sqlx.DB
	redis        *redis.Client
	scheduler    schedulerState
	checkTimeout time.Duration
}

func NewHealthHandler(db *sqlx.DB, redisClient *redis.Client, sched schedulerState) *HealthHandler {
	return &HealthHandler{
		db:           db,
		redis:        redisClient,
		scheduler:    sched,
		checkTimeout: 2 * time.Second,
	}
}

// Health returns overall status and component statuses.
// @Summary Health check
// @Description Returns overall status with MySQL and Valkey connectivity and whether the scheduler runs
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} map[string]any
// @Router /health [get]
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.checkTimeout)
	defer cancel()

	overallStatus := "ok"

	dbStatus := "up"
	if h.db == nil {
		dbStatus = "down"
		overallStatus = "down"
	} else if err := h.db.PingContext(ctx); err != nil {
		dbStatus = "down"
		overallStatus = "down"
	}

	cacheStatus := "disabled"
	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			cacheStatus = "down"
			if overallStatus == "ok" {
				overallStatus = "degraded"
			}
		} else {
			cacheStatus = "up"
		}
	}

	schedulerStatus := "stopped"
	if h.scheduler != nil && h.scheduler.IsRunning() {
		schedulerStatus = "running"
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().Format(time.RFC3339),
		"components": map[string]any{
			"database":  map[string]any{"status": dbStatus},
			"cache":     map[string]any{"status": cacheStatus},
			"scheduler": map[string]any{"status": schedulerStatus},
		},
	})
}
