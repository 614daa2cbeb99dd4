package handlers

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/retention-outbox-service/environments"
	"github.com/onurcolak/retention-outbox-service/internal/scheduler"
	"github.com/onurcolak/retention-outbox-service/pkg/response"
	"github.com/onurcolak/retention-outbox-service/pkg/validator"
)

type SchedulerHandler struct {
	scheduler *scheduler.Scheduler
	ctx       context.Context
	config    *environments.Config
}

type StartSchedulerRequest struct {
	IntervalSeconds *int `json:"intervalSeconds,omitempty" validate:"omitempty,min=1"`
	AlertThreshold  *int `json:"alertThreshold,omitempty" validate:"omitempty,min=0"`
}

func NewSchedulerHandler(
	sched *scheduler.Scheduler,
	ctx context.Context,
	cfg *environments.Config,
) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler: sched,
		ctx:       ctx,
		config:    cfg,
	}
}

// StartScheduler godoc
// @Summary Start the job scheduler
// @Description Starts the periodic pipeline (ingestion, generation, autosend, evaluator, dispatcher) with optional parameters
// @Tags scheduler
// @Accept json
// @Produce json
// @Param x-admin-key header string true "Admin API key"
// @Param request body StartSchedulerRequest false "Scheduler parameters (optional)"
// @Success 200 {object} response.SuccessResponse
// @Failure 422 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/scheduler/start [post]
func (h *SchedulerHandler) StartScheduler(c echo.Context) error {
	if h.scheduler.IsRunning() {
		return response.OkWithMessage(c, "Scheduler is already running", h.scheduler.GetStatus())
	}

	var req StartSchedulerRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	interval := h.config.Jobs.Interval
	if req.IntervalSeconds != nil {
		interval = time.Duration(*req.IntervalSeconds) * time.Second
	}

	alertThreshold := h.config.Alert.IterationCount
	if req.AlertThreshold != nil {
		alertThreshold = *req.AlertThreshold
	}

	if err := h.scheduler.StartWithParams(h.ctx, interval, alertThreshold); err != nil {
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Scheduler started successfully", h.scheduler.GetStatus())
}

// StopScheduler godoc
// @Summary Stop the job scheduler
// @Description Stops the periodic pipeline after the current tick
// @Tags scheduler
// @Accept json
// @Produce json
// @Param x-admin-key header string true "Admin API key"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/scheduler/stop [post]
func (h *SchedulerHandler) StopScheduler(c echo.Context) error {
	if !h.scheduler.IsRunning() {
		return response.OkWithMessage(c, "Scheduler is already stopped", h.scheduler.GetStatus())
	}

	if err := h.scheduler.Stop(); err != nil {
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Scheduler stopped successfully", h.scheduler.GetStatus())
}

// GetSchedulerStatus godoc
// @Summary Get scheduler status
// @Description Returns the scheduler state and per-job statistics
// @Tags scheduler
// @Accept json
// @Produce json
// @Param x-admin-key header string true "Admin API key"
// @Success 200 {object} response.SuccessResponse
// @Router /api/v1/scheduler/status [get]
func (h *SchedulerHandler) GetSchedulerStatus(c echo.Context) error {
	return response.Ok(c, h.scheduler.GetStatus())
}
