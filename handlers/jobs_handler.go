package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/retention-outbox-service/internal/domain"
	"github.com/onurcolak/retention-outbox-service/internal/service"
	"github.com/onurcolak/retention-outbox-service/pkg/response"
)

type jobRunner interface {
	Run(ctx context.Context, name string, opts domain.RunOptions) (domain.JobResult, error)
}

// JobsHandler triggers a single pipeline job outside the scheduler.
type JobsHandler struct {
	runner jobRunner
}

func NewJobsHandler(runner jobRunner) *JobsHandler {
	return &JobsHandler{runner: runner}
}

// RunJob godoc
// @Summary Run a job once
// @Description Runs one job (ingestion, forced_weekly, triggered, autosend, evaluator, dispatcher) and returns its counters
// @Tags jobs
// @Produce json
// @Param x-admin-key header string true "Admin API key"
// @Param name path string true "Job name"
// @Param dryRun query bool false "Compute counters without writing"
// @Param tenantId query string false "Restrict the run to one tenant"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/jobs/{name}/run [post]
func (h *JobsHandler) RunJob(c echo.Context) error {
	var opts domain.RunOptions

	if dryRun := c.QueryParam("dryRun"); dryRun != "" {
		v, err := strconv.ParseBool(dryRun)
		if err != nil {
			return response.BadRequest(c, fmt.Errorf("dryRun must be a boolean"))
		}
		opts.DryRun = v
	}

	opts.TenantID = c.QueryParam("tenantId")

	result, err := h.runner.Run(c.Request().Context(), c.Param("name"), opts)
	if err != nil {
		if errors.Is(err, service.ErrUnknownJob) {
			return response.NotFound(c, fmt.Sprintf("%s: %s", err.Error(), c.Param("name")))
		}
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, result)
}
