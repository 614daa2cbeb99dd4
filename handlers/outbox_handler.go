package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/retention-outbox-service/internal/domain"
	"github.com/onurcolak/retention-outbox-service/pkg/response"
	"github.com/onurcolak/retention-outbox-service/pkg/validator"
)

type outboxService interface {
	GetAllMessages(ctx context.Context, status *domain.OutboundStatus, page, pageSize int) ([]domain.OutboundMessage, int64, error)
	GetStats(ctx context.Context) (domain.OutboxStats, error)
	GetCachedMessages(ctx context.Context) (map[string]*domain.SentMessageCache, error)

	Requeue(ctx context.Context, id, actor string) (*domain.OutboundMessage, error)
	MarkSent(ctx context.Context, id, actor string) (*domain.OutboundMessage, error)
	OverrideBlock(ctx context.Context, id, actor, note string) (*domain.OutboundMessage, error)
	CloseConversation(ctx context.Context, threadID, actor string) (*domain.SlackDmThread, error)
}

type OutboxHandler struct {
	service outboxService
}

func NewOutboxHandler(service outboxService) *OutboxHandler {
	return &OutboxHandler{service: service}
}

// ActorRequest names the operator performing a manual action.
type ActorRequest struct {
	Actor string `json:"actor" validate:"required,actor"`
}

type OverrideRequest struct {
	Actor string `json:"actor" validate:"required,actor"`
	Note  string `json:"note" validate:"required,notblank,max=500"`
}

// GetAllMessages godoc
// @Summary List outbound messages
// @Description Retrieves a paginated list of outbound messages with optional status filter
// @Tags outbox
// @Accept json
// @Produce json
// @Param x-admin-key header string true "Admin API key"
// @Param page query int false "Page number (default: 1)"
// @Param pageSize query int false "Page size (default: 20, max: 100)"
// @Param status query string false "Filter by status (queued, ready, blocked, sent, error)"
// @Success 200 {object} response.PaginatedResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/outbox [get]
func (h *OutboxHandler) GetAllMessages(c echo.Context) error {
	page, pageSize, err := parsePaginationParams(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	var status *domain.OutboundStatus
	if statusStr := c.QueryParam("status"); statusStr != "" {
		parsed, err := parseOutboundStatus(statusStr)
		if err != nil {
			return response.BadRequest(c, err)
		}
		status = &parsed
	}

	messages, totalCount, err := h.service.GetAllMessages(c.Request().Context(), status, page, pageSize)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Paginated(c, messages, page, pageSize, totalCount)
}

// GetStats godoc
// @Summary Get outbox statistics
// @Description Returns count of outbound messages by status
// @Tags outbox
// @Produce json
// @Param x-admin-key header string true "Admin API key"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/outbox/stats [get]
func (h *OutboxHandler) GetStats(c echo.Context) error {
	stats, err := h.service.GetStats(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, map[string]any{
		"queued":  stats.Queued,
		"ready":   stats.Ready,
		"blocked": stats.Blocked,
		"sent":    stats.Sent,
		"error":   stats.Error,
		"total":   stats.Queued + stats.Ready + stats.Blocked + stats.Sent + stats.Error,
	})
}

// GetCachedMessages godoc
// @Summary Get cached dispatches
// @Description Returns recently dispatched messages cached in Valkey
// @Tags outbox
// @Produce json
// @Param x-admin-key header string true "Admin API key"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/outbox/cached [get]
func (h *OutboxHandler) GetCachedMessages(c echo.Context) error {
	cached, err := h.service.GetCachedMessages(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, cached)
}

// Requeue godoc
// @Summary Requeue an outbound message
// @Description Moves an error or blocked message back to queued so the evaluator re-checks it
// @Tags outbox
// @Accept json
// @Produce json
// @Param x-admin-key header string true "Admin API key"
// @Param id path string true "Outbound message ID"
// @Param request body ActorRequest true "Operator"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /api/v1/outbox/{id}/requeue [post]
func (h *OutboxHandler) Requeue(c echo.Context) error {
	var req ActorRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	msg, err := h.service.Requeue(c.Request().Context(), c.Param("id"), req.Actor)
	if err != nil {
		return actionError(c, err)
	}

	return response.OkWithMessage(c, "Message requeued", msg)
}

// MarkSent godoc
// @Summary Mark an outbound message as sent
// @Description Records a message the operator delivered by hand
// @Tags outbox
// @Accept json
// @Produce json
// @Param x-admin-key header string true "Admin API key"
// @Param id path string true "Outbound message ID"
// @Param request body ActorRequest true "Operator"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /api/v1/outbox/{id}/mark-sent [post]
func (h *OutboxHandler) MarkSent(c echo.Context) error {
	var req ActorRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	msg, err := h.service.MarkSent(c.Request().Context(), c.Param("id"), req.Actor)
	if err != nil {
		return actionError(c, err)
	}

	return response.OkWithMessage(c, "Message marked as sent", msg)
}

// OverrideBlock godoc
// @Summary Override a blocked message
// @Description Releases a blocked message to the dispatcher despite the gate
// @Tags outbox
// @Accept json
// @Produce json
// @Param x-admin-key header string true "Admin API key"
// @Param id path string true "Outbound message ID"
// @Param request body OverrideRequest true "Operator and note"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /api/v1/outbox/{id}/override [post]
func (h *OutboxHandler) OverrideBlock(c echo.Context) error {
	var req OverrideRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	msg, err := h.service.OverrideBlock(c.Request().Context(), c.Param("id"), req.Actor, req.Note)
	if err != nil {
		return actionError(c, err)
	}

	return response.OkWithMessage(c, "Block overridden", msg)
}

// CloseThread godoc
// @Summary Close a DM conversation
// @Description Marks the thread closed so the gate no longer waits for a member reply
// @Tags threads
// @Accept json
// @Produce json
// @Param x-admin-key header string true "Admin API key"
// @Param id path string true "Thread ID"
// @Param request body ActorRequest true "Operator"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /api/v1/threads/{id}/close [post]
func (h *OutboxHandler) CloseThread(c echo.Context) error {
	var req ActorRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	thread, err := h.service.CloseConversation(c.Request().Context(), c.Param("id"), req.Actor)
	if err != nil {
		return actionError(c, err)
	}

	return response.OkWithMessage(c, "Conversation closed", thread)
}

func actionError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return response.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		return response.Conflict(c, err)
	default:
		return response.InternalServerError(c, err)
	}
}

func parseOutboundStatus(s string) (domain.OutboundStatus, error) {
	switch st := domain.OutboundStatus(s); st {
	case domain.OutboundQueued, domain.OutboundReady, domain.OutboundBlocked, domain.OutboundSent, domain.OutboundError:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

func parsePaginationParams(c echo.Context) (int, int, error) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)

	pageStr := c.QueryParam("page")
	pageSizeStr := c.QueryParam("pageSize")

	page := defaultPage
	if pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, fmt.Errorf("page must be a positive integer")
		}
		page = p
	}

	pageSize := defaultPageSize
	if pageSizeStr != "" {
		ps, err := strconv.Atoi(pageSizeStr)
		if err != nil || ps <= 0 || ps > maxPageSize {
			return 0, 0, fmt.Errorf("pageSize must be between 1 and %d", maxPageSize)
		}
		pageSize = ps
	}

	return page, pageSize, nil
}
