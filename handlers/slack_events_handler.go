package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/slack-go/slack/slackevents"

	"github.com/onurcolak/retention-outbox-service/internal/domain"
	"github.com/onurcolak/retention-outbox-service/pkg/logger"
	"github.com/onurcolak/retention-outbox-service/pkg/response"
)

type eventStore interface {
	Create(ctx context.Context, e *domain.InboundEvent) error
}

type tenantLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
}

// SlackEventsHandler stores Events API callbacks for the ingestion job.
// Nothing is interpreted on the request path.
type SlackEventsHandler struct {
	tenants tenantLookup
	events  eventStore
	now     func() time.Time
}

func NewSlackEventsHandler(tenants tenantLookup, events eventStore) *SlackEventsHandler {
	return &SlackEventsHandler{
		tenants: tenants,
		events:  events,
		now:     time.Now,
	}
}

type slackEnvelope struct {
	Type string `json:"type"`
}

// ReceiveEvent godoc
// @Summary Receive a Slack Events API callback
// @Description Answers URL verification challenges and stores event callbacks for ingestion
// @Tags slack
// @Accept json
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Param X-Slack-Signature header string true "Slack request signature"
// @Param X-Slack-Request-Timestamp header string true "Slack request timestamp"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /slack/events/{tenantId} [post]
func (h *SlackEventsHandler) ReceiveEvent(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return response.BadRequest(c, err)
	}

	var envelope slackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return response.BadRequest(c, fmt.Errorf("invalid event payload: %w", err))
	}

	switch envelope.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			return response.BadRequest(c, err)
		}
		return c.String(http.StatusOK, challenge.Challenge)

	case slackevents.CallbackEvent:
		// stored below

	default:
		logger.Debugf("Ignoring slack envelope of type %q", envelope.Type)
		return response.OkWithMessage(c, "Ignored", nil)
	}

	tenantID := c.Param("tenantId")
	tenant, err := h.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return response.InternalServerError(c, err)
	}
	if tenant == nil {
		return response.NotFound(c, fmt.Sprintf("tenant %s not found", tenantID))
	}

	event := &domain.InboundEvent{
		ID:         uuid.NewString(),
		TenantID:   tenant.ID,
		Payload:    string(body),
		ReceivedAt: h.now().UTC(),
	}
	if err := h.events.Create(ctx, event); err != nil {
		return response.InternalServerError(c, err)
	}

	logger.Debugf("Stored slack event %s for tenant %s", event.ID, tenant.ID)
	return response.OkWithMessage(c, "Event received", map[string]string{"id": event.ID})
}
