package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/retention-outbox-service/internal/domain"
	"github.com/onurcolak/retention-outbox-service/pkg/response"
	validatorpkg "github.com/onurcolak/retention-outbox-service/pkg/validator"
)

// fakeOutbox records operator calls and returns the configured error.
type fakeOutbox struct {
	err        error
	lastActor  string
	lastNote   string
	lastStatus *domain.OutboundStatus
}

func (f *fakeOutbox) GetAllMessages(ctx context.Context, status *domain.OutboundStatus, page, pageSize int) ([]domain.OutboundMessage, int64, error) {
	f.lastStatus = status
	return []domain.OutboundMessage{{ID: "o1", Status: domain.OutboundQueued}}, 1, f.err
}

func (f *fakeOutbox) GetStats(ctx context.Context) (domain.OutboxStats, error) {
	return domain.OutboxStats{Queued: 2, Sent: 1}, f.err
}

func (f *fakeOutbox) GetCachedMessages(ctx context.Context) (map[string]*domain.SentMessageCache, error) {
	return map[string]*domain.SentMessageCache{}, f.err
}

func (f *fakeOutbox) action(id, actor string, status domain.OutboundStatus) (*domain.OutboundMessage, error) {
	f.lastActor = actor
	if f.err != nil {
		return nil, f.err
	}
	return &domain.OutboundMessage{ID: id, Status: status}, nil
}

func (f *fakeOutbox) Requeue(ctx context.Context, id, actor string) (*domain.OutboundMessage, error) {
	return f.action(id, actor, domain.OutboundQueued)
}

func (f *fakeOutbox) MarkSent(ctx context.Context, id, actor string) (*domain.OutboundMessage, error) {
	return f.action(id, actor, domain.OutboundSent)
}

func (f *fakeOutbox) OverrideBlock(ctx context.Context, id, actor, note string) (*domain.OutboundMessage, error) {
	f.lastNote = note
	return f.action(id, actor, domain.OutboundReady)
}

func (f *fakeOutbox) CloseConversation(ctx context.Context, threadID, actor string) (*domain.SlackDmThread, error) {
	f.lastActor = actor
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SlackDmThread{ID: threadID}, nil
}

func newJSONContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

// TestRequeue_BadJSON verifies that invalid JSON returns 400 Bad Request.
func TestRequeue_BadJSON(t *testing.T) {
	e := echo.New()
	handler := NewOutboxHandler(&fakeOutbox{})

	c, rec := newJSONContext(e, http.MethodPost, "/api/v1/outbox/o1/requeue", `{"actor":`)
	c.SetParamNames("id")
	c.SetParamValues("o1")

	if err := handler.Requeue(c); err != nil {
		t.Fatalf("Requeue returned error: %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}

	var resp response.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response body: %v", err)
	}
	if resp.Success || resp.Error == "" {
		t.Fatalf("unexpected error response: %+v", resp)
	}
}

// TestRequeue_InvalidActor verifies that a malformed actor fails validation
// before the service is called.
func TestRequeue_InvalidActor(t *testing.T) {
	e := echo.New()
	e.Validator = validatorpkg.New()
	svc := &fakeOutbox{}
	handler := NewOutboxHandler(svc)

	c, rec := newJSONContext(e, http.MethodPost, "/api/v1/outbox/o1/requeue", `{"actor":"jane"}`)
	c.SetParamNames("id")
	c.SetParamValues("o1")

	if err := handler.Requeue(c); err != nil {
		t.Fatalf("Requeue returned error: %v", err)
	}

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}

	var resp validatorpkg.ValidationErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response body: %v", err)
	}
	if _, ok := resp.Details["actor"]; !ok {
		t.Fatalf("expected validation details for actor, got %v", resp.Details)
	}
	if svc.lastActor != "" {
		t.Fatalf("service should not be called on validation failure")
	}
}

func TestOperatorActions_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"success", nil, http.StatusOK},
		{"not found", fmt.Errorf("outbound message o1: %w", domain.ErrNotFound), http.StatusNotFound},
		{"invalid transition", fmt.Errorf("requeue: %w", domain.ErrInvalidTransition), http.StatusConflict},
		{"storage failure", fmt.Errorf("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.Validator = validatorpkg.New()
			svc := &fakeOutbox{err: tt.err}
			handler := NewOutboxHandler(svc)

			c, rec := newJSONContext(e, http.MethodPost, "/api/v1/outbox/o1/mark-sent", `{"actor":"operator:jane"}`)
			c.SetParamNames("id")
			c.SetParamValues("o1")

			if err := handler.MarkSent(c); err != nil {
				t.Fatalf("MarkSent returned error: %v", err)
			}
			if rec.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			if svc.lastActor != "operator:jane" {
				t.Errorf("expected actor to be passed through, got %q", svc.lastActor)
			}
		})
	}
}

func TestOverrideBlock_RequiresNote(t *testing.T) {
	e := echo.New()
	e.Validator = validatorpkg.New()
	svc := &fakeOutbox{}
	handler := NewOutboxHandler(svc)

	c, rec := newJSONContext(e, http.MethodPost, "/api/v1/outbox/o1/override", `{"actor":"operator:jane"}`)
	c.SetParamNames("id")
	c.SetParamValues("o1")

	if err := handler.OverrideBlock(c); err != nil {
		t.Fatalf("OverrideBlock returned error: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}

	c, rec = newJSONContext(e, http.MethodPost, "/api/v1/outbox/o1/override", `{"actor":"operator:jane","note":"member asked"}`)
	c.SetParamNames("id")
	c.SetParamValues("o1")

	if err := handler.OverrideBlock(c); err != nil {
		t.Fatalf("OverrideBlock returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if svc.lastNote != "member asked" {
		t.Errorf("expected note to be passed through, got %q", svc.lastNote)
	}
}

func TestCloseThread_NotFound(t *testing.T) {
	e := echo.New()
	e.Validator = validatorpkg.New()
	handler := NewOutboxHandler(&fakeOutbox{err: domain.ErrNotFound})

	c, rec := newJSONContext(e, http.MethodPost, "/api/v1/threads/th1/close", `{"actor":"operator:jane"}`)
	c.SetParamNames("id")
	c.SetParamValues("th1")

	if err := handler.CloseThread(c); err != nil {
		t.Fatalf("CloseThread returned error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestGetAllMessages_StatusFilter(t *testing.T) {
	e := echo.New()
	svc := &fakeOutbox{}
	handler := NewOutboxHandler(svc)

	c, rec := newJSONContext(e, http.MethodGet, "/api/v1/outbox?status=blocked&page=1&pageSize=10", "")
	if err := handler.GetAllMessages(c); err != nil {
		t.Fatalf("GetAllMessages returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if svc.lastStatus == nil || *svc.lastStatus != domain.OutboundBlocked {
		t.Fatalf("expected blocked filter, got %v", svc.lastStatus)
	}

	var resp response.PaginatedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response body: %v", err)
	}
	if resp.TotalCount != 1 || resp.TotalPages != 1 || resp.PageSize != 10 {
		t.Errorf("unexpected pagination: %+v", resp)
	}

	for _, target := range []string{"/api/v1/outbox?status=pending", "/api/v1/outbox?pageSize=1000", "/api/v1/outbox?page=0"} {
		c, rec = newJSONContext(e, http.MethodGet, target, "")
		if err := handler.GetAllMessages(c); err != nil {
			t.Fatalf("GetAllMessages returned error: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status %d, got %d", target, http.StatusBadRequest, rec.Code)
		}
	}
}

func TestGetStats_IncludesTotal(t *testing.T) {
	e := echo.New()
	handler := NewOutboxHandler(&fakeOutbox{})

	c, rec := newJSONContext(e, http.MethodGet, "/api/v1/outbox/stats", "")
	if err := handler.GetStats(c); err != nil {
		t.Fatalf("GetStats returned error: %v", err)
	}

	var resp struct {
		Data map[string]int64 `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response body: %v", err)
	}
	if resp.Data["total"] != 3 || resp.Data["queued"] != 2 {
		t.Errorf("unexpected stats: %v", resp.Data)
	}
}
