package middlewares

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/retention-outbox-service/pkg/response"
)

func TestAPIKeyAuth(t *testing.T) {
	tests := []struct {
		name       string
		keys       []string
		header     string
		wantStatus int
	}{
		{"no key configured", nil, "anything", http.StatusInternalServerError},
		{"only empty keys configured", []string{"", ""}, "", http.StatusInternalServerError},
		{"missing header", []string{"current"}, "", http.StatusUnauthorized},
		{"wrong key", []string{"current"}, "guess", http.StatusUnauthorized},
		{"current key", []string{"current", "previous"}, "current", http.StatusOK},
		{"key being rotated out", []string{"current", "previous"}, "previous", http.StatusOK},
		{"prefix of a key", []string{"current"}, "curr", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/outbox", nil)
			if tt.header != "" {
				req.Header.Set(APIKeyHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			c := echo.New().NewContext(req, rec)

			reached := false
			handler := APIKeyAuth(tt.keys)(func(c echo.Context) error {
				reached = true
				return c.NoContent(http.StatusOK)
			})

			if err := handler(c); err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if reached != (tt.wantStatus == http.StatusOK) {
				t.Fatalf("next handler reached=%v for status %d", reached, rec.Code)
			}

			if tt.wantStatus != http.StatusOK {
				var body response.ErrorResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
					t.Fatalf("failed to unmarshal response: %v", err)
				}
				if body.Success || body.Error == "" {
					t.Errorf("unexpected error body: %+v", body)
				}
			}
		})
	}
}
