package webhook

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/onurcolak/retention-outbox-service/environments"
	"github.com/onurcolak/retention-outbox-service/pkg/logger"
)

// Alert is the payload posted when a job keeps failing.
type Alert struct {
	Alert               string    `json:"alert"`
	Job                 string    `json:"job"`
	RunNumber           int64     `json:"runNumber"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	Message             string    `json:"message"`
	Timestamp           time.Time `json:"timestamp"`
}

type Client struct {
	httpClient *resty.Client
	webhookURL string
}

// NewAlertClient returns nil when no webhook URL is configured.
func NewAlertClient(cfg environments.AlertConfig) *Client {
	if cfg.WebhookURL == "" {
		return nil
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		webhookURL: cfg.WebhookURL,
	}
}

func (c *Client) SendAlert(ctx context.Context, alert Alert) error {
	startTime := time.Now()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(alert).
		Post(c.webhookURL)
	if err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}

	logger.Infof("Alert webhook request to %s completed in %v (status: %d)",
		c.webhookURL, time.Since(startTime), resp.StatusCode())

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		return nil
	default:
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), resp.String())
	}
}

func (c *Client) GetURL() string {
	return c.webhookURL
}
