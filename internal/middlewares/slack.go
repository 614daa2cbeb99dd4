package middlewares

import (
	"bytes"
	"fmt"
	"io"

	"github.com/labstack/echo/v4"
	"github.com/slack-go/slack"

	"github.com/onurcolak/retention-outbox-service/pkg/logger"
	"github.com/onurcolak/retention-outbox-service/pkg/response"
)

const maxSlackBody = 1 << 20

// SlackSignature verifies the X-Slack-Signature of event webhooks and puts
// the body back for the handler.
func SlackSignature(signingSecret string) echo.MiddlewareFunc {
	if signingSecret == "" {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				return response.InternalServerError(c, fmt.Errorf("slack signing secret is not configured"))
			}
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			body, err := io.ReadAll(io.LimitReader(req.Body, maxSlackBody))
			if err != nil {
				return response.BadRequest(c, fmt.Errorf("failed to read body: %w", err))
			}

			sv, err := slack.NewSecretsVerifier(req.Header, signingSecret)
			if err != nil {
				logger.Warnf("Rejected Slack request: %v", err)
				return response.Unauthorized(c)
			}
			if _, err := sv.Write(body); err != nil {
				return response.InternalServerError(c, err)
			}
			if err := sv.Ensure(); err != nil {
				logger.Warnf("Rejected Slack request with bad signature: %v", err)
				return response.Unauthorized(c)
			}

			req.Body = io.NopCloser(bytes.NewReader(body))
			return next(c)
		}
	}
}
