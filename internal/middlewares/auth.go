package middlewares

import (
	"crypto/subtle"
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/retention-outbox-service/pkg/logger"
	"github.com/onurcolak/retention-outbox-service/pkg/response"
)

const APIKeyHeader = "x-admin-key"

// matchesAny compares token against every key so the time taken does not
// depend on which key matched.
func matchesAny(token string, keys []string) bool {
	matched := 0
	for _, key := range keys {
		matched |= subtle.ConstantTimeCompare([]byte(token), []byte(key))
	}
	return matched == 1
}

// APIKeyAuth guards the operator surface. Several keys may be active at once
// while one is being rotated out.
func APIKeyAuth(keys []string) echo.MiddlewareFunc {
	active := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			active = append(active, k)
		}
	}

	if len(active) == 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				return response.InternalServerError(c, fmt.Errorf("admin API key is not configured"))
			}
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := c.Request().Header.Get(APIKeyHeader)
			if token == "" || !matchesAny(token, active) {
				logger.Warnf("Rejected admin request %s %s from %s",
					c.Request().Method, c.Request().URL.Path, c.RealIP())
				return response.Unauthorized(c)
			}

			return next(c)
		}
	}
}
