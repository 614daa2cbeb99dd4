package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Error codes let operator tooling branch without parsing messages.
const (
	CodeBadRequest        = "bad_request"
	CodeUnauthorized      = "unauthorized"
	CodeNotFound          = "not_found"
	CodeInvalidTransition = "invalid_transition"
	CodeInternal          = "internal_error"
	CodeValidationFailed  = "validation_failed"

	unauthorizedMessage = "Invalid or missing API key"
)

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type ErrorResponse struct {
	Success   bool   `json:"success"`
	Code      string `json:"code"`
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

type PaginatedResponse struct {
	Success    bool  `json:"success"`
	Data       any   `json:"data"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalCount int64 `json:"totalCount"`
	TotalPages int   `json:"totalPages"`
}

func Ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Data:    data,
	})
}

func OkWithMessage(c echo.Context, message string, data any) error {
	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Fail writes an error body carrying the request id set by the RequestID
// middleware, if any.
func Fail(c echo.Context, status int, code, message string) error {
	return c.JSON(status, ErrorResponse{
		Success:   false,
		Code:      code,
		Error:     message,
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
	})
}

func BadRequest(c echo.Context, err error) error {
	return Fail(c, http.StatusBadRequest, CodeBadRequest, err.Error())
}

func Unauthorized(c echo.Context) error {
	return Fail(c, http.StatusUnauthorized, CodeUnauthorized, unauthorizedMessage)
}

func NotFound(c echo.Context, message string) error {
	return Fail(c, http.StatusNotFound, CodeNotFound, message)
}

// Conflict reports an operator action that the message's current status does
// not allow.
func Conflict(c echo.Context, err error) error {
	return Fail(c, http.StatusConflict, CodeInvalidTransition, err.Error())
}

func InternalServerError(c echo.Context, err error) error {
	return Fail(c, http.StatusInternalServerError, CodeInternal, err.Error())
}

func Paginated(c echo.Context, data any, page, pageSize int, totalCount int64) error {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((totalCount + int64(pageSize) - 1) / int64(pageSize))
	}

	return c.JSON(http.StatusOK, PaginatedResponse{
		Success:    true,
		Data:       data,
		Page:       page,
		PageSize:   pageSize,
		TotalCount: totalCount,
		TotalPages: totalPages,
	})
}
