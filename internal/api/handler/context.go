package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sipcard/dispense/internal/core/domain"
)

// Context keys set by the Auth middleware.
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
	CtxEmail  = "email"
)

// envelope is the success body: {"data": ...}. Errors are rendered by the
// central error handler as {"error": {"code", "message"}}.
type envelope struct {
	Data any `json:"data"`
}

func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, envelope{Data: data})
}

// ctxClaims extracts the identity injected by the Auth middleware. Both
// values must be present; an empty one means the route is not behind Auth.
func ctxClaims(c echo.Context) (userID, role string, err error) {
	userID, _ = c.Get(CtxUserID).(string)
	role, _ = c.Get(CtxRole).(string)
	if userID == "" || role == "" {
		return "", "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return userID, role, nil
}

// bind decodes and validates the request body into req.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// ErrorBody is the error envelope: {"error": {"code": ..., "message": ...}}.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
