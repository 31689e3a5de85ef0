package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sipcard/dispense/internal/api/handler"
	"github.com/sipcard/dispense/internal/core/domain"
)

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps domain errors to their HTTP status and stable wire code.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders {"error": {"code": ..., "message": ...}}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}

var domainStatus = []struct {
	err    error
	status int
}{
	{domain.ErrInvalidInput, http.StatusUnprocessableEntity},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized},
	{domain.ErrInvalidToken, http.StatusUnauthorized},
	{domain.ErrRefreshReuse, http.StatusUnauthorized},
	{domain.ErrForbidden, http.StatusForbidden},
	{domain.ErrUserNotFound, http.StatusNotFound},
	{domain.ErrCardNotFound, http.StatusNotFound},
	{domain.ErrUserExists, http.StatusConflict},
	{domain.ErrCardExists, http.StatusConflict},
	{domain.ErrCardBlocked, http.StatusConflict},
	{domain.ErrInsufficientBalance, http.StatusPaymentRequired},
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, handler.ErrorBody) {
	// Echo's own errors (bind failures, 404 from router, 401 from Auth, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorBody(statusCode(he.Code), fmt.Sprintf("%v", he.Message))
	}

	for _, d := range domainStatus {
		if errors.Is(err, d.err) {
			return d.status, errorBody(domain.CodeOf(err), err.Error())
		}
	}

	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, errorBody("internal_error", "internal server error")
}

func errorBody(code, msg string) handler.ErrorBody {
	return handler.ErrorBody{Error: handler.ErrorDetail{Code: code, Message: msg}}
}

// statusCode turns a status into a wire code: 503 → "service_unavailable".
func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}
