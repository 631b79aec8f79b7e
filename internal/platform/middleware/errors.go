package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/gpbook/gpbook/internal/platform/apperr"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	TraceID string `json:"traceId"`
}

// ErrorHandler renders apperr kinds and echo errors as ErrorBody. Causes are
// logged, never returned to the caller.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := apperr.HTTPStatus(err)
		msg := apperr.PublicMessage(err)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			msg = http.StatusText(he.Code)
			if m, ok := he.Message.(string); ok && m != "" {
				msg = m
			} else if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}

		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("trace_id", TraceID(c)).
				Str("kind", string(apperr.KindOf(err))).
				Msg("request failed")
		}

		body := ErrorBody{Error: msg, TraceID: TraceID(c)}
		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("failed to write error response")
		}
	}
}
