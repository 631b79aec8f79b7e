package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestID assigns every request a trace id, reusing the caller's
// X-Request-ID when present. The id is echoed in the response header and is
// the Ssp-TraceID sent to practice endpoints for that request.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(RequestIDHeader)
			if rid == "" || len(rid) > 128 {
				rid = uuid.NewString()
			}
			c.Set(requestIDKey, rid)
			c.Response().Header().Set(RequestIDHeader, rid)
			return next(c)
		}
	}
}

// TraceID returns the id assigned by RequestID, or "" outside it.
func TraceID(c echo.Context) string {
	rid, _ := c.Get(requestIDKey).(string)
	return rid
}
