package middleware

import (
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/gpbook/gpbook/internal/platform/apperr"
)

const maxHeaderValueSize = 8 << 10

var (
	// Logged only; parameters are always bound, never interpolated.
	sqlPattern    = regexp.MustCompile(`(?i)('+\s*;\s*DROP\b|UNION\s+SELECT\b|'\s+OR\s+1\s*=\s*1)`)
	scriptPattern = regexp.MustCompile(`(?i)(<script|javascript\s*:|on\w+\s*=)`)
)

// Sanitize rejects requests carrying path traversal, null bytes, header
// injection or script fragments in query parameters. Rejections surface as
// validation errors so the body carries the trace id.
func Sanitize(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if msg := inspect(c, logger); msg != "" {
				logger.Warn().
					Str("trace_id", TraceID(c)).
					Str("path", c.Request().URL.Path).
					Str("remote_ip", c.RealIP()).
					Str("reason", msg).
					Msg("request rejected")
				return apperr.Validation("%s", msg)
			}
			return next(c)
		}
	}
}

func inspect(c echo.Context, logger zerolog.Logger) string {
	req := c.Request()
	for _, p := range []string{req.URL.Path, req.URL.RawPath} {
		if containsPathTraversal(p) {
			return "path traversal detected"
		}
		if containsNullByte(p) {
			return "null byte in path"
		}
	}

	for name, values := range req.Header {
		for _, v := range values {
			if len(v) > maxHeaderValueSize {
				return "header " + name + " is too large"
			}
			if strings.ContainsAny(v, "\r\n") {
				return "header injection detected"
			}
		}
	}

	for key, values := range req.URL.Query() {
		for _, v := range values {
			if containsNullByte(key) || containsNullByte(v) {
				return "null byte in query parameter"
			}
			if scriptPattern.MatchString(key) || scriptPattern.MatchString(v) {
				return "script fragment in query parameter"
			}
			if sqlPattern.MatchString(v) {
				logger.Warn().Str("trace_id", TraceID(c)).Str("param", key).
					Msg("suspicious SQL fragment in query parameter")
			}
		}
	}
	return ""
}

func containsPathTraversal(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(s, "..") || strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%252e")
}

func containsNullByte(s string) bool {
	return strings.ContainsRune(s, 0) || strings.Contains(strings.ToLower(s), "%00")
}
