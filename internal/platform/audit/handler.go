package audit

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/gpbook/gpbook/internal/platform/apperr"
)

// TraceReader looks up the entries written under one trace id.
type TraceReader interface {
	ListByTrace(ctx context.Context, traceID string) ([]*Entry, error)
}

// Handler serves the access trail to operators.
type Handler struct {
	reader TraceReader
}

// NewHandler creates a Handler. reader is nil when nothing is persisted.
func NewHandler(reader TraceReader) *Handler {
	return &Handler{reader: reader}
}

func (h *Handler) RegisterRoutes(admin *echo.Group) {
	admin.GET("/audit", h.ListByTrace)
}

type traceResponse struct {
	TraceID string   `json:"traceId"`
	Entries []*Entry `json:"entries"`
	Total   int      `json:"total"`
}

// ListByTrace handles GET /audit?traceId=.
func (h *Handler) ListByTrace(c echo.Context) error {
	traceID := strings.TrimSpace(c.QueryParam("traceId"))
	if traceID == "" {
		return apperr.Validation("traceId is required")
	}
	if h.reader == nil {
		return apperr.Configuration("audit persistence is not configured", nil)
	}
	entries, err := h.reader.ListByTrace(c.Request().Context(), traceID)
	if err != nil {
		return fmt.Errorf("list access audit: %w", err)
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return c.JSON(http.StatusOK, traceResponse{TraceID: traceID, Entries: entries, Total: len(entries)})
}
