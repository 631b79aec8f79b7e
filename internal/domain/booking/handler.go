package booking

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/gpbook/gpbook/internal/platform/apperr"
	"github.com/gpbook/gpbook/internal/platform/middleware"
	"github.com/gpbook/gpbook/pkg/pagination"
)

const (
	defaultWindowDays = 7
	anonymousActor    = "anonymous"
)

type Handler struct {
	availability *AvailabilityService
	bookings     *Orchestrator
}

func NewHandler(availability *AvailabilityService, bookings *Orchestrator) *Handler {
	return &Handler{availability: availability, bookings: bookings}
}

// RegisterRoutes mounts search and booking on api. Stored records carry the
// patient's identifier and contact details, so reading, listing and
// cancelling them is only mounted on admin, and not at all when admin is nil.
func (h *Handler) RegisterRoutes(api *echo.Group, admin *echo.Group) {
	api.GET("/availability", h.SearchAvailability)
	api.POST("/bookings", h.CreateBooking)
	if admin != nil {
		admin.GET("/bookings", h.ListBookings)
		admin.GET("/bookings/:id", h.GetBooking)
		admin.DELETE("/bookings/:id", h.CancelBooking)
	}
}

type availabilityResponse struct {
	Slots []SlotCandidate `json:"slots"`
	Total int             `json:"total"`
}

// SearchAvailability handles GET /availability. fromDate defaults to today
// and toDate to a week after fromDate.
func (h *Handler) SearchAvailability(c echo.Context) error {
	from := c.QueryParam("fromDate")
	if from == "" {
		from = time.Now().UTC().Format(dateLayout)
	}
	to := c.QueryParam("toDate")
	if to == "" {
		f, err := time.Parse(dateLayout, from)
		if err != nil {
			return apperr.Validation("fromDate must be YYYY-MM-DD")
		}
		to = f.AddDate(0, 0, defaultWindowDays).Format(dateLayout)
	}
	window, err := ParseDateWindow(from, to)
	if err != nil {
		return err
	}

	duration := DefaultDuration
	if d := c.QueryParam("duration"); d != "" {
		duration, err = strconv.Atoi(d)
		if err != nil {
			return apperr.Validation("duration must be a whole number of minutes")
		}
	}

	slots, err := h.availability.Search(c.Request().Context(), AvailabilityQuery{
		PracticeCode:    c.QueryParam("practiceCode"),
		Window:          window,
		DurationMinutes: duration,
		TraceID:         middleware.TraceID(c),
		Actor:           anonymousActor,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, availabilityResponse{Slots: slots, Total: len(slots)})
}

func (h *Handler) CreateBooking(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return middleware.BindError(err)
	}
	res, err := h.bookings.Book(c.Request().Context(), req, middleware.TraceID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetBooking(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid booking id")
	}
	b, err := h.bookings.Get(c.Request().Context(), id, middleware.TraceID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) CancelBooking(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid booking id")
	}
	b, err := h.bookings.Cancel(c.Request().Context(), id, middleware.TraceID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListBookings(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.bookings.ListByPractice(c.Request().Context(), c.QueryParam("practiceCode"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Booking{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
