package practice

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gpbook/gpbook/internal/platform/middleware"
	"github.com/gpbook/gpbook/pkg/pagination"
)

type Handler struct {
	dir *Directory
}

func NewHandler(dir *Directory) *Handler {
	return &Handler{dir: dir}
}

// RegisterRoutes mounts the read endpoints on api and, when admin is non-nil,
// the seeding endpoint on admin.
func (h *Handler) RegisterRoutes(api *echo.Group, admin *echo.Group) {
	api.GET("/practices", h.ListPractices)
	api.GET("/practices/:code", h.GetPractice)
	if admin != nil {
		admin.POST("/practices", h.SavePractice)
	}
}

func (h *Handler) GetPractice(c echo.Context) error {
	p, err := h.dir.Lookup(c.Request().Context(), c.Param("code"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPractices(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.dir.List(c.Request().Context(), pg)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Practice{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) SavePractice(c echo.Context) error {
	var p Practice
	if err := c.Bind(&p); err != nil {
		return middleware.BindError(err)
	}
	if err := h.dir.Save(c.Request().Context(), &p); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
