package profile

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/chronicle/internal/platform/recordstore"
)

type Handler struct {
	builder *Builder
}

func NewHandler(builder *Builder) *Handler {
	return &Handler{builder: builder}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:identifier/profile", h.GetProfile)
}

// GetProfile handles GET /patients/:identifier/profile.
func (h *Handler) GetProfile(c echo.Context) error {
	identifier := c.Param("identifier")
	p, err := h.builder.Build(identifier)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnresolved):
			return echo.NewHTTPError(http.StatusNotFound, "no person matches "+identifier)
		case errors.Is(err, recordstore.ErrNoData):
			return echo.NewHTTPError(http.StatusServiceUnavailable, "data root is not readable")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, p)
}
