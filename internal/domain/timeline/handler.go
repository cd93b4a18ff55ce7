package timeline

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/chronicle/internal/platform/recordstore"
)

// Handler exposes the timeline build over HTTP.
type Handler struct {
	builder *Builder
}

func NewHandler(builder *Builder) *Handler {
	return &Handler{builder: builder}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/patients/:identifier/timeline", h.GetTimeline)
}

// GetTimeline builds and returns the full reconciled timeline. A build that
// completes but resolves no one is a 404; a source layer failure is a 503.
func (h *Handler) GetTimeline(c echo.Context) error {
	identifier := c.Param("identifier")
	res, err := h.builder.Build(c.Request().Context(), identifier)
	if err != nil {
		if errors.Is(err, recordstore.ErrNoData) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "source data unavailable")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "timeline build failed")
	}
	if res.Identity == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no person matches "+identifier)
	}
	return c.JSON(http.StatusOK, res)
}
