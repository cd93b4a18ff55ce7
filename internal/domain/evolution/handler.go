package evolution

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/chronicle/internal/domain/profile"
	"github.com/ehr/chronicle/internal/platform/recordstore"
)

type Handler struct {
	orchestrator *Orchestrator
	exportDir    string
}

func NewHandler(orchestrator *Orchestrator, exportDir string) *Handler {
	return &Handler{orchestrator: orchestrator, exportDir: exportDir}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:identifier/evolution", h.GetEvolution)
	api.POST("/patients/:identifier/evolution/export", h.ExportEvolution)
}

// GetEvolution handles GET /patients/:identifier/evolution.
func (h *Handler) GetEvolution(c echo.Context) error {
	report, err := h.orchestrator.Run(c.Request().Context(), c.Param("identifier"))
	if err != nil {
		return mapError(c.Param("identifier"), err)
	}
	return c.JSON(http.StatusOK, report)
}

// ExportEvolution handles POST /patients/:identifier/evolution/export. The
// report is written server-side; the response carries the path and summary
// counts rather than the full document.
func (h *Handler) ExportEvolution(c echo.Context) error {
	identifier := c.Param("identifier")
	path, report, err := h.orchestrator.Export(c.Request().Context(), identifier, h.exportDir)
	if err != nil {
		return mapError(identifier, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"identifier": identifier,
		"path":       path,
		"events":     len(report.Timeline),
		"episodes":   len(report.Episodes),
		"alerts":     len(report.Alerts),
	})
}

func mapError(identifier string, err error) error {
	switch {
	case errors.Is(err, profile.ErrUnresolved):
		return echo.NewHTTPError(http.StatusNotFound, "no person matches "+identifier)
	case errors.Is(err, recordstore.ErrNoData):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "data root is not readable")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
