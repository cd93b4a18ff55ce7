package identity

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/chronicle/internal/platform/recordstore"
)

type Handler struct {
	resolver *Resolver
}

func NewHandler(resolver *Resolver) *Handler {
	return &Handler{resolver: resolver}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/identities", h.ResolveIdentity)
}

// ResolveIdentity handles GET /identities?identifier=<key>.
func (h *Handler) ResolveIdentity(c echo.Context) error {
	identifier := c.QueryParam("identifier")
	if identifier == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "identifier query parameter is required")
	}

	matches, err := h.resolver.Resolve(identifier)
	if err != nil {
		if errors.Is(err, recordstore.ErrNoData) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "data root is not readable")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"identifier": identifier,
		"count":      len(matches),
		"matches":    matches,
	})
}
