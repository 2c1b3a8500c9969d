package branch

import (
	"net/http"

	"charity-delivery/pkg/utils"

	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests for branches.
type Handler struct {
	svc ServiceInterface
}

// NewHandler creates a new branch handler.
func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ListBranches(c echo.Context) error {
	branches, err := h.svc.ListBranches(c.Request().Context())
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, map[string]interface{}{"branches": branches})
}

func (h *Handler) FindDeliverableBranches(c echo.Context) error {
	address := c.QueryParam("address")
	if address == "" {
		return utils.RespondWithError(c, http.StatusBadRequest, "Query parameter 'address' is required")
	}

	result, err := h.svc.FindDeliverableBranches(c.Request().Context(), address)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, result)
}
