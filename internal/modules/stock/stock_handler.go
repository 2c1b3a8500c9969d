package stock

import (
	"net/http"

	"charity-delivery/pkg/utils"

	"github.com/labstack/echo/v4"
)

// Handler exposes the stock movement ledger to administrators.
type Handler struct {
	svc ServiceInterface
}

// NewHandler creates a new stock handler.
func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ListMovements(c echo.Context) error {
	page, limit := utils.GetPageLimit(c)
	movements, total, err := h.svc.ListMovements(c.Request().Context(), c.Param("id"), page, limit)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, map[string]interface{}{"stock_movements": movements, "total": total})
}
