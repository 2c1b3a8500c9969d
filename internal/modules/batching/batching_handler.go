package batching

import (
	"net/http"

	"charity-delivery/pkg/utils"

	"github.com/labstack/echo/v4"
)

// Handler exposes the manual batching trigger for administrators.
type Handler struct {
	svc ServiceInterface
}

// NewHandler creates a new batching handler.
func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RunBatching(c echo.Context) error {
	created, err := h.svc.BatchPendingDeliveryRequests(c.Request().Context())
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, map[string]interface{}{"routes_created": created})
}
