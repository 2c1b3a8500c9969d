package route

import (
	"net/http"

	"charity-delivery/internal/models"
	"charity-delivery/pkg/utils"

	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests for scheduled routes.
type Handler struct {
	svc ServiceInterface
}

// NewHandler creates a new scheduled route handler.
func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) GetScheduledRoute(c echo.Context) error {
	userID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	rt, err := h.svc.GetScheduledRoute(c.Request().Context(), c.Param("id"), userID, role)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, rt)
}

func (h *Handler) ListMyScheduledRoutes(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	var filter models.RouteFilter
	if err := c.Bind(&filter); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid filter")
	}

	page, limit := utils.GetPageLimit(c)
	routes, total, err := h.svc.GetScheduledRoutesForUser(c.Request().Context(), userID, filter, page, limit)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, map[string]interface{}{"scheduled_routes": routes, "total": total})
}

func (h *Handler) ListAllScheduledRoutes(c echo.Context) error {
	if _, _, err := utils.ExtractUserInfo(c); err != nil {
		return err
	}

	var filter models.RouteFilter
	if err := c.Bind(&filter); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid filter")
	}

	page, limit := utils.GetPageLimit(c)
	routes, total, err := h.svc.GetScheduledRoutesForAdmin(c.Request().Context(), filter, page, limit)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, map[string]interface{}{"scheduled_routes": routes, "total": total})
}

func (h *Handler) AcceptScheduledRoute(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}
	userEmail, _ := c.Get("userEmail").(string)

	var req models.RouteActionRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	rt, err := h.svc.AcceptScheduledRoute(c.Request().Context(), c.Param("id"), userID, userEmail)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, rt)
}

func (h *Handler) StartScheduledRoute(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	var req models.RouteActionRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	rt, err := h.svc.StartScheduledRoute(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, rt)
}

func (h *Handler) UpdateNextStatus(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	rt, err := h.svc.UpdateNextStatusOfDeliveryRequestsOfScheduledRoute(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, rt)
}

func (h *Handler) GiveItems(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	var req models.GiveItemsRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	if err := h.svc.GiveItemsToStartScheduledRoute(c.Request().Context(), c.Param("id"), userID, req); err != nil {
		return utils.HandleServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ReceiveItems(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	var req models.ReceiveItemsRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	rt, err := h.svc.ReceiveItemsToFinishScheduledRoute(c.Request().Context(), c.Param("id"), userID, req)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, rt)
}

func (h *Handler) CancelScheduledRoute(c echo.Context) error {
	userID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	if err := h.svc.CancelScheduledRoute(c.Request().Context(), c.Param("id"), userID, role); err != nil {
		return utils.HandleServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
