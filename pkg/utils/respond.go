package utils

import (
	"errors"
	"net/http"
	"strconv"

	"charity-delivery/internal/models"

	"github.com/labstack/echo/v4"
)

// RespondWithJSON writes a JSON payload with the given status code.
func RespondWithJSON(c echo.Context, code int, payload interface{}) error {
	return c.JSON(code, payload)
}

// RespondWithError writes a structured error body with the given status code.
func RespondWithError(c echo.Context, code int, message string) error {
	return c.JSON(code, models.ErrorResponse{Message: message})
}

// HandleServiceError translates the service layer's sentinel errors into
// transport-level responses. Unknown errors become a generic 500.
func HandleServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return RespondWithError(c, http.StatusNotFound, "resource not found")
	case errors.Is(err, models.ErrInvalidStateTransition):
		return RespondWithError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, models.ErrAlreadyAccepted), errors.Is(err, models.ErrConflict):
		return RespondWithError(c, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrCancelReasonTooShort), errors.Is(err, models.ErrReportNotAllowed):
		return RespondWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrGeocode), errors.Is(err, models.ErrOptimization):
		return RespondWithError(c, http.StatusBadGateway, err.Error())
	default:
		c.Logger().Errorf("unhandled service error: %v", err)
		return RespondWithError(c, http.StatusInternalServerError, "internal server error")
	}
}

// ExtractUserInfo reads the authenticated user's id and role from the
// context values set by the JWT middleware.
func ExtractUserInfo(c echo.Context) (userID string, role string, err error) {
	userID, _ = c.Get("userID").(string)
	role, _ = c.Get("userRole").(string)
	if userID == "" {
		return "", "", RespondWithError(c, http.StatusUnauthorized, "missing authentication")
	}
	return userID, role, nil
}

// GetPageLimit reads pagination query parameters with sane bounds.
func GetPageLimit(c echo.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	limit, _ = strconv.Atoi(c.QueryParam("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
