package api

import (
	"net/http"

	"charity-delivery/internal/api/middleware"
	"charity-delivery/internal/modules/batching"
	"charity-delivery/internal/modules/branch"
	"charity-delivery/internal/modules/delivery"
	"charity-delivery/internal/modules/route"
	"charity-delivery/internal/modules/stock"
	"charity-delivery/pkg/notify"

	"github.com/labstack/echo/v4"
)

// SetupRoutes sets up all the API endpoints for the application.
func SetupRoutes(
	e *echo.Echo,
	deliveryHandler *delivery.Handler,
	routeHandler *route.Handler,
	branchHandler *branch.Handler,
	batchingHandler *batching.Handler,
	stockHandler *stock.Handler,
	hub *notify.Hub,
	jwtSecret string,
) {
	// Initialize the JWT authentication middleware
	authMiddleware := middleware.JWTAuth(jwtSecret)
	adminRequired := middleware.AdminRequired()
	contributorRequired := middleware.ContributorRequired()

	// --- Public Routes ---
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "Welcome to the Charity Delivery Platform!"})
	})

	// --- Branch Routes ---
	branchGroup := e.Group("/branches", authMiddleware)
	{
		branchGroup.GET("", branchHandler.ListBranches)
		branchGroup.GET("/deliverable", branchHandler.FindDeliverableBranches)
	}

	// --- Delivery Request Routes ---
	deliveryGroup := e.Group("/delivery-requests", authMiddleware)
	{
		deliveryGroup.POST("", deliveryHandler.CreateDeliveryRequests)
		deliveryGroup.GET("", deliveryHandler.ListDeliveryRequests)
		deliveryGroup.GET("/:id", deliveryHandler.GetDeliveryRequest)
		deliveryGroup.PUT("/:id/next-status", deliveryHandler.UpdateNextStatus, contributorRequired)
		deliveryGroup.PUT("/:id/finish", deliveryHandler.FinishDeliveryRequest)
		deliveryGroup.PUT("/:id/cancel", deliveryHandler.CancelDeliveryRequest)
		deliveryGroup.POST("/:id/report", deliveryHandler.SendReport)
	}

	// --- Scheduled Route Routes ---
	routeGroup := e.Group("/scheduled-routes", authMiddleware, contributorRequired)
	{
		routeGroup.GET("", routeHandler.ListMyScheduledRoutes)
		routeGroup.GET("/:id", routeHandler.GetScheduledRoute)
		routeGroup.PUT("/:id/accept", routeHandler.AcceptScheduledRoute)
		routeGroup.PUT("/:id/start", routeHandler.StartScheduledRoute)
		routeGroup.PUT("/:id/next-status", routeHandler.UpdateNextStatus)
		routeGroup.PUT("/:id/give-items", routeHandler.GiveItems)
		routeGroup.PUT("/:id/receive-items", routeHandler.ReceiveItems)
		routeGroup.PUT("/:id/cancel", routeHandler.CancelScheduledRoute)
	}

	// --- Notifications (WebSocket) ---
	e.GET("/ws/notifications", hub.HandleSubscribe, authMiddleware)

	// --- Admin Routes ---
	adminGroup := e.Group("/admin", authMiddleware, adminRequired)
	{
		adminGroup.GET("/scheduled-routes", routeHandler.ListAllScheduledRoutes)
		adminGroup.PUT("/delivery-requests/:id/handle-report", deliveryHandler.HandleReportedDeliveryRequest)
		adminGroup.POST("/batching/run", batchingHandler.RunBatching)
		adminGroup.GET("/branches/:id/stock-movements", stockHandler.ListMovements)
	}
}
