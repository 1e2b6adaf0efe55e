package router // router defines how HTTP routes are registered for the API

import (
	"github.com/iliyamo/ticket-reconciler/internal/handler"    // admin handlers
	"github.com/iliyamo/ticket-reconciler/internal/middleware" // JWT + role middlewares
	"github.com/labstack/echo/v4"
)

// RegisterAdmin registers operator endpoints under /v1/admin.
// All routes require a valid JWT and the admin role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleAdmin),
	)

	// ---- Jobs ----
	g.POST("/seat-sales/:id/refund", h.BulkRefund)
	g.POST("/reconcile", h.Reconcile)

	// ---- Tickets ----
	g.POST("/tickets/:id/withdraw", h.Withdraw)
	g.GET("/tickets/:id/reserves", h.Reserves)
}
