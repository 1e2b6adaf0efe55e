package router

import (
	"github.com/iliyamo/ticket-reconciler/internal/handler"
	"github.com/iliyamo/ticket-reconciler/internal/middleware"
	"github.com/labstack/echo/v4"
)

// RegisterCustomer registers customer-scoped endpoints under /v1.  All routes
// require a valid JWT and the customer role.  Customers can hold and
// release tickets, offer a ticket they own for transfer and accept a
// transfer offered to them.
func RegisterCustomer(e *echo.Echo, h *handler.CustomerHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleCustomer),
		limiter,
	)
	g.POST("/tickets/:id/hold", h.Hold)
	g.DELETE("/tickets/:id/hold", h.ReleaseHold)

	// Transfers are two-phase: the owner creates a token, the receiver
	// redeems it.
	g.POST("/tickets/:id/transfer", h.OfferTransfer)
	g.DELETE("/tickets/:id/transfer", h.CancelTransfer)
	g.POST("/transfers/:token/accept", h.AcceptTransfer)
}
