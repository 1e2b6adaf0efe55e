package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/ticket-reconciler/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/ticket-reconciler/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	// Load balancers and monitoring systems poll this endpoint.
	e.GET("/healthz", h.Health)
}

// RegisterGate registers the admission endpoints used by gate devices under
// /v1/gate.  All routes require a valid JWT carrying the gate role.  The
// limiter runs after authentication so buckets are keyed per device user.
func RegisterGate(e *echo.Echo, h *handler.GateHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group(
		"/v1/gate",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleGate),
		limiter,
	)
	g.GET("/tickets/:qr", h.Verify)
	g.GET("/tickets/:qr/logs", h.Logs)
	g.POST("/tickets/:qr/log", h.UpdateLog)
	g.POST("/tickets/:qr/clean", h.UpdateCleanLog)
}
