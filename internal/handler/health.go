package handler // declare the package name; contains HTTP handlers

import (
	"context"
	"database/sql"
	"net/http" // net/http provides status codes and response helpers
	"time"

	"github.com/labstack/echo/v4" // echo is the web framework used for this project
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports whether the service and its backing stores are
// reachable.  Either dependency may be nil.
type HealthHandler struct {
	DB    *sql.DB
	Redis *redis.Client
}

// Health is used by load balancers and monitoring systems.  It returns
// "ok" with 200 when every configured dependency answers a ping and 503
// naming the failing dependency otherwise.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second)
	defer cancel()
	if h.DB != nil {
		if err := h.DB.PingContext(ctx); err != nil {
			return c.String(http.StatusServiceUnavailable, "database unavailable")
		}
	}
	if h.Redis != nil {
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			return c.String(http.StatusServiceUnavailable, "redis unavailable")
		}
	}
	return c.String(http.StatusOK, "ok")
}
