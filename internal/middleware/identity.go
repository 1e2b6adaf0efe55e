package middleware

// identity.go exposes the identity JWTAuth stored in the Echo context to
// handlers and to the other middleware.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// UserID returns the authenticated user's ID.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ctxUserID).(uint64)
	return id, ok && id != 0
}

// Role returns the authenticated user's role.
func Role(c echo.Context) string {
	r, _ := c.Get(ctxRole).(string)
	return r
}

// DeviceID returns the gate device the request came from, or nil.
func DeviceID(c echo.Context) *string {
	if d, ok := c.Get(ctxDeviceID).(string); ok && d != "" {
		return &d
	}
	return nil
}

// userKey returns the user part of rate limit keys; "anon" when the
// request is not authenticated.
func userKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
