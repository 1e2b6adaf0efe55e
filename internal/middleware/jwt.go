package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http" // HTTP status codes for responses
	"strconv"  // parsing numeric subjects
	"strings"  // string utilities for prefix checking and trimming

	"github.com/golang-jwt/jwt/v5" // JWT library for parsing and validating tokens
	"github.com/labstack/echo/v4"  // Echo framework used for defining middleware and handlers
)

// Context keys set by JWTAuth.
const (
	ctxUserID   = "user_id"
	ctxRole     = "role"
	ctxDeviceID = "device_id"
)

// Claims are the access token claims issued by the identity provider.  Gate
// devices carry a device_id claim in addition to the scanning user's
// subject.
type Claims struct {
	Role     string `json:"role"`
	DeviceID string `json:"device_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and stores the numeric subject, the role and the optional device ID in
// the request context.  The secret must match the one used by the identity
// provider.
func JWTAuth(secret string) echo.MiddlewareFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			var claims Claims
			tok, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			uid, err := strconv.ParseUint(claims.Subject, 10, 64)
			if err != nil || uid == 0 {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid subject"})
			}

			c.Set(ctxUserID, uid)
			c.Set(ctxRole, claims.Role)
			if claims.DeviceID != "" {
				c.Set(ctxDeviceID, claims.DeviceID)
			}
			return next(c)
		}
	}
}
