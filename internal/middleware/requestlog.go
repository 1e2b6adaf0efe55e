package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-reconciler/internal/logging"
)

// RequestIDHeader carries the correlation ID of a request.
const RequestIDHeader = "X-Request-ID"

// RequestLogger attaches a logrus entry carrying a correlation ID to the
// request context and logs one line per request.  An incoming
// X-Request-ID is reused; otherwise a new one is generated and echoed
// back.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid := req.Header.Get(RequestIDHeader)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Response().Header().Set(RequestIDHeader, rid)

			entry := logrus.WithFields(logrus.Fields{
				"request_id": rid,
				"method":     req.Method,
				"path":       c.Path(),
			})
			c.SetRequest(req.WithContext(logging.ToContext(req.Context(), entry)))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			entry.WithFields(logrus.Fields{
				"status":   c.Response().Status,
				"duration": time.Since(start).String(),
				"user_id":  userKey(c),
			}).Info("request handled")
			return nil
		}
	}
}
