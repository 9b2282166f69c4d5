package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/otonoha/academy-backend/internal/reqctx"
)

// RequestID attaches a correlation id to the request context so service and
// AI-client logs for one request can be stitched together.
func RequestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		rid := c.Request().Header.Get("X-Request-Id")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Response().Header().Set("X-Request-Id", rid)
		c.SetRequest(c.Request().WithContext(reqctx.WithRID(c.Request().Context(), rid)))
		return next(c)
	}
}
