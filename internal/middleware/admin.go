package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireAdminKey gates admin routes on a static X-Admin-Key header. An empty
// configured key disables the admin surface entirely.
func RequireAdminKey(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if key == "" {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "admin_disabled"})
			}
			got := c.Request().Header.Get("X-Admin-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
