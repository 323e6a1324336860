package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/fromscratch/identity/internal/apperr"
)

// ErrForbidden is returned when a caller reaches for another user's data.
var ErrForbidden = apperr.New(apperr.Unauthorized, "forbidden", "not allowed to access this resource")

// RequireSelf only lets a request through when the path parameter param
// equals the authenticated user id. It must run after SessionAuth.
func RequireSelf(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid := UserID(c)
			if uid == "" {
				return apperr.ErrUnauthorized
			}
			if c.Param(param) != uid {
				return ErrForbidden
			}
			return next(c)
		}
	}
}
