package middleware

import "github.com/labstack/echo/v4"

const userIDKey = "user_id"

// UserID returns the authenticated user id set by SessionAuth, or "" on
// public routes.
func UserID(c echo.Context) string {
	if v, ok := c.Get(userIDKey).(string); ok {
		return v
	}
	return ""
}

// clientKey identifies the caller for rate limiting: the user id when
// authenticated, "anon" otherwise.
func clientKey(c echo.Context) string {
	if uid := UserID(c); uid != "" {
		return uid
	}
	return "anon"
}
