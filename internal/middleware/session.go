package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fromscratch/identity/internal/apperr"
)

// SessionCookie is the HTTP-only cookie carrying the session token.
const SessionCookie = "access_token"

// SessionVerifier resolves a session token to a user id.
type SessionVerifier interface {
	VerifySession(token string) (string, error)
}

// SessionAuth accepts a session token from an "Authorization: Bearer"
// header or the access_token cookie and stores the user id in the context.
// The header wins when both are present.
func SessionAuth(v SessionVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := sessionToken(c)
			if raw == "" {
				return apperr.ErrUnauthorized
			}
			uid, err := v.VerifySession(raw)
			if err != nil {
				return err
			}
			c.Set(userIDKey, uid)
			return next(c)
		}
	}
}

func sessionToken(c echo.Context) string {
	if auth := c.Request().Header.Get(echo.HeaderAuthorization); auth != "" {
		if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
			return strings.TrimSpace(auth[7:])
		}
	}
	if ck, err := c.Cookie(SessionCookie); err == nil {
		return ck.Value
	}
	return ""
}
