// Package router wires handlers and middleware onto the Echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/fromscratch/identity/internal/handler"
)

// RegisterRoutes registers routes that do not belong to any API group.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth mounts /v1/auth. limit guards the endpoints that accept
// passwords or send mail; session authenticates the caller.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, session, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register, limit)
	g.POST("/login", a.Login, limit)
	g.POST("/logout", a.Logout)
	g.POST("/forgot-password", a.ForgotPassword, limit)
	g.POST("/reset-password", a.ResetPassword, limit)

	g.GET("/me", a.Me, session)
	g.POST("/change-password", a.ChangePassword, session, limit)

	// :provider is google or github; static routes above take precedence.
	g.GET("/:provider/login", a.OAuthLogin)
	g.GET("/:provider/callback", a.OAuthCallback)
}
