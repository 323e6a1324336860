package router

import (
	"github.com/labstack/echo/v4"

	"github.com/fromscratch/identity/internal/handler"
	"github.com/fromscratch/identity/internal/middleware"
)

// RegisterSubscriptions mounts /v1/subscriptions. Only the plan list is
// public; cache applies to it alone because it is the same for everyone.
func RegisterSubscriptions(e *echo.Echo, s *handler.SubscriptionHandler, session, cache echo.MiddlewareFunc) {
	g := e.Group("/v1/subscriptions")
	g.GET("/plans", s.ListPlans, cache)

	g.GET("/current", s.Current, session)
	g.POST("/subscribe", s.Subscribe, session)
	g.POST("/cancel", s.Cancel, session)
	g.GET("/plan/user/:userId", s.PlanConfigForUser, session, middleware.RequireSelf("userId"))
}

// RegisterPayments mounts /v1/payments; every route needs a session.
func RegisterPayments(e *echo.Echo, p *handler.PaymentHandler, session echo.MiddlewareFunc) {
	g := e.Group("/v1/payments", session)
	g.GET("", p.List)
	g.POST("/create-checkout-session", p.CreateCheckoutSession)
	g.POST("/stripe-confirm", p.ConfirmCheckout)
}
