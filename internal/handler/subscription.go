package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fromscratch/identity/internal/apperr"
	"github.com/fromscratch/identity/internal/middleware"
	"github.com/fromscratch/identity/internal/service"
)

// SubscriptionHandler serves the plan catalog and the caller's
// subscription.
type SubscriptionHandler struct {
	Plans *service.PlanService
	Subs  *service.SubscriptionService
}

func NewSubscriptionHandler(plans *service.PlanService, subs *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{Plans: plans, Subs: subs}
}

type subscribeReq struct {
	PlanID string `json:"planId"`
}

// ListPlans: active plans, cheapest first. Public.
func (h *SubscriptionHandler) ListPlans(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	plans, err := h.Plans.ListPlans(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPlans(plans))
}

// Current returns the active subscription, or null.
func (h *SubscriptionHandler) Current(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	sub, err := h.Subs.Current(ctx, middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toSubscription(sub))
}

// Subscribe activates a free plan. Paid plans answer 409 checkout_required
// and go through the checkout endpoints instead.
func (h *SubscriptionHandler) Subscribe(c echo.Context) error {
	var req subscribeReq
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}
	if req.PlanID == "" {
		return apperr.Validation("planId is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	sub, err := h.Subs.SubscribeFree(ctx, middleware.UserID(c), req.PlanID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toSubscription(sub))
}

func (h *SubscriptionHandler) Cancel(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	sub, err := h.Subs.Cancel(ctx, middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toSubscription(sub))
}

// PlanConfigForUser returns the capability grant of the user's active
// plan, or null. The route only lets users read their own grant.
func (h *SubscriptionHandler) PlanConfigForUser(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	cfg, err := h.Subs.PlanConfigForUser(ctx, c.Param("userId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cfg)
}
