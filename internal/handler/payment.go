package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fromscratch/identity/internal/apperr"
	"github.com/fromscratch/identity/internal/middleware"
	"github.com/fromscratch/identity/internal/service"
)

// PaymentHandler runs hosted checkout and lists recorded payments.
type PaymentHandler struct {
	Subs *service.SubscriptionService
}

func NewPaymentHandler(subs *service.SubscriptionService) *PaymentHandler {
	return &PaymentHandler{Subs: subs}
}

type checkoutReq struct {
	PlanID     string `json:"planId"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
	Months     int    `json:"months"`
}

type checkoutResp struct {
	CheckoutURL  string           `json:"checkoutUrl"`
	SessionID    *string          `json:"sessionId"`
	Subscription *subscriptionDTO `json:"subscription,omitempty"`
}

type confirmReq struct {
	SessionID string `json:"sessionId"`
}

type confirmResp struct {
	Payment      *paymentDTO      `json:"payment"`
	Subscription *subscriptionDTO `json:"subscription"`
}

// CreateCheckoutSession: 201 with the hosted checkout URL. Free plans are
// activated directly and sessionId is null.
func (h *PaymentHandler) CreateCheckoutSession(c echo.Context) error {
	var req checkoutReq
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}
	if req.PlanID == "" {
		return apperr.Validation("planId is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Subs.CreateCheckoutSession(ctx, service.CheckoutInput{
		UserID:     middleware.UserID(c),
		PlanID:     req.PlanID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		Months:     req.Months,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, checkoutResp{
		CheckoutURL:  res.CheckoutURL,
		SessionID:    res.SessionID,
		Subscription: toSubscription(res.Subscription),
	})
}

// ConfirmCheckout records a paid session for the caller. Repeating the call
// for the same session returns the same payment and subscription.
func (h *PaymentHandler) ConfirmCheckout(c echo.Context) error {
	var req confirmReq
	if err := c.Bind(&req); err != nil {
		return errInvalidBody
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Subs.ConfirmCheckout(ctx, middleware.UserID(c), req.SessionID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, confirmResp{
		Payment:      toPayment(res.Payment),
		Subscription: toSubscription(res.Subscription),
	})
}

// List returns the caller's payments, newest first.
func (h *PaymentHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	ps, err := h.Subs.Payments(ctx, middleware.UserID(c))
	if err != nil {
		return err
	}
	out := make([]*paymentDTO, 0, len(ps))
	for i := range ps {
		out = append(out, toPayment(&ps[i]))
	}
	return c.JSON(http.StatusOK, out)
}
