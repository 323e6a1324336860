package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

// StripeGateway implements Gateway with Stripe Checkout in payment mode.
type StripeGateway struct {
	sc       *client.API
	currency string
	log      *zap.Logger
}

// StripeOption adjusts the Stripe client, mostly for tests.
type StripeOption func(*stripe.BackendConfig)

// WithStripeURL points the API backend at url.
func WithStripeURL(url string, hc *http.Client) StripeOption {
	return func(c *stripe.BackendConfig) {
		c.URL = stripe.String(url)
		c.HTTPClient = hc
	}
}

// NewStripeGateway returns a gateway for secretKey. With an empty key every
// call fails with ErrNotConfigured.
func NewStripeGateway(secretKey, currency string, log *zap.Logger, opts ...StripeOption) *StripeGateway {
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	g := &StripeGateway{currency: strings.ToLower(currency), log: log}
	if secretKey == "" {
		return g
	}
	cfg := &stripe.BackendConfig{
		LeveledLogger:     log.Sugar(),
		MaxNetworkRetries: stripe.Int64(0),
	}
	for _, o := range opts {
		o(cfg)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
	g.sc = client.New(secretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return g
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if g.sc == nil {
		return CheckoutSession{}, ErrNotConfigured
	}
	currency := req.Currency
	if currency == "" {
		currency = g.currency
	}

	product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(req.ProductName)}
	if req.ProductDescription != "" {
		product.Description = stripe.String(req.ProductDescription)
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(req.UnitAmount),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, g.translate("create checkout session", err)
	}
	return CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) GetCheckoutSession(ctx context.Context, id string) (SessionDetails, error) {
	if g.sc == nil {
		return SessionDetails{}, ErrNotConfigured
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	s, err := g.sc.CheckoutSessions.Get(id, params)
	if err != nil {
		return SessionDetails{}, g.translate("retrieve checkout session", err)
	}
	d := SessionDetails{
		ID:          s.ID,
		Paid:        s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		AmountTotal: s.AmountTotal,
		Currency:    string(s.Currency),
		Metadata:    s.Metadata,
	}
	if s.PaymentIntent != nil {
		d.PaymentIntentID = s.PaymentIntent.ID
	}
	return d, nil
}

// translate maps a Stripe failure to a gateway error carrying the upstream
// status. The provider message is logged, not returned.
func (g *StripeGateway) translate(op string, err error) error {
	status := 0
	var se *stripe.Error
	if errors.As(err, &se) {
		status = se.HTTPStatusCode
	}
	g.log.Warn("stripe call failed",
		zap.String("op", op),
		zap.Int("upstream_status", status),
		zap.Error(err))
	if status == http.StatusNotFound {
		return ErrSessionNotFound.Wrap(err)
	}
	return ErrGateway.WithUpstream(status, err)
}
