// Package payment talks to the external checkout provider. The Gateway
// interface is what the subscription service depends on; StripeGateway is
// the production implementation.
package payment

import (
	"context"

	"github.com/fromscratch/identity/internal/apperr"
)

var (
	ErrNotConfigured   = apperr.New(apperr.NotConfigured, "payment_not_configured", "payments are not configured on the server")
	ErrGateway         = apperr.New(apperr.UpstreamFailure, "payment_gateway_error", "the payment provider rejected the request")
	ErrSessionNotFound = apperr.New(apperr.NotFound, "checkout_session_not_found", "checkout session not found")
)

// CheckoutRequest describes a one-time payment for a single line item.
type CheckoutRequest struct {
	ProductName        string
	ProductDescription string
	UnitAmount         int64  // minor units
	Currency           string // empty means the gateway default
	SuccessURL         string
	CancelURL          string
	Metadata           map[string]string
}

// CheckoutSession is what the buyer is redirected to.
type CheckoutSession struct {
	ID  string
	URL string
}

// SessionDetails is a retrieved checkout session.
type SessionDetails struct {
	ID              string
	Paid            bool
	AmountTotal     int64 // minor units
	Currency        string
	Metadata        map[string]string
	PaymentIntentID string
}

// Gateway creates and retrieves checkout sessions. Calls are not retried.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (SessionDetails, error)
}
