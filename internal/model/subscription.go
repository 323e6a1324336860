package model

import "time"

// SubscriptionStatus is the lifecycle state of a subscription. Canceled is
// terminal.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Subscription links a user to a plan over time (`subscriptions` table).
// At most one row per user has status active.
type Subscription struct {
	ID        string             // subscriptions.id
	UserID    string             // subscriptions.user_id
	PlanID    string             // subscriptions.plan_id
	Status    SubscriptionStatus // subscriptions.status
	StartDate time.Time          // subscriptions.start_date
	EndDate   *time.Time         // subscriptions.end_date (nullable)
	AutoRenew bool               // subscriptions.auto_renew
	PaymentID *string            // subscriptions.payment_id (nullable)

	Plan *SubscriptionPlan // joined plan, nil when not loaded
}

// Payment is a recorded successful charge (`payments` table). Rows are
// immutable once written.
type Payment struct {
	ID                string    // payments.id
	UserID            string    // payments.user_id
	AmountCents       int64     // payments.amount * 100
	Currency          string    // payments.currency (lower-case ISO code)
	ExternalPaymentID string    // payments.external_payment_id (unique)
	CreatedAt         time.Time // payments.created_at
}
