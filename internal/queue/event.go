// Package queue carries identity and billing domain events over RabbitMQ.
// Producers publish best-effort; cmd/auditlog consumes them into an
// append-only audit file.
package queue

import "time"

// EventType names a domain event. It doubles as the AMQP message type.
type EventType string

const (
	UserRegistered        EventType = "user.registered"
	SubscriptionActivated EventType = "subscription.activated"
	SubscriptionCanceled  EventType = "subscription.canceled"
	PaymentRecorded       EventType = "payment.recorded"
)

// Event is the single payload shape on the events queue. Fields irrelevant
// to Type are left empty. It never carries credentials or tokens.
type Event struct {
	Type           EventType  `json:"type"`
	OccurredAt     time.Time  `json:"occurred_at"`
	UserID         string     `json:"user_id"`
	Provider       string     `json:"provider,omitempty"`
	SubscriptionID string     `json:"subscription_id,omitempty"`
	PlanID         string     `json:"plan_id,omitempty"`
	PaymentID      string     `json:"payment_id,omitempty"`
	AmountCents    int64      `json:"amount_cents,omitempty"`
	Currency       string     `json:"currency,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
}
