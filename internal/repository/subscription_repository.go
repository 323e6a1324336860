package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fromscratch/identity/internal/dbx"
	"github.com/fromscratch/identity/internal/model"
)

const subscriptionColumns = "id, user_id, plan_id, status, start_date, end_date, auto_renew, payment_id"

// SubscriptionRepo persists `subscriptions`. The table carries a unique key
// on a generated column that is non-null only for active rows, so a second
// active subscription for the same user fails with ErrDuplicate.
type SubscriptionRepo struct{ db dbx.DBTX }

func NewSubscriptionRepo(db dbx.DBTX) *SubscriptionRepo { return &SubscriptionRepo{db: db} }

// Create inserts s.
func (r *SubscriptionRepo) Create(ctx context.Context, s *model.Subscription) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	var end any
	if s.EndDate != nil {
		end = s.EndDate.UTC()
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO subscriptions ("+subscriptionColumns+") VALUES (?,?,?,?,?,?,?,?)",
		s.ID, s.UserID, s.PlanID, string(s.Status), s.StartDate.UTC(), end, s.AutoRenew, s.PaymentID)
	if err != nil {
		if _, ok := duplicateKey(err); ok {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetActiveByUser returns the most recent active subscription.
func (r *SubscriptionRepo) GetActiveByUser(ctx context.Context, userID string) (*model.Subscription, error) {
	return r.getOne(ctx,
		"SELECT "+subscriptionColumns+" FROM subscriptions WHERE user_id=? AND status='active' ORDER BY start_date DESC LIMIT 1",
		userID)
}

// GetByPaymentID returns the subscription created for a payment.
func (r *SubscriptionRepo) GetByPaymentID(ctx context.Context, paymentID string) (*model.Subscription, error) {
	return r.getOne(ctx,
		"SELECT "+subscriptionColumns+" FROM subscriptions WHERE payment_id=? ORDER BY start_date DESC LIMIT 1",
		paymentID)
}

// Cancel marks one active subscription canceled.
func (r *SubscriptionRepo) Cancel(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE subscriptions SET status='canceled', auto_renew=0, end_date=? WHERE id=? AND status='active'",
		at.UTC(), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// CancelActiveByUser cancels every active subscription of userID and returns
// how many rows changed.
func (r *SubscriptionRepo) CancelActiveByUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE subscriptions SET status='canceled', auto_renew=0, end_date=? WHERE user_id=? AND status='active'",
		at.UTC(), userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SubscriptionRepo) getOne(ctx context.Context, q string, args ...any) (*model.Subscription, error) {
	var (
		s         model.Subscription
		status    string
		end       sql.NullTime
		paymentID sql.NullString
	)
	err := r.db.QueryRowContext(ctx, q, args...).Scan(
		&s.ID, &s.UserID, &s.PlanID, &status, &s.StartDate, &end, &s.AutoRenew, &paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.Status = model.SubscriptionStatus(status)
	if end.Valid {
		t := end.Time
		s.EndDate = &t
	}
	if paymentID.Valid {
		p := paymentID.String
		s.PaymentID = &p
	}
	return &s, nil
}
